package importer

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestShortenPublisher(t *testing.T) {
	var b strings.Builder
	for b.Len() < 600 {
		b.WriteString("A, B, C, ")
	}
	withCommas := b.String()[:600]

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"короткое значение не меняется", "Наука, Мир", "Наука, Мир"},
		{"ровно 500 символов не меняется", strings.Repeat("x", 500), strings.Repeat("x", 500)},
		{"без запятых обрезается до 500", strings.Repeat("x", 600), strings.Repeat("x", 500)},
		{"без запятых, кириллица", strings.Repeat("я", 600), strings.Repeat("я", 500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shortenPublisher(tt.in, maxPublisherLen); got != tt.want {
				t.Errorf("shortenPublisher() длина %d, ожидали %d", utf8.RuneCountInString(got), utf8.RuneCountInString(tt.want))
			}
		})
	}

	t.Run("с запятыми только целые элементы", func(t *testing.T) {
		got := shortenPublisher(withCommas, maxPublisherLen)
		if n := utf8.RuneCountInString(got); n >= maxPublisherLen {
			t.Fatalf("длина %d, ожидали меньше %d", n, maxPublisherLen)
		}
		if n := utf8.RuneCountInString(got); n != 499 {
			t.Errorf("длина %d, ожидали 499 (жадный набор элементов)", n)
		}
		for _, token := range strings.Split(got, ", ") {
			if token != "A" && token != "B" && token != "C" {
				t.Fatalf("частичный или пустой элемент %q", token)
			}
		}
	})

	t.Run("пустые элементы в середине сохраняются", func(t *testing.T) {
		in := "A,,B," + strings.Repeat("Издательство, ", 50)
		got := shortenPublisher(in, maxPublisherLen)
		if !strings.HasPrefix(got, "A, , B, Издательство") {
			t.Errorf("неожиданное начало: %q", got[:30])
		}
		if n := utf8.RuneCountInString(got); n >= maxPublisherLen {
			t.Errorf("длина %d, ожидали меньше %d", n, maxPublisherLen)
		}
	})

	t.Run("ведущие пустые элементы пропадают", func(t *testing.T) {
		in := strings.Repeat(",", 10) + strings.Repeat("Издательство, ", 50)
		got := shortenPublisher(in, maxPublisherLen)
		if !strings.HasPrefix(got, "Издательство, Издательство") {
			t.Errorf("неожиданное начало: %q", got[:30])
		}
	})
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"абвгд", 2, "аб"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, ожидали %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestFitFilename(t *testing.T) {
	location := "/" + strings.Repeat("a", 89)

	t.Run("путь 120 символов укорачивается до бюджета", func(t *testing.T) {
		stem := strings.Repeat("s", 120-90-1-len(".pdf"))
		if n := utf8.RuneCountInString(filepath.Join(location, stem+".pdf")); n != 120 {
			t.Fatalf("подготовка: длина пути %d", n)
		}

		got, shortened, err := fitFilename(location, stem, "pdf", 100)
		if err != nil {
			t.Fatalf("fitFilename: %v", err)
		}
		if !shortened {
			t.Errorf("ожидали укорочение")
		}
		full := filepath.Join(location, storedName(got, "pdf"))
		if n := utf8.RuneCountInString(full); n > 100 {
			t.Errorf("длина пути %d > 100", n)
		}
		if !strings.HasSuffix(full, ".pdf") {
			t.Errorf("расширение потеряно: %s", full)
		}
	})

	t.Run("путь в пределах бюджета не меняется", func(t *testing.T) {
		got, shortened, err := fitFilename(location, "book", "pdf", 100)
		if err != nil || shortened || got != "book" {
			t.Errorf("fitFilename() = %q, %v, %v", got, shortened, err)
		}
	})

	t.Run("без расширения", func(t *testing.T) {
		got, _, err := fitFilename(location, strings.Repeat("s", 30), "", 100)
		if err != nil {
			t.Fatalf("fitFilename: %v", err)
		}
		if n := utf8.RuneCountInString(filepath.Join(location, got)); n != 100 {
			t.Errorf("длина пути %d, ожидали 100", n)
		}
	})

	t.Run("бюджет недостижим", func(t *testing.T) {
		long := "/" + strings.Repeat("a", 97)
		if _, _, err := fitFilename(long, "book", "djvu", 100); err == nil {
			t.Errorf("ожидали ошибку конфигурации")
		}
	})
}

func TestSplitSourceName(t *testing.T) {
	tests := []struct {
		path, stem, ext string
	}{
		{"/in/Book.PDF", "Book", "pdf"},
		{"/in/archive.tar.gz", "archive.tar", "gz"},
		{"/in/noext", "noext", ""},
		{"/in/.hidden", ".hidden", ""},
	}
	for _, tt := range tests {
		stem, ext := splitSourceName(tt.path)
		if stem != tt.stem || ext != tt.ext {
			t.Errorf("splitSourceName(%q) = %q, %q; ожидали %q, %q", tt.path, stem, ext, tt.stem, tt.ext)
		}
	}
}

func TestNewDownloadHash(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		h, err := newDownloadHash()
		if err != nil {
			t.Fatalf("newDownloadHash: %v", err)
		}
		if !downloadHashRe.MatchString(h) {
			t.Fatalf("неверный формат %q", h)
		}
		seen[h] = true
	}
	if len(seen) != 100 {
		t.Errorf("повторы download_hash: %d уникальных из 100", len(seen))
	}
}

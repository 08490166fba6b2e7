package importer

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// coverFileName — имя файла обложки в каталоге книги.
const coverFileName = "cover_small.jpg"

// bookLocation возвращает каталог книги {base}/{locator}/{ths}/{id}.
func bookLocation(base, locator string, id int64) string {
	return filepath.Join(base, locator,
		strconv.FormatInt(model.ShardOf(id), 10),
		strconv.FormatInt(id, 10))
}

// normalizeExtension убирает ведущую точку и пробелы из явно заданного расширения.
func normalizeExtension(ext string) string {
	return strings.TrimSpace(strings.TrimPrefix(ext, "."))
}

// checkNameComponent проверяет, что значение годится как один элемент пути
// внутри каталога книги.
func checkNameComponent(field, v string) error {
	if v == "." || v == ".." || strings.ContainsAny(v, "/\\\x00") {
		return fmt.Errorf("%w: недопустимое значение %s %q", ErrInput, field, v)
	}
	return nil
}

// storedName собирает имя файла на диске: stem.ext или stem без расширения.
func storedName(stem, ext string) string {
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

// fitFilename укорачивает stem так, чтобы location/stem.ext уложился в budget
// символов. Расширение не меняется. Второе значение сообщает, было ли
// имя укорочено.
func fitFilename(location, stem, ext string, budget int) (string, bool, error) {
	target := filepath.Join(location, storedName(stem, ext))
	if utf8.RuneCountInString(target) <= budget {
		return stem, false, nil
	}

	maxStem := budget - utf8.RuneCountInString(location) - 1
	if ext != "" {
		maxStem -= utf8.RuneCountInString(ext) + 1
	}
	if maxStem < 1 {
		return "", false, fmt.Errorf("%w: каталог %s не оставляет места для имени файла в пределах %d символов",
			ErrConfig, location, budget)
	}
	return truncateRunes(stem, maxStem), true, nil
}

// splitSourceName возвращает stem и расширение исходного файла.
// Расширение приводится к нижнему регистру, точка и пробелы отбрасываются.
func splitSourceName(path string) (string, string) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// .bashrc: имя без расширения
		return base, ""
	}
	return stem, strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
}

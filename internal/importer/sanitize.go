package importer

import (
	"strings"
	"unicode/utf8"
)

// Ограничения ширины колонок каталога (в символах).
const (
	maxTitleLen     = 1000
	maxISBNLen      = 300
	maxPagesLen     = 100
	maxPublisherLen = 500
	maxExtensionLen = 32
)

// sanitize обрезает слишком длинные текстовые поля. Ошибок не бывает:
// значения молча приводятся к допустимой ширине.
func (p *Params) sanitize() {
	p.Title = truncatePtr(p.Title, maxTitleLen)
	p.ISBN = truncatePtr(p.ISBN, maxISBNLen)
	p.Pages = truncatePtr(p.Pages, maxPagesLen)
	if p.Publisher != nil {
		v := shortenPublisher(*p.Publisher, maxPublisherLen)
		p.Publisher = &v
	}
}

func truncatePtr(v *string, limit int) *string {
	if v == nil {
		return nil
	}
	s := truncateRunes(*v, limit)
	return &s
}

// truncateRunes возвращает первые limit символов строки.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// shortenPublisher укорачивает список издателей длиннее limit.
// Строка с запятыми собирается из целых элементов (через ", ") до тех пор,
// пока следующий элемент не доведёт длину до limit; пустые элементы
// в середине сохраняются, ведущие пропадают. Строка без запятых обрезается
// до limit символов.
func shortenPublisher(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if !strings.Contains(s, ",") {
		return truncateRunes(s, limit)
	}

	var b strings.Builder
	length := 0
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		add := utf8.RuneCountInString(token)
		if length > 0 {
			add += 2
		}
		if length+add >= limit {
			break
		}
		if length > 0 {
			b.WriteString(", ")
		}
		b.WriteString(token)
		length += add
	}
	return b.String()
}

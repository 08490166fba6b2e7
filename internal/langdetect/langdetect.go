// Пакет langdetect — определение языка текста (whatlanggo).
// Возвращает английское имя языка в нижнем регистре: russian, english,
// bulgarian... Для большинства языков оно совпадает с именем
// конфигурации полнотекстового поиска PostgreSQL.
package langdetect

import (
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// ErrUndetected — язык текста определить не удалось.
var ErrUndetected = errors.New("язык текста не определён")

// Detector — определитель языка.
type Detector struct {
	// minConfidence — минимальная уверенность; ниже — ErrUndetected
	minConfidence float64
}

// New создаёт определитель языка. minConfidence в диапазоне 0..1;
// 0 принимает любой результат.
func New(minConfidence float64) *Detector {
	return &Detector{minConfidence: minConfidence}
}

// Detect определяет язык текста.
func (d *Detector) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrUndetected
	}

	info := whatlanggo.Detect(text)
	name := strings.ToLower(info.Lang.String())
	if name == "" || info.Confidence < d.minConfidence {
		return "", ErrUndetected
	}
	return name, nil
}

package langdetect

import (
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	d := New(0)

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"русский",
			" Война и мир Лев Николаевич Толстой роман-эпопея о русском обществе в эпоху войн против Наполеона",
			"russian",
		},
		{
			"английский",
			" The Adventures of Sherlock Holmes Arthur Conan Doyle a collection of twelve detective stories",
			"english",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Detect(tt.text)
			if err != nil {
				t.Fatalf("Detect() ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %q, хотели %q", got, tt.want)
			}
		})
	}
}

func TestDetect_Empty(t *testing.T) {
	d := New(0)
	for _, text := range []string{"", "   "} {
		if _, err := d.Detect(text); !errors.Is(err, ErrUndetected) {
			t.Errorf("Detect(%q): ожидали ErrUndetected, получили %v", text, err)
		}
	}
}

func TestDetect_MinConfidence(t *testing.T) {
	// Уверенность не может превышать 1
	d := New(1.1)
	if _, err := d.Detect("The quick brown fox jumps over the lazy dog"); !errors.Is(err, ErrUndetected) {
		t.Errorf("ожидали ErrUndetected при недостижимом пороге, получили %v", err)
	}
}

package importer

import (
	"crypto/rand"
	"fmt"
)

// downloadHashLen — длина токена download_hash.
const downloadHashLen = 15

const hashAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newDownloadHash генерирует случайный токен из строчных латинских букв и цифр.
func newDownloadHash() (string, error) {
	// Отбрасываем байты >= 252, чтобы распределение по 36 символам было равномерным
	const limit = 256 - 256%len(hashAlphabet)

	out := make([]byte, 0, downloadHashLen)
	buf := make([]byte, downloadHashLen*2)
	for len(out) < downloadHashLen {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("ошибка генерации download_hash: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, hashAlphabet[int(b)%len(hashAlphabet)])
			if len(out) == downloadHashLen {
				break
			}
		}
	}
	return string(out), nil
}

// Пакет filestore — операции с физическими файлами книг на диске:
// создание каталогов, перемещение и копирование в хранилище,
// проверка наличия файла.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Права по умолчанию для создаваемых каталогов.
const dirMode = 0o755

// ErrOutsideStore — путь назначения лежит вне корневого каталога хранилища.
var ErrOutsideStore = errors.New("путь вне каталога хранилища")

// FileStore — работа с файлами внутри корневого каталога хранилища.
// Каталоги и файлы создаются только внутри dataDir; исходные файлы
// Move и Copy могут лежать где угодно.
type FileStore struct {
	// dataDir — корневой каталог пулов хранения (TBC_STORAGE_BASE)
	dataDir string
}

// New создаёт FileStore. Создаёт корневой каталог, если его нет.
func New(dataDir string) (*FileStore, error) {
	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный каталог хранилища: %w", err)
	}
	if err := os.MkdirAll(dataDir, dirMode); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог хранилища %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// DataDir возвращает корневой каталог хранилища.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// Stat возвращает информацию о файле.
func (fs *FileStore) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// contain проверяет, что path после очистки остаётся внутри dataDir.
func (fs *FileStore) contain(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideStore, path)
	}
	rel, err := filepath.Rel(fs.dataDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideStore, path)
	}
	return nil
}

// MkdirAll создаёт каталог со всеми родителями.
// Существующий каталог ошибкой не считается.
func (fs *FileStore) MkdirAll(path string) error {
	if err := fs.contain(path); err != nil {
		return err
	}
	if err := os.MkdirAll(path, dirMode); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", path, err)
	}
	return nil
}

// Move перемещает файл. Между разными файловыми системами rename
// невозможен (EXDEV), тогда файл копируется и исходник удаляется.
func (fs *FileStore) Move(src, dst string) error {
	if err := fs.contain(dst); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("ошибка перемещения %s → %s: %w", src, dst, err)
	}

	if err := fs.Copy(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("файл скопирован, но исходник %s не удалён: %w", src, err)
	}
	return nil
}

// Copy копирует файл с сохранением прав доступа.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Copy(src, dst string) error {
	if err := fs.contain(dst); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ошибка открытия %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("ошибка получения информации о %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s не является обычным файлом", src)
	}

	tmpPath := dst + ".tmp"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка копирования данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// IsFile сообщает, существует ли по пути обычный файл.
func (fs *FileStore) IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

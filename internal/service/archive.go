// archive.go — импорт файлов книг в архив и чтение каталога.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/importer"
	"github.com/bigkaa/tbc-ingest/internal/repository"
	"github.com/bigkaa/tbc-ingest/internal/tasks"
)

// BookReader читает строки каталога вне сессии импорта.
type BookReader interface {
	GetByID(ctx context.Context, id int64) (*model.Book, error)
}

// FileImporter импортирует один файл.
type FileImporter interface {
	Import(ctx context.Context, p importer.Params) (*model.Book, error)
}

// ArchiveService — импорт файлов и чтение каталога книг.
type ArchiveService struct {
	importer   FileImporter
	books      BookReader
	dispatcher *tasks.Dispatcher
	logger     *slog.Logger
}

// NewArchiveService создаёт сервис архива. dispatcher может быть nil.
func NewArchiveService(im FileImporter, books BookReader, dispatcher *tasks.Dispatcher, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		importer:   im,
		books:      books,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "archive_service")),
	}
}

// Import импортирует файл синхронно. Ошибки классифицируются
// sentinel-ошибками пакета importer.
func (s *ArchiveService) Import(ctx context.Context, p importer.Params) (*model.Book, error) {
	book, err := s.importer.Import(ctx, p)
	if err != nil {
		s.logger.Warn("Импорт файла не выполнен",
			slog.String("import_file", p.ImportFile),
			slog.String("md5", p.MD5),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return book, nil
}

// ImportAsync ставит импорт файла фоновой задачей importer.import_file.
func (s *ArchiveService) ImportAsync(ctx context.Context, p importer.Params) (*tasks.AsyncResult, error) {
	if s.dispatcher == nil {
		return nil, ErrTasksUnavailable
	}
	if p.ImportFile == "" || p.MD5 == "" {
		return nil, fmt.Errorf("%w: import_file и md5 обязательны", importer.ErrInput)
	}
	return s.dispatcher.Apply(ctx, TaskImportFile, p)
}

// Book возвращает строку каталога по id.
func (s *ArchiveService) Book(ctx context.Context, id int64) (*model.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: книга %d", ErrNotFound, id)
		}
		return nil, err
	}
	return book, nil
}

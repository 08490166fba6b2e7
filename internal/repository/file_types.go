package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// FileTypeRepository — CRUD для таблицы books_files_types.
// Чтение возвращает имя связанной группы.
type FileTypeRepository interface {
	List(ctx context.Context) ([]*model.FileType, error)
	GetByID(ctx context.Context, id int) (*model.FileType, error)
	Create(ctx context.Context, t *model.FileType) error
	Update(ctx context.Context, t *model.FileType) error
	Delete(ctx context.Context, id int) error
}

type fileTypeRepo struct {
	db DBTX
}

// NewFileTypeRepository создаёт репозиторий типов файлов.
func NewFileTypeRepository(db DBTX) FileTypeRepository {
	return &fileTypeRepo{db: db}
}

const fileTypeSelect = `
	SELECT t.id, t.file_name, t.comments, t.group_id, g.name AS group_name
	FROM books_files_types t
	LEFT JOIN books_files_groups g ON g.id = t.group_id`

func (r *fileTypeRepo) List(ctx context.Context) ([]*model.FileType, error) {
	rows, err := r.db.Query(ctx, fileTypeSelect+" ORDER BY t.id")
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка типов: %w", err)
	}
	types, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.FileType])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования типов: %w", err)
	}
	return types, nil
}

func (r *fileTypeRepo) GetByID(ctx context.Context, id int) (*model.FileType, error) {
	rows, err := r.db.Query(ctx, fileTypeSelect+" WHERE t.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения типа: %w", err)
	}
	t, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.FileType])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования типа: %w", err)
	}
	return t, nil
}

func (r *fileTypeRepo) Create(ctx context.Context, t *model.FileType) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO books_files_types (id, file_name, comments, group_id) VALUES ($1, $2, $3, $4)`,
		t.ID, t.FileName, t.Comments, t.GroupID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: тип с id %d уже существует", ErrConflict, t.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: связанная группа %d не найдена", ErrNotFound, t.GroupID)
		}
		return fmt.Errorf("ошибка создания типа: %w", err)
	}
	return nil
}

func (r *fileTypeRepo) Update(ctx context.Context, t *model.FileType) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE books_files_types SET file_name = $2, comments = $3, group_id = $4 WHERE id = $1`,
		t.ID, t.FileName, t.Comments, t.GroupID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: связанная группа %d не найдена", ErrNotFound, t.GroupID)
		}
		return fmt.Errorf("ошибка обновления типа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileTypeRepo) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM books_files_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления типа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// FileGroupRepository — CRUD для таблицы books_files_groups.
type FileGroupRepository interface {
	List(ctx context.Context) ([]*model.FileGroup, error)
	GetByID(ctx context.Context, id int) (*model.FileGroup, error)
	Create(ctx context.Context, g *model.FileGroup) error
	// Update перезаписывает name и comment.
	Update(ctx context.Context, g *model.FileGroup) error
	Delete(ctx context.Context, id int) error
}

type fileGroupRepo struct {
	db DBTX
}

// NewFileGroupRepository создаёт репозиторий групп файлов.
func NewFileGroupRepository(db DBTX) FileGroupRepository {
	return &fileGroupRepo{db: db}
}

func (r *fileGroupRepo) List(ctx context.Context) ([]*model.FileGroup, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, comment FROM books_files_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка групп: %w", err)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.FileGroup])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования групп: %w", err)
	}
	return groups, nil
}

func (r *fileGroupRepo) GetByID(ctx context.Context, id int) (*model.FileGroup, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, comment FROM books_files_groups WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения группы: %w", err)
	}
	g, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.FileGroup])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования группы: %w", err)
	}
	return g, nil
}

func (r *fileGroupRepo) Create(ctx context.Context, g *model.FileGroup) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO books_files_groups (id, name, comment) VALUES ($1, $2, $3)`,
		g.ID, g.Name, g.Comment)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: группа с id %d уже существует", ErrConflict, g.ID)
		}
		return fmt.Errorf("ошибка создания группы: %w", err)
	}
	return nil
}

func (r *fileGroupRepo) Update(ctx context.Context, g *model.FileGroup) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE books_files_groups SET name = $2, comment = $3 WHERE id = $1`,
		g.ID, g.Name, g.Comment)
	if err != nil {
		return fmt.Errorf("ошибка обновления группы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileGroupRepo) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM books_files_groups WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на группу %d ссылаются типы файлов", ErrReferenced, id)
		}
		return fmt.Errorf("ошибка удаления группы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

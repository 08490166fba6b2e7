package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// StoragePoolRepository — интерфейс работы с таблицей storage_pools.
type StoragePoolRepository interface {
	// List возвращает все пулы, упорядоченные по имени.
	List(ctx context.Context) ([]*model.StoragePool, error)
	// Get возвращает пул по имени.
	Get(ctx context.Context, name string) (*model.StoragePool, error)
	// Create регистрирует новый (неактивный) пул.
	Create(ctx context.Context, pool *model.StoragePool) error
	// Active возвращает активный пул.
	Active(ctx context.Context) (*model.StoragePool, error)
	// DeactivateAll снимает признак активности со всех пулов.
	DeactivateAll(ctx context.Context) error
	// SetActive делает пул активным. Вызывать после DeactivateAll в той же транзакции.
	SetActive(ctx context.Context, name string) error
}

// storagePoolRepo — реализация StoragePoolRepository.
type storagePoolRepo struct {
	db DBTX
}

// NewStoragePoolRepository создаёт репозиторий пулов хранения.
func NewStoragePoolRepository(db DBTX) StoragePoolRepository {
	return &storagePoolRepo{db: db}
}

const storagePoolSelect = `SELECT name, is_active, comment, created_at FROM storage_pools`

func (r *storagePoolRepo) List(ctx context.Context) ([]*model.StoragePool, error) {
	rows, err := r.db.Query(ctx, storagePoolSelect+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пулов: %w", err)
	}
	pools, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.StoragePool])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования пулов: %w", err)
	}
	return pools, nil
}

func (r *storagePoolRepo) Get(ctx context.Context, name string) (*model.StoragePool, error) {
	return r.queryOne(ctx, storagePoolSelect+" WHERE name = $1", name)
}

func (r *storagePoolRepo) Active(ctx context.Context) (*model.StoragePool, error) {
	return r.queryOne(ctx, storagePoolSelect+" WHERE is_active")
}

func (r *storagePoolRepo) Create(ctx context.Context, pool *model.StoragePool) error {
	query := `
		INSERT INTO storage_pools (name, is_active, comment)
		VALUES ($1, FALSE, $2)
		RETURNING is_active, created_at`

	err := r.db.QueryRow(ctx, query, pool.Name, pool.Comment).Scan(&pool.IsActive, &pool.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пул %q уже зарегистрирован", ErrConflict, pool.Name)
		}
		return fmt.Errorf("ошибка создания пула: %w", err)
	}
	return nil
}

func (r *storagePoolRepo) DeactivateAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `UPDATE storage_pools SET is_active = FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("ошибка деактивации пулов: %w", err)
	}
	return nil
}

func (r *storagePoolRepo) SetActive(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `UPDATE storage_pools SET is_active = TRUE WHERE name = $1`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: активный пул уже назначен", ErrConflict)
		}
		return fmt.Errorf("ошибка активации пула: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storagePoolRepo) queryOne(ctx context.Context, query string, args ...any) (*model.StoragePool, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула: %w", err)
	}
	pool, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.StoragePool])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования пула: %w", err)
	}
	return pool, nil
}

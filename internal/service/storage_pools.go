// storage_pools.go — сервис пулов хранения.
// Активным может быть только один пул; переключение выполняется
// в одной транзакции (снять активность со всех, назначить один).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

// PoolInput — данные для регистрации пула.
type PoolInput struct {
	Name    string  `json:"name" validate:"required,max=64,excludesall=/\\"`
	Comment *string `json:"comment" validate:"omitempty,max=200"`
}

// PoolDirMaker создаёт каталог пула в хранилище.
type PoolDirMaker interface {
	MkdirAll(path string) error
}

// StoragePoolService — управление пулами хранения.
type StoragePoolService struct {
	repo        repository.StoragePoolRepository
	txRunner    *repository.TxRunner
	dirs        PoolDirMaker
	storageBase string
	logger      *slog.Logger
}

// NewStoragePoolService создаёт сервис пулов хранения.
func NewStoragePoolService(
	repo repository.StoragePoolRepository,
	txRunner *repository.TxRunner,
	dirs PoolDirMaker,
	storageBase string,
	logger *slog.Logger,
) *StoragePoolService {
	return &StoragePoolService{
		repo:        repo,
		txRunner:    txRunner,
		dirs:        dirs,
		storageBase: storageBase,
		logger:      logger.With(slog.String("component", "pool_service")),
	}
}

// List возвращает все пулы.
func (s *StoragePoolService) List(ctx context.Context) ([]*model.StoragePool, error) {
	return s.repo.List(ctx)
}

// Create регистрирует неактивный пул и создаёт его каталог.
func (s *StoragePoolService) Create(ctx context.Context, in PoolInput) (*model.StoragePool, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Name == "." || in.Name == ".." {
		return nil, fmt.Errorf("%w: недопустимое имя пула %q", ErrValidation, in.Name)
	}

	pool := &model.StoragePool{Name: in.Name, Comment: in.Comment}
	if err := s.repo.Create(ctx, pool); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: пул %q уже зарегистрирован", ErrConflict, in.Name)
		}
		return nil, err
	}
	if s.dirs != nil {
		if err := s.dirs.MkdirAll(filepath.Join(s.storageBase, pool.Name)); err != nil {
			s.logger.Warn("Каталог пула не создан",
				slog.String("pool", pool.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Info("Пул хранения зарегистрирован", slog.String("pool", pool.Name))
	return pool, nil
}

// Activate делает пул единственным активным.
func (s *StoragePoolService) Activate(ctx context.Context, name string) (*model.StoragePool, error) {
	err := s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewStoragePoolRepository(tx)
		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}
		return repo.SetActive(ctx, name)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пул %q", ErrNotFound, name)
		}
		return nil, err
	}
	s.logger.Info("Активный пул хранения изменён", slog.String("pool", name))
	return s.repo.Get(ctx, name)
}

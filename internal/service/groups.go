// groups.go — сервис справочника групп файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

// GroupInput — данные для создания и изменения группы.
// ID обязателен только при создании.
type GroupInput struct {
	ID      *int    `json:"id"`
	Name    *string `json:"name" validate:"omitempty,max=50"`
	Comment *string `json:"comment" validate:"omitempty,max=200"`
}

// GroupService — CRUD групп с кэшированием чтения по id.
type GroupService struct {
	repo   repository.FileGroupRepository
	cache  *GroupCache
	logger *slog.Logger
}

// NewGroupService создаёт сервис групп. cache может быть nil.
func NewGroupService(repo repository.FileGroupRepository, cache *GroupCache, logger *slog.Logger) *GroupService {
	return &GroupService{
		repo:   repo,
		cache:  cache,
		logger: logger.With(slog.String("component", "group_service")),
	}
}

// List возвращает все группы по возрастанию id.
func (s *GroupService) List(ctx context.Context) ([]*model.FileGroup, error) {
	return s.repo.List(ctx)
}

// Get возвращает группу по id.
func (s *GroupService) Get(ctx context.Context, id int) (*model.FileGroup, error) {
	if s.cache != nil {
		if g, ok := s.cache.Get(id); ok {
			return g, nil
		}
	}
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: группа %d", ErrNotFound, id)
		}
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(g)
	}
	return g, nil
}

// Create создаёт группу с заданным id.
func (s *GroupService) Create(ctx context.Context, in GroupInput) (*model.FileGroup, error) {
	if in.ID == nil {
		return nil, fmt.Errorf("%w: поле 'id' обязательно", ErrValidation)
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	g := &model.FileGroup{ID: *in.ID, Name: in.Name, Comment: in.Comment}
	if err := s.repo.Create(ctx, g); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: группа с id %d уже существует", ErrConflict, g.ID)
		}
		return nil, err
	}
	s.invalidate(g.ID)
	s.logger.Info("Группа создана", slog.Int("id", g.ID))
	return g, nil
}

// Update перезаписывает name и comment группы.
func (s *GroupService) Update(ctx context.Context, id int, in GroupInput) (*model.FileGroup, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	g := &model.FileGroup{ID: id, Name: in.Name, Comment: in.Comment}
	if err := s.repo.Update(ctx, g); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: группа %d", ErrNotFound, id)
		}
		return nil, err
	}
	s.invalidate(id)
	return g, nil
}

// Delete удаляет группу. Группу, на которую ссылаются типы, удалить нельзя.
func (s *GroupService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%w: группа %d", ErrNotFound, id)
		case errors.Is(err, repository.ErrReferenced):
			return fmt.Errorf("%w: группа %d используется типами файлов", ErrReferenced, id)
		}
		return err
	}
	s.invalidate(id)
	s.logger.Info("Группа удалена", slog.Int("id", id))
	return nil
}

func (s *GroupService) invalidate(id int) {
	if s.cache != nil {
		s.cache.Delete(id)
	}
}

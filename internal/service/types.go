// types.go — сервис справочника типов файлов.
// Тип ссылается на группу; ссылка проверяется до записи.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

// TypeInput — данные для создания и изменения типа.
type TypeInput struct {
	ID       *int    `json:"id"`
	FileName *string `json:"file_name" validate:"omitempty,max=30"`
	Comments *string `json:"comments" validate:"omitempty,max=500"`
	GroupID  *int    `json:"group_id"`
}

// TypeService — CRUD типов файлов.
type TypeService struct {
	repo   repository.FileTypeRepository
	groups *GroupService
	logger *slog.Logger
}

// NewTypeService создаёт сервис типов.
func NewTypeService(repo repository.FileTypeRepository, groups *GroupService, logger *slog.Logger) *TypeService {
	return &TypeService{
		repo:   repo,
		groups: groups,
		logger: logger.With(slog.String("component", "type_service")),
	}
}

// List возвращает все типы по возрастанию id.
func (s *TypeService) List(ctx context.Context) ([]*model.FileType, error) {
	return s.repo.List(ctx)
}

// Get возвращает тип по id вместе с именем группы.
func (s *TypeService) Get(ctx context.Context, id int) (*model.FileType, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: тип %d", ErrNotFound, id)
		}
		return nil, err
	}
	return t, nil
}

// Create создаёт тип; id и group_id обязательны.
func (s *TypeService) Create(ctx context.Context, in TypeInput) (*model.FileType, error) {
	if in.ID == nil {
		return nil, fmt.Errorf("%w: поле 'id' обязательно", ErrValidation)
	}
	if in.GroupID == nil {
		return nil, fmt.Errorf("%w: поле 'group_id' обязательно", ErrValidation)
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.ensureGroup(ctx, *in.GroupID); err != nil {
		return nil, err
	}

	t := &model.FileType{ID: *in.ID, FileName: in.FileName, Comments: in.Comments, GroupID: *in.GroupID}
	if err := s.repo.Create(ctx, t); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: тип с id %d уже существует", ErrConflict, t.ID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: связанная группа не найдена", ErrValidation)
		}
		return nil, err
	}
	s.logger.Info("Тип создан", slog.Int("id", t.ID), slog.Int("group_id", t.GroupID))
	return s.Get(ctx, t.ID)
}

// Update перезаписывает file_name и comments; group_id меняется, если задан.
func (s *TypeService) Update(ctx context.Context, id int, in TypeInput) (*model.FileType, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	groupID := existing.GroupID
	if in.GroupID != nil {
		if err := s.ensureGroup(ctx, *in.GroupID); err != nil {
			return nil, err
		}
		groupID = *in.GroupID
	}

	t := &model.FileType{ID: id, FileName: in.FileName, Comments: in.Comments, GroupID: groupID}
	if err := s.repo.Update(ctx, t); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: тип %d", ErrNotFound, id)
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete удаляет тип.
func (s *TypeService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: тип %d", ErrNotFound, id)
		}
		return err
	}
	s.logger.Info("Тип удалён", slog.Int("id", id))
	return nil
}

// ensureGroup проверяет существование группы.
// Отсутствующая группа — ошибка входных данных, а не 404 самого типа.
func (s *TypeService) ensureGroup(ctx context.Context, groupID int) error {
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: связанная группа %d не найдена", ErrValidation, groupID)
		}
		return err
	}
	return nil
}

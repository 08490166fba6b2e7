// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrReferenced — ресурс используется другими записями.
	ErrReferenced = errors.New("ресурс используется другими записями")
	// ErrTasksUnavailable — слой фоновых задач не настроен.
	ErrTasksUnavailable = errors.New("фоновые задачи не настроены")
)

// Пакет tasks — фоновые задачи: именованные обработчики,
// брокер сообщений, хранилище результатов, немедленное (eager) выполнение
// и отчёт о прогрессе.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// Состояния задачи.
const (
	StatePending  = "PENDING"
	StateStarted  = "STARTED"
	StateProgress = "PROGRESS"
	StateSuccess  = "SUCCESS"
	StateFailure  = "FAILURE"
)

var (
	// ErrUnknownTask — обработчик с таким именем не зарегистрирован.
	ErrUnknownTask = errors.New("неизвестная задача")
	// ErrEmpty — в очереди нет сообщений (истёк интервал ожидания).
	ErrEmpty = errors.New("очередь пуста")
	// ErrQueueFull — очередь в памяти переполнена.
	ErrQueueFull = errors.New("очередь переполнена")
)

// Handler выполняет задачу. Результат сериализуется в JSON.
type Handler func(ctx context.Context, tc *TaskContext, payload json.RawMessage) (any, error)

// TaskContext — сведения о выполняемой задаче, доступные обработчику.
type TaskContext struct {
	ID   string
	Name string

	backend Backend
}

// Progress сохраняет состояние PROGRESS с meta {current, total}.
func (tc *TaskContext) Progress(ctx context.Context, current, total int) error {
	meta, err := json.Marshal(map[string]int{"current": current, "total": total})
	if err != nil {
		return err
	}
	return tc.backend.Store(ctx, &model.TaskResult{
		TaskID:    tc.ID,
		Name:      tc.Name,
		State:     StateProgress,
		Meta:      meta,
		UpdatedAt: time.Now().UTC(),
	})
}

// Registry — реестр обработчиков по именам.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register регистрирует обработчик. Повторная регистрация имени — ошибка.
func (r *Registry) Register(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("задача %s уже зарегистрирована", name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup возвращает обработчик по имени.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names возвращает имена зарегистрированных задач.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// pendingResult — состояние неизвестной задачи. Отличить её от ещё не
// начатой нельзя, поэтому это PENDING.
func pendingResult(taskID string) *model.TaskResult {
	return &model.TaskResult{TaskID: taskID, State: StatePending}
}

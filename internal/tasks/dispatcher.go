package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// tasksTotal — количество задач по имени и итоговому состоянию.
var tasksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tbc_tasks_total",
		Help: "Количество фоновых задач по имени и итоговому состоянию",
	},
	[]string{"name", "state"},
)

// Options — параметры диспетчера.
type Options struct {
	// Queue — очередь по умолчанию
	Queue string
	// AlwaysEager — выполнять задачи сразу в вызывающей горутине
	AlwaysEager bool
	// TimeLimit — предельное время выполнения одной задачи (0 — без ограничения)
	TimeLimit time.Duration
}

// AsyncResult — ссылка на поставленную задачу.
type AsyncResult struct {
	ID    string
	Name  string
	Queue string
	State string
	// Result и Error заполнены, если задача уже выполнена (eager)
	Result json.RawMessage
	Error  string
}

// Ready сообщает, завершена ли задача.
func (r *AsyncResult) Ready() bool {
	return r.State == StateSuccess || r.State == StateFailure
}

// Dispatcher ставит задачи в очередь и выполняет их.
type Dispatcher struct {
	registry *Registry
	broker   Broker
	backend  Backend
	opts     Options
	logger   *slog.Logger
}

// NewDispatcher создаёт диспетчер задач.
func NewDispatcher(registry *Registry, broker Broker, backend Backend, opts Options, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		broker:   broker,
		backend:  backend,
		opts:     opts,
		logger:   logger.With(slog.String("component", "tasks")),
	}
}

// Queue возвращает очередь по умолчанию.
func (d *Dispatcher) Queue() string {
	return d.opts.Queue
}

// Apply ставит задачу name с аргументами args. В режиме AlwaysEager
// задача выполняется сразу, и результат возвращается готовым.
func (d *Dispatcher) Apply(ctx context.Context, name string, args any) (*AsyncResult, error) {
	if _, ok := d.registry.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации аргументов задачи %s: %w", name, err)
	}

	msg := &model.TaskMessage{
		ID:         uuid.NewString(),
		Name:       name,
		Queue:      d.opts.Queue,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := d.backend.Store(ctx, &model.TaskResult{
		TaskID:    msg.ID,
		Name:      name,
		State:     StatePending,
		UpdatedAt: msg.EnqueuedAt,
	}); err != nil {
		return nil, err
	}

	if d.opts.AlwaysEager {
		res := d.Execute(ctx, msg)
		ar := &AsyncResult{ID: msg.ID, Name: name, Queue: msg.Queue, State: res.State, Result: res.Result}
		if res.Error != nil {
			ar.Error = *res.Error
		}
		return ar, nil
	}

	if err := d.broker.Publish(ctx, msg); err != nil {
		return nil, err
	}
	d.logger.Debug("Задача поставлена в очередь",
		slog.String("task_id", msg.ID),
		slog.String("name", name),
		slog.String("queue", msg.Queue),
	)
	return &AsyncResult{ID: msg.ID, Name: name, Queue: msg.Queue, State: StatePending}, nil
}

// Status возвращает текущее состояние задачи.
func (d *Dispatcher) Status(ctx context.Context, taskID string) (*model.TaskResult, error) {
	return d.backend.Load(ctx, taskID)
}

// Execute выполняет задачу и сохраняет итоговое состояние.
// Паника обработчика превращается в FAILURE.
func (d *Dispatcher) Execute(ctx context.Context, msg *model.TaskMessage) *model.TaskResult {
	log := d.logger.With(slog.String("task_id", msg.ID), slog.String("name", msg.Name))

	res := &model.TaskResult{TaskID: msg.ID, Name: msg.Name}
	h, ok := d.registry.Lookup(msg.Name)
	if !ok {
		d.finish(ctx, res, nil, fmt.Errorf("%w: %s", ErrUnknownTask, msg.Name), log)
		return res
	}

	d.store(ctx, &model.TaskResult{TaskID: msg.ID, Name: msg.Name, State: StateStarted, UpdatedAt: time.Now().UTC()}, log)

	runCtx := ctx
	if d.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.opts.TimeLimit)
		defer cancel()
	}

	tc := &TaskContext{ID: msg.ID, Name: msg.Name, backend: d.backend}
	value, err := run(runCtx, h, tc, msg.Payload)
	if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("превышено время выполнения %s", d.opts.TimeLimit)
	}
	d.finish(ctx, res, value, err, log)
	return res
}

// run вызывает обработчик, перехватывая панику.
func run(ctx context.Context, h Handler, tc *TaskContext, payload json.RawMessage) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в задаче: %v", r)
		}
	}()
	return h(ctx, tc, payload)
}

func (d *Dispatcher) finish(ctx context.Context, res *model.TaskResult, value any, err error, log *slog.Logger) {
	res.UpdatedAt = time.Now().UTC()
	if err == nil {
		data, mErr := json.Marshal(value)
		if mErr != nil {
			err = fmt.Errorf("ошибка сериализации результата: %w", mErr)
		} else {
			res.State = StateSuccess
			res.Result = data
		}
	}
	if err != nil {
		msg := err.Error()
		res.State = StateFailure
		res.Error = &msg
		res.Result = nil
		log.Warn("Задача завершилась ошибкой", slog.String("error", msg))
	} else {
		log.Debug("Задача выполнена")
	}
	tasksTotal.WithLabelValues(res.Name, res.State).Inc()
	d.store(ctx, res, log)
}

// store сохраняет состояние; ошибка хранилища не прерывает выполнение.
func (d *Dispatcher) store(ctx context.Context, res *model.TaskResult, log *slog.Logger) {
	// Итоговое состояние сохраняем даже после отмены контекста задачи
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.backend.Store(storeCtx, res); err != nil {
		log.Error("Ошибка сохранения состояния задачи",
			slog.String("state", res.State),
			slog.String("error", err.Error()),
		)
	}
}

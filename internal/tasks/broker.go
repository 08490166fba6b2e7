package tasks

import (
	"context"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// Broker доставляет сообщения задач исполнителям.
type Broker interface {
	// Publish ставит сообщение в очередь msg.Queue.
	Publish(ctx context.Context, msg *model.TaskMessage) error
	// Consume ждёт следующее сообщение очереди. Если за интервал опроса
	// сообщений не появилось, возвращает ErrEmpty.
	Consume(ctx context.Context, queue string) (*Delivery, error)
}

// Recoverer — брокер, умеющий вернуть в очередь сообщения, взятые
// в работу и не подтверждённые (например, после аварийной остановки).
type Recoverer interface {
	Recover(ctx context.Context, queue string) (int, error)
}

// Delivery — полученное сообщение. Подтверждается после выполнения задачи.
type Delivery struct {
	Message *model.TaskMessage

	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

// Ack подтверждает обработку сообщения.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack возвращает сообщение в очередь.
func (d *Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}

// Backend хранит состояния и результаты задач.
type Backend interface {
	// Store сохраняет состояние задачи.
	Store(ctx context.Context, res *model.TaskResult) error
	// Load возвращает состояние задачи; неизвестная задача — PENDING.
	Load(ctx context.Context, taskID string) (*model.TaskResult, error)
}

// Purger — хранилище результатов с явной очисткой устаревших записей.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

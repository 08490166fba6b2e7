// postgres.go — брокер и хранилище результатов на PostgreSQL
// (таблицы task_queue и task_results).
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

// PostgresBroker — очередь в таблице task_queue с захватом через SKIP LOCKED.
type PostgresBroker struct {
	queue        repository.TaskQueueRepository
	pollInterval time.Duration
}

// NewPostgresBroker создаёт брокер поверх репозитория очереди.
func NewPostgresBroker(queue repository.TaskQueueRepository) *PostgresBroker {
	return &PostgresBroker{queue: queue, pollInterval: defaultPollTimeout}
}

func (b *PostgresBroker) Publish(ctx context.Context, msg *model.TaskMessage) error {
	return b.queue.Enqueue(ctx, msg)
}

func (b *PostgresBroker) Consume(ctx context.Context, queue string) (*Delivery, error) {
	rowID, msg, err := b.queue.Claim(ctx, queue)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		timer := time.NewTimer(b.pollInterval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrEmpty
		}
	}

	return &Delivery{
		Message: msg,
		ack: func(ctx context.Context) error {
			return b.queue.Complete(ctx, rowID)
		},
		nack: func(ctx context.Context) error {
			return b.queue.Release(ctx, rowID)
		},
	}, nil
}

// PostgresBackend — результаты задач в таблице task_results.
// Записи старше ttl считаются отсутствующими и удаляются Purge.
type PostgresBackend struct {
	results repository.TaskResultRepository
	ttl     time.Duration
}

// NewPostgresBackend создаёт хранилище результатов поверх репозитория.
func NewPostgresBackend(results repository.TaskResultRepository, ttl time.Duration) *PostgresBackend {
	return &PostgresBackend{results: results, ttl: ttl}
}

func (p *PostgresBackend) Store(ctx context.Context, res *model.TaskResult) error {
	return p.results.Save(ctx, res)
}

func (p *PostgresBackend) Load(ctx context.Context, taskID string) (*model.TaskResult, error) {
	// task_id — колонка uuid: произвольная строка не может быть известной задачей
	if _, err := uuid.Parse(taskID); err != nil {
		return pendingResult(taskID), nil
	}
	res, err := p.results.Get(ctx, taskID, time.Now().UTC().Add(-p.ttl))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return pendingResult(taskID), nil
		}
		return nil, err
	}
	return res, nil
}

// Purge удаляет результаты старше ttl.
func (p *PostgresBackend) Purge(ctx context.Context) (int64, error) {
	return p.results.DeleteOlderThan(ctx, time.Now().UTC().Add(-p.ttl))
}

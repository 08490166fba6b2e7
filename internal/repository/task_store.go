// task_store.go — хранение фоновых задач в PostgreSQL:
// очередь сообщений (task_queue) и результаты (task_results).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// TaskQueueRepository — очередь сообщений задач в таблице task_queue.
type TaskQueueRepository interface {
	// Enqueue добавляет сообщение в очередь.
	Enqueue(ctx context.Context, msg *model.TaskMessage) error
	// Claim захватывает следующее сообщение очереди queue.
	// Возвращает ErrNotFound, если очередь пуста.
	Claim(ctx context.Context, queue string) (int64, *model.TaskMessage, error)
	// Complete помечает сообщение обработанным.
	Complete(ctx context.Context, rowID int64) error
	// Release возвращает сообщение в очередь.
	Release(ctx context.Context, rowID int64) error
}

type taskQueueRepo struct {
	db DBTX
}

// NewTaskQueueRepository создаёт репозиторий очереди задач.
func NewTaskQueueRepository(db DBTX) TaskQueueRepository {
	return &taskQueueRepo{db: db}
}

func (r *taskQueueRepo) Enqueue(ctx context.Context, msg *model.TaskMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO task_queue (queue, task_id, name, payload, pgq_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.Queue, msg.ID, msg.Name, msg.Payload, QueueStatusPending, msg.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("ошибка постановки задачи %s в очередь: %w", msg.ID, err)
	}
	return nil
}

func (r *taskQueueRepo) Claim(ctx context.Context, queue string) (int64, *model.TaskMessage, error) {
	q, err := NewPGQueue(r.db, "task_queue", "id", "pgq_status", WithFilter("queue", queue))
	if err != nil {
		return 0, nil, err
	}
	rowID, ok, err := q.Claim(ctx)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, ErrNotFound
	}

	msg := &model.TaskMessage{}
	err = r.db.QueryRow(ctx, `
		SELECT task_id::text, name, queue, payload, created_at
		FROM task_queue WHERE id = $1`, rowID,
	).Scan(&msg.ID, &msg.Name, &msg.Queue, &msg.Payload, &msg.EnqueuedAt)
	if err != nil {
		return 0, nil, fmt.Errorf("ошибка чтения задачи из очереди: %w", err)
	}
	return rowID, msg, nil
}

func (r *taskQueueRepo) Complete(ctx context.Context, rowID int64) error {
	q, err := NewPGQueue(r.db, "task_queue", "id", "pgq_status")
	if err != nil {
		return err
	}
	return q.Complete(ctx, rowID)
}

func (r *taskQueueRepo) Release(ctx context.Context, rowID int64) error {
	q, err := NewPGQueue(r.db, "task_queue", "id", "pgq_status")
	if err != nil {
		return err
	}
	return q.Release(ctx, rowID)
}

// TaskResultRepository — результаты задач в таблице task_results.
type TaskResultRepository interface {
	// Save создаёт или перезаписывает состояние задачи.
	Save(ctx context.Context, res *model.TaskResult) error
	// Get возвращает состояние задачи, обновлённое не раньше notBefore.
	Get(ctx context.Context, taskID string, notBefore time.Time) (*model.TaskResult, error)
	// DeleteOlderThan удаляет результаты, не обновлявшиеся с before.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type taskResultRepo struct {
	db DBTX
}

// NewTaskResultRepository создаёт репозиторий результатов задач.
func NewTaskResultRepository(db DBTX) TaskResultRepository {
	return &taskResultRepo{db: db}
}

func (r *taskResultRepo) Save(ctx context.Context, res *model.TaskResult) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO task_results (task_id, name, state, meta, result, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO UPDATE
		SET name = EXCLUDED.name, state = EXCLUDED.state, meta = EXCLUDED.meta,
			result = EXCLUDED.result, error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`,
		res.TaskID, res.Name, res.State, res.Meta, res.Result, res.Error, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата задачи %s: %w", res.TaskID, err)
	}
	return nil
}

func (r *taskResultRepo) Get(ctx context.Context, taskID string, notBefore time.Time) (*model.TaskResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT task_id::text AS task_id, name, state, meta, result, error, updated_at
		FROM task_results
		WHERE task_id = $1 AND updated_at >= $2`, taskID, notBefore)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения результата задачи %s: %w", taskID, err)
	}
	res, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.TaskResult])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования результата задачи: %w", err)
	}
	return res, nil
}

func (r *taskResultRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM task_results WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки результатов задач: %w", err)
	}
	return tag.RowsAffected(), nil
}

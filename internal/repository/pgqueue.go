// pgqueue.go — очередь поверх обычной таблицы PostgreSQL.
// Захват записи — UPDATE ... FROM (SELECT ... FOR UPDATE SKIP LOCKED),
// поэтому несколько воркеров не получают одну и ту же запись.
// Имена таблиц и колонок подставляются в SQL только после проверки
// по белому списку; значения передаются параметрами.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Статусы записи очереди (колонка pgq_status).
const (
	QueueStatusPending    = 0
	QueueStatusProcessing = 1
	QueueStatusCompleted  = 2
)

// queueSchema — допустимые идентификаторы одной таблицы-очереди.
type queueSchema struct {
	idColumns     map[string]bool
	statusColumns map[string]bool
	filterColumns map[string]bool
}

// queueTables — белый список таблиц-очередей.
var queueTables = map[string]queueSchema{
	"task_queue": {
		idColumns:     map[string]bool{"id": true},
		statusColumns: map[string]bool{"pgq_status": true},
		filterColumns: map[string]bool{"queue": true, "name": true},
	},
	"finereader_queue": {
		idColumns:     map[string]bool{"id": true, "tbc_id": true},
		statusColumns: map[string]bool{"pgq_status": true},
		filterColumns: map[string]bool{"tbc_id": true},
	},
}

// PGQueue — очередь на таблице с колонкой статуса.
type PGQueue struct {
	db           DBTX
	table        string
	idColumn     string
	statusColumn string
	filterColumn string
	filterValue  any
}

// QueueOption — опция PGQueue.
type QueueOption func(*PGQueue)

// WithFilter ограничивает захват записями, где column = value.
// Колонка проверяется по белому списку в NewPGQueue.
func WithFilter(column string, value any) QueueOption {
	return func(q *PGQueue) {
		q.filterColumn = column
		q.filterValue = value
	}
}

// NewPGQueue создаёт очередь, проверяя идентификаторы по белому списку.
func NewPGQueue(db DBTX, table, idColumn, statusColumn string, opts ...QueueOption) (*PGQueue, error) {
	schema, ok := queueTables[table]
	if !ok {
		return nil, fmt.Errorf("%w: таблица %q", ErrIdentifier, table)
	}
	if !schema.idColumns[idColumn] {
		return nil, fmt.Errorf("%w: колонка id %q", ErrIdentifier, idColumn)
	}
	if !schema.statusColumns[statusColumn] {
		return nil, fmt.Errorf("%w: колонка статуса %q", ErrIdentifier, statusColumn)
	}

	q := &PGQueue{db: db, table: table, idColumn: idColumn, statusColumn: statusColumn}
	for _, opt := range opts {
		opt(q)
	}
	if q.filterColumn != "" && !schema.filterColumns[q.filterColumn] {
		return nil, fmt.Errorf("%w: колонка фильтра %q", ErrIdentifier, q.filterColumn)
	}
	return q, nil
}

// claimQuery строит запрос захвата. Идентификаторы уже проверены.
func (q *PGQueue) claimQuery() (string, []any) {
	args := []any{QueueStatusPending, QueueStatusProcessing}
	filter := ""
	if q.filterColumn != "" {
		filter = fmt.Sprintf(" AND %s = $3", q.filterColumn)
		args = append(args, q.filterValue)
	}

	query := fmt.Sprintf(`
		WITH next_task AS (
			SELECT %[2]s FROM %[1]s
			WHERE %[3]s = $1%[4]s
			ORDER BY %[2]s
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE %[1]s SET %[3]s = $2
		FROM next_task
		WHERE %[1]s.%[2]s = next_task.%[2]s
		RETURNING %[1]s.%[2]s`,
		q.table, q.idColumn, q.statusColumn, filter)
	return query, args
}

// Claim захватывает следующую запись в статусе pending и переводит её
// в processing. Возвращает false, если очередь пуста.
func (q *PGQueue) Claim(ctx context.Context) (int64, bool, error) {
	query, args := q.claimQuery()

	var id int64
	if err := q.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("ошибка захвата записи из %s: %w", q.table, err)
	}
	return id, true, nil
}

// Complete помечает запись завершённой.
func (q *PGQueue) Complete(ctx context.Context, id int64) error {
	return q.setStatus(ctx, id, QueueStatusCompleted)
}

// Release возвращает запись в pending (например, при остановке воркера).
func (q *PGQueue) Release(ctx context.Context, id int64) error {
	return q.setStatus(ctx, id, QueueStatusPending)
}

func (q *PGQueue) setStatus(ctx context.Context, id int64, status int) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", q.table, q.statusColumn, q.idColumn)
	tag, err := q.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса записи %d в %s: %w", id, q.table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

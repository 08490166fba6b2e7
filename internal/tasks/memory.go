// memory.go — брокер и хранилище результатов в памяти процесса.
// Годятся для одного экземпляра сервиса и для тестов.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

const (
	defaultMemoryQueueSize = 1024
	defaultPollTimeout     = time.Second
)

// MemoryBroker — очереди на буферизованных каналах.
type MemoryBroker struct {
	mu          sync.Mutex
	queues      map[string]chan *model.TaskMessage
	size        int
	pollTimeout time.Duration
}

// NewMemoryBroker создаёт брокер с очередями ёмкостью size сообщений.
func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryBroker{
		queues:      make(map[string]chan *model.TaskMessage),
		size:        size,
		pollTimeout: defaultPollTimeout,
	}
}

func (b *MemoryBroker) queue(name string) chan *model.TaskMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan *model.TaskMessage, b.size)
		b.queues[name] = q
	}
	return q
}

// Publish кладёт сообщение в очередь без блокировки.
func (b *MemoryBroker) Publish(_ context.Context, msg *model.TaskMessage) error {
	select {
	case b.queue(msg.Queue) <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume ждёт сообщение не дольше интервала опроса.
func (b *MemoryBroker) Consume(ctx context.Context, queue string) (*Delivery, error) {
	timer := time.NewTimer(b.pollTimeout)
	defer timer.Stop()

	q := b.queue(queue)
	select {
	case msg := <-q:
		return &Delivery{
			Message: msg,
			nack: func(ctx context.Context) error {
				return b.Publish(ctx, msg)
			},
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrEmpty
	}
}

// Len возвращает число сообщений в очереди.
func (b *MemoryBroker) Len(queue string) int {
	return len(b.queue(queue))
}

type memoryEntry struct {
	result  model.TaskResult
	expires time.Time
}

// MemoryBackend — результаты задач в памяти с ограниченным временем жизни.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryBackend создаёт хранилище результатов; ttl — время жизни записи.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryBackend) Store(_ context.Context, res *model.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[res.TaskID] = memoryEntry{result: *res, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryBackend) Load(_ context.Context, taskID string) (*model.TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[taskID]
	if !ok || m.now().After(e.expires) {
		delete(m.entries, taskID)
		return pendingResult(taskID), nil
	}
	res := e.result
	return &res, nil
}

// Purge удаляет просроченные записи.
func (m *MemoryBackend) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for id, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

// redis.go — брокер и хранилище результатов на Redis.
//
// Очередь — список tbc:queue:{name}. Исполнитель атомарно переносит
// сообщение в список tbc:queue:{name}:processing (BLMOVE) и удаляет его
// оттуда только после выполнения задачи (LREM). Сообщения, оставшиеся
// в processing после аварийной остановки, возвращает Recover.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

const (
	redisQueuePrefix  = "tbc:queue:"
	redisResultPrefix = "tbc:task-meta:"
)

func redisQueueKey(queue string) string      { return redisQueuePrefix + queue }
func redisProcessingKey(queue string) string { return redisQueuePrefix + queue + ":processing" }

// RedisBroker — брокер на списках Redis.
type RedisBroker struct {
	client      redis.UniversalClient
	pollTimeout time.Duration
}

// NewRedisBroker создаёт брокер поверх клиента Redis.
func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{client: client, pollTimeout: defaultPollTimeout}
}

func (b *RedisBroker) Publish(ctx context.Context, msg *model.TaskMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задачи %s: %w", msg.ID, err)
	}
	if err := b.client.LPush(ctx, redisQueueKey(msg.Queue), data).Err(); err != nil {
		return fmt.Errorf("ошибка публикации задачи %s в Redis: %w", msg.ID, err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, queue string) (*Delivery, error) {
	raw, err := b.client.BLMove(ctx, redisQueueKey(queue), redisProcessingKey(queue),
		"RIGHT", "LEFT", b.pollTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ошибка чтения очереди %s из Redis: %w", queue, err)
	}

	var msg model.TaskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Битое сообщение убираем, иначе оно будет возвращаться бесконечно
		b.client.LRem(ctx, redisProcessingKey(queue), 1, raw)
		return nil, fmt.Errorf("некорректное сообщение в очереди %s: %w", queue, err)
	}

	return &Delivery{
		Message: &msg,
		ack: func(ctx context.Context) error {
			return b.client.LRem(ctx, redisProcessingKey(queue), 1, raw).Err()
		},
		nack: func(ctx context.Context) error {
			_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LRem(ctx, redisProcessingKey(queue), 1, raw)
				pipe.RPush(ctx, redisQueueKey(queue), raw)
				return nil
			})
			return err
		},
	}, nil
}

// Recover возвращает в очередь все неподтверждённые сообщения.
func (b *RedisBroker) Recover(ctx context.Context, queue string) (int, error) {
	n := 0
	for {
		err := b.client.LMove(ctx, redisProcessingKey(queue), redisQueueKey(queue), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("ошибка возврата сообщений в очередь %s: %w", queue, err)
		}
		n++
	}
}

// RedisBackend — результаты задач в ключах Redis с временем жизни.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisBackend создаёт хранилище результатов; ttl — время жизни ключа.
func NewRedisBackend(client redis.UniversalClient, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (r *RedisBackend) Store(ctx context.Context, res *model.TaskResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("ошибка сериализации результата %s: %w", res.TaskID, err)
	}
	if err := r.client.Set(ctx, redisResultPrefix+res.TaskID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения результата %s в Redis: %w", res.TaskID, err)
	}
	return nil
}

func (r *RedisBackend) Load(ctx context.Context, taskID string) (*model.TaskResult, error) {
	data, err := r.client.Get(ctx, redisResultPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return pendingResult(taskID), nil
		}
		return nil, fmt.Errorf("ошибка чтения результата %s из Redis: %w", taskID, err)
	}
	var res model.TaskResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("некорректный результат задачи %s: %w", taskID, err)
	}
	return &res, nil
}

// RedisReadinessChecker — проверка готовности Redis для health endpoint.
type RedisReadinessChecker struct {
	client redis.UniversalClient
}

// NewRedisReadinessChecker создаёт проверку готовности Redis.
func NewRedisReadinessChecker(client redis.UniversalClient) *RedisReadinessChecker {
	return &RedisReadinessChecker{client: client}
}

// CheckReady выполняет PING. Возвращает статус ("ok", "fail") и сообщение.
func (c *RedisReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}

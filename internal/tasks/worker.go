// worker.go — пул исполнителей фоновых задач.
//
// WorkerPool запускает N горутин, каждая забирает сообщения из брокера,
// выполняет задачу через Dispatcher и подтверждает сообщение.
// Сообщение, выполнение которого прервала остановка пула, возвращается
// в очередь.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	consumeErrorBackoff = time.Second
	purgeInterval       = 10 * time.Minute
)

// WorkerPool — пул исполнителей очереди.
type WorkerPool struct {
	dispatcher *Dispatcher
	broker     Broker
	backend    Backend
	queue      string
	workers    int
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool создаёт пул из workers исполнителей очереди queue.
func NewWorkerPool(dispatcher *Dispatcher, broker Broker, backend Backend, queue string, workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		dispatcher: dispatcher,
		broker:     broker,
		backend:    backend,
		queue:      queue,
		workers:    workers,
		logger:     logger.With(slog.String("component", "worker_pool")),
	}
}

// Start запускает исполнителей. Вызывается один раз при старте приложения.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	if r, ok := p.broker.(Recoverer); ok {
		n, err := r.Recover(ctx, p.queue)
		if err != nil {
			p.logger.Error("Ошибка возврата неподтверждённых задач", slog.String("error", err.Error()))
		} else if n > 0 {
			p.logger.Info("Неподтверждённые задачи возвращены в очередь", slog.Int("count", n))
		}
	}

	for i := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx, i)
		}()
	}

	if purger, ok := p.backend.(Purger); ok {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.purgeLoop(ctx, purger)
		}()
	}

	p.logger.Info("Пул исполнителей задач запущен",
		slog.String("queue", p.queue),
		slog.Int("workers", p.workers),
	)
}

// Stop останавливает исполнителей и ждёт завершения текущих задач.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Пул исполнителей задач остановлен")
}

func (p *WorkerPool) loop(ctx context.Context, worker int) {
	log := p.logger.With(slog.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.broker.Consume(ctx, p.queue)
		if err != nil {
			switch {
			case errors.Is(err, ErrEmpty):
			case ctx.Err() != nil:
				return
			default:
				log.Error("Ошибка получения задачи", slog.String("error", err.Error()))
				select {
				case <-ctx.Done():
					return
				case <-time.After(consumeErrorBackoff):
				}
			}
			continue
		}

		res := p.dispatcher.Execute(ctx, d.Message)

		// Подтверждение выполняется и после остановки пула
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if ctx.Err() != nil && res.State == StateFailure {
			err = d.Nack(ackCtx)
		} else {
			err = d.Ack(ackCtx)
		}
		cancel()
		if err != nil {
			log.Error("Ошибка подтверждения задачи",
				slog.String("task_id", d.Message.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *WorkerPool) purgeLoop(ctx context.Context, purger Purger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.Purge(ctx)
			if err != nil {
				p.logger.Error("Ошибка очистки результатов задач", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				p.logger.Debug("Устаревшие результаты задач удалены", slog.Int64("count", n))
			}
		}
	}
}

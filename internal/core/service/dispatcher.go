package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
)

var (
	ErrQueueFull        = errors.New("fulfillment queue full")
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

const defaultJobTimeout = 5 * time.Second

type fulfillJob struct {
	ctx      context.Context
	orderID  int64
	location string
	reply    chan fulfillResult
}

type fulfillResult struct {
	order *domain.Order
	err   error
}

// Dispatcher runs fulfillments on a fixed pool of workers fed by a bounded queue.
type Dispatcher struct {
	engine  Fulfiller
	jobs    chan fulfillJob
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(engine Fulfiller, workers, queueSize int, jobTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	d := &Dispatcher{
		engine:  engine,
		jobs:    make(chan fulfillJob, queueSize),
		timeout: jobTimeout,
		logger:  logger,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	logger.Info("started fulfillment workers", zap.Int("workers", workers), zap.Int("queue_size", queueSize))

	return d
}

// Submit queues a fulfillment and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, orderID int64, location string) (*domain.Order, error) {
	job := fulfillJob{
		ctx:      ctx,
		orderID:  orderID,
		location: location,
		reply:    make(chan fulfillResult, 1),
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrDispatcherClosed
	}
	select {
	case d.jobs <- job:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return nil, fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}

	select {
	case res := <-job.reply:
		return res.order, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops intake, lets queued jobs finish and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("fulfillment workers stopped")
}

func (d *Dispatcher) workerLoop(id int) {
	for job := range d.jobs {
		if err := job.ctx.Err(); err != nil {
			job.reply <- fulfillResult{err: err}
			continue
		}

		ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
		order, err := d.engine.Fulfill(ctx, job.orderID, job.location)
		cancel()

		if err != nil {
			d.logger.Debug("fulfill failed", zap.Int("worker", id), zap.Int64("order_id", job.orderID), zap.Error(err))
		}
		job.reply <- fulfillResult{order: order, err: err}
	}
}

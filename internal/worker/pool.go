package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/queue"
)

// Handler executes one consumed task. Implementations must be safe for
// concurrent use; the pool calls Handle from many goroutines.
type Handler interface {
	Handle(ctx context.Context, task *queue.ConsumedTask) error
}

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively processing tasks.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Pool manages bounded concurrent task execution. Tasks are independent:
// one lead's pipeline failing never affects another's.
type Pool struct {
	config  Config
	handler Handler
	logger  logger.Logger
	state   atomic.Int32
	sem     chan struct{} // Semaphore for bounded concurrency
	wg      sync.WaitGroup
	stopCh  chan struct{}

	// Stats
	totalProcessed atomic.Int64
	totalSucceeded atomic.Int64
	totalFailed    atomic.Int64
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, handler Handler, log logger.Logger) (*Pool, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	p := &Pool{
		config:  cfg,
		handler: handler,
		logger:  log,
		sem:     make(chan struct{}, cfg.PoolSize),
		stopCh:  make(chan struct{}),
	}

	p.state.Store(int32(PoolStateStopped))

	return p, nil
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}

	p.logger.Info("worker pool started",
		logger.Int("pool_size", p.config.PoolSize),
	)

	return nil
}

// Stop gracefully stops the worker pool, waiting for in-flight tasks up to
// the drain timeout. Third-party calls already in flight run to completion.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}

	p.logger.Info("worker pool draining")

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool stop cancelled")
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn("worker pool drain timeout exceeded")
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// Submit submits a task for processing. Blocks while all workers are busy.
func (p *Pool) Submit(ctx context.Context, task *queue.ConsumedTask) error {
	if p.State() != PoolStateRunning {
		return errors.New("pool is not running")
	}

	select {
	case p.sem <- struct{}{}:
		// Got a slot
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return errors.New("pool is stopping")
	}

	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()

		p.process(task)
	}()

	return nil
}

// process runs one task with the configured timeout.
func (p *Pool) process(task *queue.ConsumedTask) {
	// Shutdown closes the submission path, not this context: an in-flight
	// task keeps its full timeout to finish.
	ctx, cancel := context.WithTimeout(context.Background(), p.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := p.handler.Handle(ctx, task)
	duration := time.Since(start)

	p.totalProcessed.Add(1)
	if err != nil {
		p.totalFailed.Add(1)
		p.logger.Error("task failed",
			logger.String("task_type", string(task.Task.Type)),
			logger.String("job_id", task.Task.JobID),
			logger.Duration("duration", duration),
			logger.Error(err),
		)
		return
	}

	p.totalSucceeded.Add(1)
	p.logger.Debug("task processed",
		logger.String("task_type", string(task.Task.Type)),
		logger.String("job_id", task.Task.JobID),
		logger.Duration("duration", duration),
	)
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// Stats summarizes pool activity.
type Stats struct {
	State     string `json:"state"`
	Processed int64  `json:"processed"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() Stats {
	return Stats{
		State:     p.State().String(),
		Processed: p.totalProcessed.Load(),
		Succeeded: p.totalSucceeded.Load(),
		Failed:    p.totalFailed.Load(),
	}
}

// Package workerpool provides a bounded worker pool for batch triage runs.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed
type Task struct {
	ID      string
	Payload interface{}
}

// Result represents the outcome of task processing
type Result struct {
	TaskID  string
	Success bool
	Error   error
	Data    interface{}
}

// WorkerFunc is the function signature for task processing
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for CLI batch evaluation
func DefaultConfig() Config {
	return Config{
		Workers:                 8,
		QueueSize:               256,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Pool manages a pool of workers for concurrent task processing
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	taskChan   chan *Task
	resultChan chan *Result
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
}

// New creates a new worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		resultChan: make(chan *Result, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit adds a task to the queue, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, task *Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	case p.taskChan <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	}
}

// Results returns the result channel
func (p *Pool) Results() <-chan *Result {
	return p.resultChan
}

// Close signals that no more tasks will be submitted; workers drain the
// queue and the result channel closes when they finish.
func (p *Pool) Close() {
	close(p.taskChan)
	go func() {
		p.wg.Wait()
		close(p.resultChan)
	}()
}

// Stop aborts processing without draining the queue.
func (p *Pool) Stop() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.workerFunc(p.ctx, task)
		if result.Success {
			atomic.AddInt64(&p.tasksCompleted, 1)
		} else {
			atomic.AddInt64(&p.tasksFailed, 1)
			p.logger.Warn("task failed",
				zap.String("task_id", task.ID),
				zap.Int("worker_id", id),
				zap.Error(result.Error))
		}
		p.resultChan <- result
	}
}

// Stats holds pool counters.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
	}
}

// Package workerpool runs typed jobs on a fixed set of goroutines, retrying
// failed jobs with a linear backoff.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPoolStopped is returned by Do after Stop
	ErrPoolStopped = errors.New("pool is shutting down")
	// ErrQueueFull is returned by Do when no queue slot is free
	ErrQueueFull = errors.New("job queue is full")
)

// Func processes one job input. Errors wrapped with Permanent are not retried.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the pool gives up on the job immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Config sizes the pool
type Config struct {
	Workers   int
	QueueSize int
	// MaxRetries is the number of extra attempts after the first failure
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between attempts
	RetryDelay      time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for one clinic's pharmacy traffic
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       256,
		MaxRetries:      3,
		RetryDelay:      200 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

type outcome[Out any] struct {
	value    Out
	attempts int
	err      error
}

type job[In, Out any] struct {
	ctx   context.Context
	id    string
	in    In
	reply chan outcome[Out]
}

// Pool is a fixed-size pool processing In values into Out values
type Pool[In, Out any] struct {
	cfg    Config
	fn     Func[In, Out]
	logger *zap.Logger

	jobs     chan job[In, Out]
	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool

	depth   atomic.Int64
	retried atomic.Int64
	failed  atomic.Int64
}

// New creates a pool; call Start before Do
func New[In, Out any](cfg Config, fn Func[In, Out], logger *zap.Logger) (*Pool[In, Out], error) {
	if fn == nil {
		return nil, errors.New("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return &Pool[In, Out]{
		cfg:    cfg,
		fn:     fn,
		logger: logger,
		jobs:   make(chan job[In, Out], cfg.QueueSize),
	}, nil
}

// Start launches the workers
func (p *Pool[In, Out]) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_size", p.cfg.QueueSize))
}

// Do queues in under id and waits for the final outcome. The returned
// attempts count includes the first try.
func (p *Pool[In, Out]) Do(ctx context.Context, id string, in In) (Out, int, error) {
	var zero Out
	j := job[In, Out]{ctx: ctx, id: id, in: in, reply: make(chan outcome[Out], 1)}
	if err := p.enqueue(j); err != nil {
		return zero, 0, err
	}

	select {
	case <-ctx.Done():
		return zero, 0, ctx.Err()
	case o := <-j.reply:
		return o.value, o.attempts, o.err
	}
}

func (p *Pool[In, Out]) enqueue(j job[In, Out]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- j:
		p.depth.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop lets queued jobs finish, waiting at most ShutdownTimeout
func (p *Pool[In, Out]) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("worker pool stopped")
		case <-time.After(p.cfg.ShutdownTimeout):
			err = fmt.Errorf("worker pool shutdown timed out after %s", p.cfg.ShutdownTimeout)
			p.logger.Warn("worker pool shutdown timed out", zap.Int64("queued", p.depth.Load()))
		}
	})
	return err
}

func (p *Pool[In, Out]) work(worker int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.depth.Add(-1)
		o := p.run(j)
		if o.err != nil {
			p.failed.Add(1)
			p.logger.Error("job failed",
				zap.String("job_id", j.id),
				zap.Int("worker", worker),
				zap.Int("attempts", o.attempts),
				zap.Error(o.err))
		}
		j.reply <- o
	}
}

func (p *Pool[In, Out]) run(j job[In, Out]) outcome[Out] {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome[Out]{attempts: attempt - 1, err: ctxErr}
		}
		var v Out
		v, err = p.fn(ctx, j.in)
		if err == nil {
			return outcome[Out]{value: v, attempts: attempt}
		}
		if IsPermanent(err) {
			return outcome[Out]{attempts: attempt, err: err}
		}
		if attempt > p.cfg.MaxRetries {
			return outcome[Out]{attempts: attempt, err: fmt.Errorf("gave up after %d attempts: %w", attempt, err)}
		}

		p.retried.Add(1)
		p.logger.Debug("retrying job", zap.String("job_id", j.id), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return outcome[Out]{attempts: attempt, err: ctx.Err()}
		case <-time.After(p.cfg.RetryDelay * time.Duration(attempt)):
		}
	}
}

// QueueDepth is the number of jobs waiting for a worker
func (p *Pool[In, Out]) QueueDepth() int {
	return int(p.depth.Load())
}

// Retried is the total number of retry attempts so far
func (p *Pool[In, Out]) Retried() int64 {
	return p.retried.Load()
}

// IsHealthy reports whether the queue is below 90% of its capacity
func (p *Pool[In, Out]) IsHealthy() bool {
	return float64(p.QueueDepth()) < 0.9*float64(p.cfg.QueueSize)
}

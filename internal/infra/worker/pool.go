// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

type Task func(ctx context.Context) error

var (
	ErrNilTask   = errors.New("nil task")
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

// Pool runs submitted tasks on a fixed number of goroutines. Stop drains
// whatever is still queued before returning, including overflow from Offer.
type Pool struct {
	wg       sync.WaitGroup
	overflow sync.WaitGroup
	mu       sync.RWMutex
	jobs     chan Task
	n        int
	stop     bool
	log      *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{jobs: make(chan Task, workers*4), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				if err := p.run(ctx, task); err != nil {
					p.log.Error().Err(err).Int("worker", id).Msg("task error")
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task(ctx)
}

// Stop refuses new work, lets queued tasks finish, and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stop {
		p.mu.Unlock()
		return
	}
	p.stop = true
	p.mu.Unlock()
	p.overflow.Wait()
	close(p.jobs)
	p.wg.Wait()
}

// Offer queues task without blocking the caller. When the queue is full the
// task waits for a slot on its own goroutine until ctx is done. onErr, if set,
// receives any submission failure, possibly from that goroutine.
func (p *Pool) Offer(ctx context.Context, task Task, onErr func(error)) {
	fail := func(err error) {
		if onErr != nil {
			onErr(err)
		}
	}
	if task == nil {
		fail(ErrNilTask)
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stop {
		fail(ErrStopped)
		return
	}
	select {
	case p.jobs <- task:
		return
	default:
	}

	p.log.Warn().Int("capacity", cap(p.jobs)).Msg("queue full, task waits for a free slot")
	// Added under the read lock so Stop cannot close the queue underneath.
	p.overflow.Add(1)
	go func() {
		defer p.overflow.Done()
		select {
		case p.jobs <- task:
		case <-ctx.Done():
			fail(fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err()))
		}
	}()
}

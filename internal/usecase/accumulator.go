package usecase

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"order-bridge/internal/domain/model"
	"order-bridge/internal/infra/metrics"
)

// FlushFunc receives a detached batch. It must not block for long: it runs
// on the timer goroutine (or the caller of Flush).
type FlushFunc func(batch model.Batch)

// Accumulator collects snippets and hands them off once no new snippet has
// arrived for the idle duration. Each Append restarts the countdown.
type Accumulator struct {
	idle    time.Duration
	onFlush FlushFunc
	log     *zerolog.Logger

	mu      sync.Mutex
	pending model.Batch
	timer   *time.Timer
	gen     uint64 // bumped on every Append/Flush/Stop; stale timers compare and bail
	stopped bool
}

func NewAccumulator(idle time.Duration, onFlush FlushFunc, logger *zerolog.Logger) *Accumulator {
	l := logger.With().Str("component", "accumulator").Logger()
	return &Accumulator{idle: idle, onFlush: onFlush, log: &l}
}

// Append adds s to the pending batch and restarts the idle timer.
// A snippet older than the previous one is stamped with the previous time.
func (a *Accumulator) Append(s model.ChatSnippet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		a.log.Warn().Str("type", string(s.Type)).Msg("append after stop, snippet dropped")
		return
	}

	if n := len(a.pending); n > 0 && s.Time.Before(a.pending[n-1].Time) {
		s.Time = a.pending[n-1].Time
	}
	a.pending = append(a.pending, s)

	a.gen++
	gen := a.gen
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.idle, func() { a.expire(gen) })

	metrics.IncSnippetAppended(string(s.Type))
	metrics.SetAccumulatorPending(len(a.pending))
}

func (a *Accumulator) expire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.detach()
	a.mu.Unlock()

	a.deliver(batch, "idle")
}

// Flush hands over the pending batch now. It returns the number of snippets
// flushed; nothing is delivered when the batch is empty.
func (a *Accumulator) Flush() int {
	a.mu.Lock()
	a.gen++
	batch := a.detach()
	a.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	a.deliver(batch, "manual")
	return len(batch)
}

// Pending reports how many snippets wait for the next flush.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels the timer and discards the pending batch, returning its size.
// Appends after Stop are dropped.
func (a *Accumulator) Stop() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.gen++
	n := len(a.detach())
	if n > 0 {
		a.log.Warn().Int("snippets", n).Msg("pending batch discarded")
	}
	return n
}

// detach swaps the pending slice for an empty one. Caller holds mu.
func (a *Accumulator) detach() model.Batch {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	batch := a.pending
	a.pending = nil
	metrics.SetAccumulatorPending(0)
	return batch
}

func (a *Accumulator) deliver(batch model.Batch, trigger string) {
	metrics.IncBatchFlushed(trigger)
	a.log.Info().
		Int("snippets", len(batch)).
		Int("images", batch.ImageCount()).
		Str("trigger", trigger).
		Msg("batch flushed")
	a.onFlush(batch)
}

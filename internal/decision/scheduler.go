package decision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dantte-lp/ribd/internal/task"
)

// Scheduler debounces decision-process runs (spec.md sections 3, 4.6,
// and 6: route or policy changes schedule a decision-process run after
// a short fixed delay rather than running synchronously on every
// single change, so a burst of neighbor updates collapses into one
// best-path pass). It follows the same single-timer-plus-singleflight
// shape as internal/linkstate's SPFDelay, simplified to a flat
// debounce instead of a multi-state FSM since spec.md does not ascribe
// a hold-down phase to the decision process.
type Scheduler struct {
	mu      sync.Mutex
	timer   *task.TimeoutTask
	pending bool

	debounce time.Duration
	run      func(ctx context.Context)
	sf       singleflight.Group
	logger   *slog.Logger
	ctx      context.Context
}

// NewScheduler constructs a Scheduler that invokes run, debounced by
// debounce, whenever Schedule is called.
func NewScheduler(ctx context.Context, debounce time.Duration, run func(ctx context.Context), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		debounce: debounce,
		run:      run,
		logger:   logger,
		ctx:      ctx,
	}
}

// Schedule requests a decision-process run after the debounce delay.
// Repeated calls while a timer is already pending coalesce into the
// one already armed.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return
	}
	s.pending = true
	if s.timer == nil {
		s.timer = task.NewTimeoutTask(s.debounce, s.onTimer)
		return
	}
	s.timer.Reset(s.debounce)
}

// onTimer runs on the timer's own goroutine.
func (s *Scheduler) onTimer() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()

	s.runCoalesced()
}

func (s *Scheduler) runCoalesced() {
	_, _, _ = s.sf.Do("decision", func() (any, error) {
		s.run(s.ctx)
		return nil, nil
	})
}

// RunNow forces an immediate decision-process run (e.g. for a
// northbound "resync" request), coalescing with any run already in
// flight from the debounce timer.
func (s *Scheduler) RunNow() {
	s.runCoalesced()
}

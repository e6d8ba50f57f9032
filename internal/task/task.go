// Package task provides the three concurrency-primitive handles used by
// every protocol instance: a plain cancellable Task, a one-shot
// TimeoutTask, and a periodic IntervalTask (spec.md section 4.1). A
// Supervised variant restarts its inner function after a panic so a
// single malformed input cannot take down a receive loop (spec.md
// section 7).
//
// All three handles follow the same contract: dropping (calling Cancel)
// stops the underlying activity no later than the next scheduling point,
// and nothing here holds a mutable borrow of caller state across a
// channel send (spec.md section 5).
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task wraps a goroutine running a caller-supplied function. Cancelling
// the Task stops the function via context cancellation; the function is
// expected to observe ctx.Done(). A Task that is never cancelled keeps
// running until its parent context ends.
type Task struct {
	cancel   context.CancelFunc
	done     chan struct{}
	detached bool
	mu       sync.Mutex
}

// Run starts fn in its own goroutine under a context derived from parent.
// fn must return when ctx is cancelled.
func Run(parent context.Context, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		fn(ctx)
	}()

	return t
}

// Detach marks the task as independent of its creator: subsequent Cancel
// calls from a parent's cleanup path are suppressed. Detach is a no-op
// once the task has already been cancelled.
func (t *Task) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
}

// Cancel stops the task's function, unless Detach was called. Safe to
// call multiple times and from multiple goroutines.
func (t *Task) Cancel() {
	t.mu.Lock()
	detached := t.detached
	t.mu.Unlock()

	if detached {
		return
	}
	t.cancel()
}

// Wait blocks until the task's function has returned.
func (t *Task) Wait() {
	<-t.done
}

// Done returns a channel closed when the task's function has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Supervised runs fn in a loop, restarting it if it panics. A logger
// receives one warning per restart. Supervised is used for receive loops
// fed by untrusted network input (spec.md section 7): "A panic inside a
// receive loop is caught by the supervised-task wrapper, logged, and
// treated as if the peer had closed."
//
// fn returning nil or a non-nil error (without panicking) stops the
// supervision loop; only a panic triggers a restart.
func Supervised(parent context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) error) *Task {
	return Run(parent, func(ctx context.Context) {
		for {
			if ctx.Err() != nil {
				return
			}

			if runOnce(ctx, logger, name, fn) {
				return
			}
		}
	})
}

// runOnce executes fn once, recovering from a panic. It returns true if
// the supervision loop should stop (clean return, error return, or
// context cancellation), false if fn panicked and should be restarted.
func runOnce(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) error) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("supervised task panicked, restarting",
				slog.String("task", name),
				slog.Any("panic", r),
			)
			stop = false
		}
	}()

	err := fn(ctx)
	if err != nil {
		logger.Warn("supervised task exited with error",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
	}
	return true
}

// TimeoutTask wraps a one-shot timer that invokes a callback when it
// fires. Reset and Remaining give the spec's "time left" introspection
// (spec.md section 4.1).
type TimeoutTask struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	lastDur  time.Duration
	fn       func()
	fired    bool
}

// NewTimeoutTask creates and arms a TimeoutTask that calls fn after d.
func NewTimeoutTask(d time.Duration, fn func()) *TimeoutTask {
	tt := &TimeoutTask{fn: fn, lastDur: d}
	tt.arm(d)
	return tt
}

// arm starts the underlying timer. Caller must hold tt.mu or be
// constructing tt.
func (tt *TimeoutTask) arm(d time.Duration) {
	tt.deadline = time.Now().Add(d)
	tt.fired = false
	tt.timer = time.AfterFunc(d, func() {
		tt.mu.Lock()
		tt.fired = true
		tt.mu.Unlock()
		tt.fn()
	})
}

// Reset rearms the timer. A zero duration reuses the last duration
// passed to NewTimeoutTask or a previous Reset ("no argument reuses the
// last duration", spec.md section 4.1). Calling Reset from inside the
// timer's own callback after it has already fired is a no-op, matching
// the invariant in spec.md section 4.1.
func (tt *TimeoutTask) Reset(d time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if tt.fired {
		// The callback already ran; resetting here would resurrect a
		// timer whose single-shot semantics the caller has already
		// observed as fired. Treat as a no-op per spec.md section 4.1.
		return
	}

	if d <= 0 {
		d = tt.lastDur
	}
	tt.lastDur = d

	tt.timer.Stop()
	tt.deadline = time.Now().Add(d)
	tt.timer = time.AfterFunc(d, func() {
		tt.mu.Lock()
		tt.fired = true
		tt.mu.Unlock()
		tt.fn()
	})
}

// Remaining returns the time left until the timer fires, or zero if the
// deadline has already passed.
func (tt *TimeoutTask) Remaining() time.Duration {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	left := time.Until(tt.deadline)
	if left < 0 {
		return 0
	}
	return left
}

// Cancel stops the timer. Safe to call multiple times.
func (tt *TimeoutTask) Cancel() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.timer.Stop()
}

// IntervalTask wraps a periodic timer. FireImmediately controls whether
// the first callback runs at construction time or only after the first
// full interval elapses.
type IntervalTask struct {
	mu       sync.Mutex
	ticker   *time.Ticker
	interval time.Duration
	deadline time.Time
	fn       func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewIntervalTask creates a periodic task that calls fn every d. If
// fireImmediately is true, fn is also called once at construction time.
func NewIntervalTask(d time.Duration, fireImmediately bool, fn func()) *IntervalTask {
	it := &IntervalTask{
		ticker:   time.NewTicker(d),
		interval: d,
		deadline: time.Now().Add(d),
		fn:       fn,
		stopCh:   make(chan struct{}),
	}

	go it.loop()

	if fireImmediately {
		go fn()
	}

	return it
}

func (it *IntervalTask) loop() {
	for {
		select {
		case <-it.stopCh:
			return
		case <-it.ticker.C:
			it.mu.Lock()
			it.deadline = time.Now().Add(it.interval)
			it.mu.Unlock()
			it.fn()
		}
	}
}

// Reset rearms the ticker. A zero duration reuses the current interval.
func (it *IntervalTask) Reset(d time.Duration) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if d <= 0 {
		d = it.interval
	}
	it.interval = d
	it.deadline = time.Now().Add(d)
	it.ticker.Reset(d)
}

// Remaining returns the time left until the next tick, or zero if
// overdue.
func (it *IntervalTask) Remaining() time.Duration {
	it.mu.Lock()
	defer it.mu.Unlock()

	left := time.Until(it.deadline)
	if left < 0 {
		return 0
	}
	return left
}

// Cancel stops the ticker and its goroutine. Safe to call multiple times.
func (it *IntervalTask) Cancel() {
	it.ticker.Stop()
	it.stopOnce.Do(func() { close(it.stopCh) })
}

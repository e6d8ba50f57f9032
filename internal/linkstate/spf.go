package linkstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dantte-lp/ribd/internal/task"
)

// SPFState is the SPF delay FSM's state (spec.md section 4.5).
type SPFState int

const (
	SPFQuiet SPFState = iota
	SPFShortWait
	SPFLongWait
)

func (s SPFState) String() string {
	switch s {
	case SPFQuiet:
		return "Quiet"
	case SPFShortWait:
		return "ShortWait"
	case SPFLongWait:
		return "LongWait"
	default:
		return "Unknown"
	}
}

type spfPhase int

const (
	phaseShortWait spfPhase = iota
	phaseHoldDown
)

// SPFDelay implements the three-state SPF delay FSM (spec.md section
// 4.5): topology changes in Quiet arm an initial_delay timer before
// the first SPF run; changes arriving during the post-run hold-down
// (LongWait) re-arm a shorter short_delay timer and push the FSM back
// through ShortWait; the hold-down elapsing with no further changes
// returns the FSM to Quiet.
//
// SPF runs are serialized through a singleflight.Group so that a
// caller invoking Run directly (e.g. from a northbound
// "recalculate now" request) while the delay timer's own run is in
// flight coalesces into the same computation rather than running SPF
// twice concurrently (spec.md section 4.5: "SPF runs are never
// concurrent with themselves").
type SPFDelay struct {
	mu    sync.Mutex
	state SPFState
	phase spfPhase
	timer *task.TimeoutTask

	initialDelay  time.Duration
	shortDelay    time.Duration
	shortHoldDown time.Duration

	runSPF func(ctx context.Context)
	sf     singleflight.Group
	logger *slog.Logger
	ctx    context.Context
}

// NewSPFDelay constructs an SPFDelay FSM. runSPF is invoked (via the
// singleflight group) whenever the ShortWait timer expires; it must
// not block indefinitely since it runs on the FSM's own timer
// goroutine.
func NewSPFDelay(ctx context.Context, initialDelay, shortDelay, shortHoldDown time.Duration, runSPF func(ctx context.Context), logger *slog.Logger) *SPFDelay {
	return &SPFDelay{
		state:         SPFQuiet,
		initialDelay:  initialDelay,
		shortDelay:    shortDelay,
		shortHoldDown: shortHoldDown,
		runSPF:        runSPF,
		logger:        logger,
		ctx:           ctx,
	}
}

// State returns the FSM's current state.
func (s *SPFDelay) State() SPFState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TopologyChanged notifies the FSM of a topology change, driving the
// transitions spec.md section 4.5 describes.
func (s *SPFDelay) TopologyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SPFQuiet:
		s.state = SPFShortWait
		s.arm(s.initialDelay, phaseShortWait)
	case SPFShortWait:
		// Already waiting for the first run; the existing timer
		// covers this change too.
	case SPFLongWait:
		s.state = SPFShortWait
		s.arm(s.shortDelay, phaseShortWait)
	}
}

// arm (re)schedules the FSM's single timer for phase p. Caller must
// hold s.mu.
func (s *SPFDelay) arm(d time.Duration, p spfPhase) {
	s.phase = p
	if s.timer == nil {
		s.timer = task.NewTimeoutTask(d, s.onTimer)
		return
	}
	s.timer.Cancel()
	s.timer = task.NewTimeoutTask(d, s.onTimer)
}

// onTimer runs on the timer's own goroutine; it must acquire s.mu
// itself before touching state.
func (s *SPFDelay) onTimer() {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()

	switch phase {
	case phaseShortWait:
		s.runCoalesced()

		s.mu.Lock()
		s.state = SPFLongWait
		s.arm(s.shortHoldDown, phaseHoldDown)
		s.mu.Unlock()
	case phaseHoldDown:
		s.mu.Lock()
		// Only return to Quiet if nothing re-armed the timer into
		// ShortWait in the interim (TopologyChanged holds s.mu too,
		// so this check and the transition below are atomic with
		// respect to a concurrent topology change).
		if s.state == SPFLongWait {
			s.state = SPFQuiet
		}
		s.mu.Unlock()
	}
}

// runCoalesced invokes runSPF through the singleflight group so a
// concurrent direct Run call collapses into the same execution.
func (s *SPFDelay) runCoalesced() {
	_, _, _ = s.sf.Do("spf", func() (any, error) {
		s.runSPF(s.ctx)
		return nil, nil
	})
}

// Run requests an immediate SPF computation outside the delay timer
// (e.g. for a northbound "recalculate now" operation), coalescing with
// any run already in flight from the delay FSM's own timer.
func (s *SPFDelay) Run() {
	s.runCoalesced()
}

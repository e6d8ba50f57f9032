// Package isis is the IS-IS instantiation of internal/linkstate's
// shared adjacency FSM, LSDB, flooding, and SPF-delay core (spec.md
// section 4.4): system-ID-keyed neighbors, DIS (Designated
// Intermediate System) election over broadcast circuits via
// linkstate.ElectRole, and the hold-timer-driven FSM transitions.
package isis

import (
	"log/slog"
	"time"

	"github.com/dantte-lp/ribd/internal/linkstate"
	"github.com/dantte-lp/ribd/internal/task"
)

// Neighbor is one IS-IS adjacency: the shared FSM plus the hold timer
// that drives it to Down on expiry (spec.md section 4.4's transition
// table: "any, hold-timer expired, Down").
type Neighbor struct {
	SystemID string
	Priority uint8

	FSM       *linkstate.FSM
	holdTimer *task.TimeoutTask
}

// NewNeighbor constructs a Neighbor whose hold timer, once armed via
// Hello, drops the adjacency via onTransition when it fires without
// being refreshed.
func NewNeighbor(systemID string, priority uint8, onTransition func(from, to linkstate.State)) *Neighbor {
	return &Neighbor{
		SystemID: systemID,
		Priority: priority,
		FSM:      linkstate.NewFSM(onTransition),
	}
}

// ReceiveHello drives the FSM on an incoming Hello PDU and (re)arms the
// hold timer for holdTime.
func (n *Neighbor) ReceiveHello(sawSelf bool, holdTime time.Duration, logger *slog.Logger) {
	ev := linkstate.EventOneWayHello
	if sawSelf {
		ev = linkstate.EventTwoWayHello
	}
	if _, err := n.FSM.Apply(ev); err != nil {
		// A two-way Hello arriving before a one-way Hello was
		// processed (reordered PDUs) is not itself a protocol error;
		// the adjacency catches up on the next Hello.
		if logger != nil {
			logger.Debug("isis: hello did not advance adjacency", slog.String("error", err.Error()))
		}
	}

	if n.holdTimer == nil {
		n.holdTimer = task.NewTimeoutTask(holdTime, n.expire)
		return
	}
	n.holdTimer.Reset(holdTime)
}

func (n *Neighbor) expire() {
	_, _ = n.FSM.Apply(linkstate.EventHoldTimerExpired)
}

// Down forces the adjacency down immediately (interface down, admin
// kill, or a BFD session reporting down — spec.md section 4.4).
func (n *Neighbor) Down(bfd bool) {
	ev := linkstate.EventInterfaceDown
	if bfd {
		ev = linkstate.EventBFDDown
	}
	_, _ = n.FSM.Apply(ev)
	if n.holdTimer != nil {
		n.holdTimer.Cancel()
	}
}

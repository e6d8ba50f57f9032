// Package ospf is the OSPF instantiation of internal/linkstate's
// shared adjacency FSM, LSDB, flooding, and SPF-delay core: router-ID
// keyed neighbors, DR/BDR election over broadcast segments via
// linkstate.ElectRole (run twice, once with the incumbent DR excluded
// to find the BDR), and dead-interval-driven FSM transitions.
package ospf

import (
	"log/slog"
	"time"

	"github.com/dantte-lp/ribd/internal/linkstate"
	"github.com/dantte-lp/ribd/internal/task"
)

// Neighbor is one OSPF adjacency: the shared FSM plus the dead-interval
// timer that drives it to Down on expiry.
type Neighbor struct {
	RouterID string
	Priority uint8

	FSM       *linkstate.FSM
	deadTimer *task.TimeoutTask
}

// NewNeighbor constructs a Neighbor whose dead-interval timer, once
// armed via Hello, drops the adjacency when it fires without being
// refreshed.
func NewNeighbor(routerID string, priority uint8, onTransition func(from, to linkstate.State)) *Neighbor {
	return &Neighbor{
		RouterID: routerID,
		Priority: priority,
		FSM:      linkstate.NewFSM(onTransition),
	}
}

// ReceiveHello drives the FSM on an incoming Hello and (re)arms the
// dead-interval timer.
func (n *Neighbor) ReceiveHello(sawSelf bool, deadInterval time.Duration, logger *slog.Logger) {
	ev := linkstate.EventOneWayHello
	if sawSelf {
		ev = linkstate.EventTwoWayHello
	}
	if _, err := n.FSM.Apply(ev); err != nil {
		if logger != nil {
			logger.Debug("ospf: hello did not advance adjacency", slog.String("error", err.Error()))
		}
	}

	if n.deadTimer == nil {
		n.deadTimer = task.NewTimeoutTask(deadInterval, n.expire)
		return
	}
	n.deadTimer.Reset(deadInterval)
}

// DBExchangeComplete signals that ExStart/Exchange/Loading finished,
// driving the adjacency to Full.
func (n *Neighbor) DBExchangeComplete() {
	_, _ = n.FSM.Apply(linkstate.EventDBExchangeComplete)
}

func (n *Neighbor) expire() {
	_, _ = n.FSM.Apply(linkstate.EventHoldTimerExpired)
}

// Down forces the adjacency down immediately.
func (n *Neighbor) Down(bfd bool) {
	ev := linkstate.EventInterfaceDown
	if bfd {
		ev = linkstate.EventBFDDown
	}
	_, _ = n.FSM.Apply(ev)
	if n.deadTimer != nil {
		n.deadTimer.Cancel()
	}
}

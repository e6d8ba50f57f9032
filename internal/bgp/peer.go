package bgp

import (
	"github.com/dantte-lp/ribd/internal/decision"
)

// Peer is one configured BGP neighbor's session-level state: the
// attributes the decision pipeline and update-queue need are tracked
// here, while transport (TCP connection, Marker/length framing, the
// Idle/Connect/Active/OpenSent/OpenConfirm/Established session FSM)
// belongs to a southbound transport adapter this package does not
// implement (SPEC_FULL.md scopes BGP to the decision-pipeline
// instantiation, not a full wire-transport stack).
type Peer struct {
	ID          string
	RemoteAS    uint32
	RouterID    string
	Established bool

	// Queue holds this peer's pending reach/unreach entries awaiting
	// the next decision-process export pass.
	Queue *decision.UpdateQueue
}

// NewPeer constructs a Peer with a fresh, empty update queue.
func NewPeer(id string, remoteAS uint32, routerID string) *Peer {
	return &Peer{
		ID:       id,
		RemoteAS: remoteAS,
		RouterID: routerID,
		Queue:    decision.NewUpdateQueue(),
	}
}

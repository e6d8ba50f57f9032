// Package ldp is a thin LDP (RFC 5036) adjacency and session layer
// over internal/linkstate's shared adjacency FSM, representative of a
// protocol whose "protocol-specific input channels" carry hello
// discovery and a separate TCP session negotiation without any
// database exchange or flooding of its own (SPEC_FULL.md section C).
//
// Only the discovery/session-establishment path and the transport-
// address disambiguation rule spec.md section 8 calls out as a
// boundary case are modelled; label distribution itself is out of
// scope the same way spec.md section 1 puts wire encodings out of
// scope.
package ldp

import (
	"log/slog"
	"time"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/linkstate"
	"github.com/dantte-lp/ribd/internal/task"
)

// TransportAddress is one Hello PDU's IPv4 or IPv6 Transport Address
// TLV (RFC 5036 section 3.5.2.1, RFC 7552 for the v6 TLV).
type TransportAddress struct {
	Family addrfamily.Family
	Addr   addrfamily.Address
}

// SelectTransportAddress implements spec.md section 8's boundary case:
// "LDP hello decodes both v4 and v6 transport-address TLVs and uses
// the one matching the packet's address family; any second TLV for
// the same family is ignored." tlvs is taken in wire order; the first
// TLV for pktFamily wins and later ones for that family are dropped.
func SelectTransportAddress(tlvs []TransportAddress, pktFamily addrfamily.Family) (TransportAddress, bool) {
	for _, t := range tlvs {
		if t.Family == pktFamily {
			return t, true
		}
	}
	return TransportAddress{}, false
}

// Session is one LDP peer's discovery-and-session adjacency: the
// shared FSM plus the hold timer hello discovery arms, exactly the
// shape internal/isis.Neighbor uses, minus DIS election (LDP has no
// designated router) and minus any LSDB (LDP has no flooding).
type Session struct {
	PeerLSR   string
	Transport TransportAddress

	FSM       *linkstate.FSM
	holdTimer *task.TimeoutTask
}

// NewSession constructs a Session whose FSM starts Down.
func NewSession(peerLSR string, onTransition func(from, to linkstate.State)) *Session {
	return &Session{
		PeerLSR: peerLSR,
		FSM:     linkstate.NewFSM(onTransition),
	}
}

// ReceiveHello drives discovery: a one-way Hello (no reciprocal LSR-ID
// seen yet) moves Down -> Initializing; a Hello that already carries
// this router's own discovered transport address moves Initializing ->
// TwoWay, at which point a transport-layer session adapter would open
// the TCP session. holdTime (re)arms the hold timer.
func (s *Session) ReceiveHello(bidirectional bool, transport TransportAddress, holdTime time.Duration, logger *slog.Logger) {
	s.Transport = transport

	ev := linkstate.EventOneWayHello
	if bidirectional {
		ev = linkstate.EventTwoWayHello
	}
	if _, err := s.FSM.Apply(ev); err != nil && logger != nil {
		logger.Debug("ldp: hello did not advance session", slog.String("error", err.Error()))
	}

	if s.holdTimer == nil {
		s.holdTimer = task.NewTimeoutTask(holdTime, s.expire)
		return
	}
	s.holdTimer.Reset(holdTime)
}

func (s *Session) expire() {
	_, _ = s.FSM.Apply(linkstate.EventHoldTimerExpired)
}

// SessionUp advances the adjacency to Full once the TCP session has
// been negotiated (Initialization/KeepAlive exchange completed): LDP
// has no DB-exchange phase of its own, so it reuses the abstract FSM's
// EventDBExchangeComplete to mean "session operational" (spec.md
// section 4.4 notes each instantiation elides the states it does not
// use; LDP elides ExStart/Exchange/Loading entirely, same as the
// isis/ospf instantiations collapse them to one event -- see
// internal/ospf's DBDComplete).
func (s *Session) SessionUp() {
	_, _ = s.FSM.Apply(linkstate.EventDBExchangeComplete)
}

// Down forces the session down (interface down, admin kill, or a BFD
// session reporting down), cancelling the hold timer.
func (s *Session) Down(bfd bool) {
	ev := linkstate.EventInterfaceDown
	if bfd {
		ev = linkstate.EventBFDDown
	}
	_, _ = s.FSM.Apply(ev)
	if s.holdTimer != nil {
		s.holdTimer.Cancel()
	}
}

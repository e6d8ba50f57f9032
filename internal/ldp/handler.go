package ldp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/ribd/internal/instance"
	"github.com/dantte-lp/ribd/internal/linkstate"
)

const (
	helloKind     = "ldp.hello"
	sessionUpKind = "ldp.sessionup"
)

// Hello is the ProtocolMsg payload for a received LDP Hello PDU (basic
// discovery over UDP, RFC 5036 section 2.4.1).
type Hello struct {
	PeerLSR       string
	Bidirectional bool
	Transports    []TransportAddress
	HoldTime      time.Duration
}

// SessionEstablished is the ProtocolMsg payload signalling the TCP
// session transport adapter completed Initialization/KeepAlive
// negotiation for a discovered peer.
type SessionEstablished struct {
	PeerLSR string
}

// Handler is the LDP instantiation described in SPEC_FULL.md section
// C: per-peer discovery/session Sessions driven by Hello and
// session-established events, with no LSDB or flooding of its own.
type Handler struct {
	mu sync.Mutex

	sessions map[string]*Session
	holdTime time.Duration
	logger   *slog.Logger
}

// NewHandler constructs an LDP Handler. holdTime is the hello
// hold-time default used until a peer's own Hello carries a different
// value.
func NewHandler(holdTime time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: make(map[string]*Session),
		holdTime: holdTime,
		logger:   logger,
	}
}

func (h *Handler) session(peerLSR string) *Session {
	s, ok := h.sessions[peerLSR]
	if ok {
		return s
	}
	s = NewSession(peerLSR, func(from, to linkstate.State) {
		h.logger.Debug("ldp session transition",
			slog.String("peer", peerLSR),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	h.sessions[peerLSR] = s
	return s
}

// SessionState returns peerLSR's current adjacency state, for metrics
// and tests.
func (h *Handler) SessionState(peerLSR string) (linkstate.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[peerLSR]
	if !ok {
		return linkstate.StateDown, false
	}
	return s.FSM.State(), true
}

func (h *Handler) HandleNorthbound(ctx context.Context, req instance.NorthboundRequest) {
	if req.Reply == nil {
		return
	}
	req.Reply <- instance.NorthboundReply{}
}

func (h *Handler) HandleSouthbound(ctx context.Context, msg instance.SouthboundMsg) {
	if msg.Kind != instance.SouthboundInterfaceLinkDown {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.Down(false)
	}
}

func (h *Handler) HandleProtocol(ctx context.Context, msg instance.ProtocolMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Kind {
	case helloKind:
		hello, ok := msg.Payload.(Hello)
		if !ok {
			return
		}
		holdTime := hello.HoldTime
		if holdTime <= 0 {
			holdTime = h.holdTime
		}
		s := h.session(hello.PeerLSR)
		var transport TransportAddress
		if len(hello.Transports) > 0 {
			transport = hello.Transports[0]
		}
		s.ReceiveHello(hello.Bidirectional, transport, holdTime, h.logger)

	case sessionUpKind:
		se, ok := msg.Payload.(SessionEstablished)
		if !ok {
			return
		}
		if s, ok := h.sessions[se.PeerLSR]; ok {
			s.SessionUp()
		}
	}
}

func (h *Handler) HandleTimer(ctx context.Context, msg instance.TimerMsg) {}

func (h *Handler) Shutdown(ctx context.Context) {
	h.logger.Info("ldp handler shutting down")
}

var _ instance.ProtocolHandler = (*Handler)(nil)

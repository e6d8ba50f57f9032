package bfd

import (
	"context"
	"log/slog"

	"github.com/dantte-lp/ribd/internal/instance"
)

// RxKind names the instance.ProtocolMsg.Kind a netio receiver delivers
// one decoded BFD Control packet under, when routed through the
// instance harness rather than straight into Manager.DemuxWithWire.
const RxKind = "bfd.rx"

// stateChangeKind names the instance.ProtocolMsg.Kind the Handler's
// own bridge goroutine uses to deliver a Manager.StateChanges() event
// into the instance event loop.
const stateChangeKind = "bfd.statechange"

// RxPacket is the instance.ProtocolMsg payload for RxKind: a decoded
// Control packet plus the transport metadata and raw wire bytes
// Manager.DemuxWithWire needs for authentication.
type RxPacket struct {
	Packet *ControlPacket
	Meta   PacketMeta
	Wire   []byte
}

// Handler is the instance.ProtocolHandler that runs the BFD session
// Manager inside an internal/instance.Harness, generalizing the
// teacher's bespoke manager loop (SPEC_FULL.md section C:
// "internal/bfd -- kept from the teacher, generalized to run inside an
// internal/instance.Harness rather than its own bespoke manager
// loop"). The Manager keeps owning session lifecycle, the FSM, and the
// packet codec exactly as in the teacher; the Handler is the thin
// shell that lets a harness start/stop it uniformly with every other
// protocol instance and forward its liveness transitions into the
// instance's protocol input channel (see RunBridge).
type Handler struct {
	mgr    *Manager
	logger *slog.Logger
}

// NewHandler constructs a Handler wrapping mgr. mgr's own goroutines
// (per-session FSM timers, the internal notify-channel dispatch) are
// unaffected; Handler only adds the harness-facing dispatch and a
// bridge goroutine forwarding mgr.StateChanges() into the instance.
func NewHandler(mgr *Manager, logger *slog.Logger) *Handler {
	return &Handler{mgr: mgr, logger: logger.With(slog.String("component", "bfd.handler"))}
}

// RunBridge forwards Manager.StateChanges() onto protocolOut as
// ProtocolMsg{Kind: stateChangeKind} until ctx is cancelled or the
// state-change channel closes. Callers run this in a goroutine bound
// to the same context as the harness so it unwinds on shutdown.
func (h *Handler) RunBridge(ctx context.Context, protocolOut chan<- instance.ProtocolMsg) {
	changes := h.mgr.StateChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case sc, ok := <-changes:
			if !ok {
				return
			}
			msg := instance.ProtocolMsg{Kind: stateChangeKind, Payload: sc}
			select {
			case protocolOut <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Handler) HandleNorthbound(ctx context.Context, req instance.NorthboundRequest) {
	if req.Reply == nil {
		return
	}
	req.Reply <- instance.NorthboundReply{}
}

// HandleSouthbound reacts to shared-bus events. An interface going
// down does not by itself tear down BFD sessions here: session
// lifecycle is owned by northbound reconciliation (ReconcileSessions),
// consistent with how every other protocol handler treats southbound
// input as informational rather than authoritative over its own state.
func (h *Handler) HandleSouthbound(ctx context.Context, msg instance.SouthboundMsg) {}

// HandleProtocol demultiplexes a received packet (RxKind) into the
// session manager. State-change bridge messages (stateChangeKind) are
// accepted and otherwise ignored: they pass through the harness so the
// event recorder captures them, and nothing republishes them as a
// SouthboundMsg.
func (h *Handler) HandleProtocol(ctx context.Context, msg instance.ProtocolMsg) {
	switch msg.Kind {
	case RxKind:
		rx, ok := msg.Payload.(RxPacket)
		if !ok {
			return
		}
		if err := h.mgr.DemuxWithWire(rx.Packet, rx.Meta, rx.Wire); err != nil {
			h.logger.Debug("bfd demux failed", slog.String("error", err.Error()))
		}
	case stateChangeKind:
		// Forwarded for observability; the harness owner decides
		// whether to republish this as a southbound event.
	}
}

func (h *Handler) HandleTimer(ctx context.Context, msg instance.TimerMsg) {}

// Shutdown drains every session to AdminDown (RFC 5880 section
// 6.8.16's graceful-shutdown diagnostic) before the harness
// unsubscribes from the southbound bus, per spec.md section 4.2's
// step 4.
func (h *Handler) Shutdown(ctx context.Context) {
	h.mgr.DrainAllSessions()
}

var _ instance.ProtocolHandler = (*Handler)(nil)

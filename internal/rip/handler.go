package rip

import (
	"context"
	"log/slog"
	"time"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/instance"
)

// responseKind names the ProtocolMsg.Kind a transport adapter uses to
// deliver one decoded RIP response RTE into the instance.
const responseKind = "rip.response"

// Response is the ProtocolMsg payload for one received RTE, along with
// the facts needed to apply spec.md section 4.7's rules: the
// interface it arrived on (for cost addition), the packet's source
// address (the fallback next hop), and a predicate for "is this
// address in a subnet attached to the receiving interface".
type Response struct {
	NeighborID    string
	RTE           RTE
	InterfaceCost uint32
	Source        addrfamily.Address
	InLocalSubnet func(addrfamily.Address) bool
}

// Handler is the RIP instantiation of the response-processing
// specialization in spec.md section 4.7, plugged into
// internal/instance as a ProtocolHandler.
type Handler struct {
	table     *Table
	triggered *TriggeredUpdate
	logger    *slog.Logger
	send      func(entries []Entry)
}

// NewHandler constructs a RIP Handler. send is invoked with the CHANGED
// subset on a triggered update; the handler itself sends no periodic or
// initial full-table update. invalidInterval/flushInterval are per
// spec.md section 6's "RIP uses invalid-interval per configuration;
// flush/garbage-collect per configuration".
func NewHandler(invalidInterval, flushInterval time.Duration, send func(entries []Entry), logger *slog.Logger) *Handler {
	h := &Handler{logger: logger, send: send}
	h.table = NewTable(invalidInterval, flushInterval,
		func(prefix addrfamily.Prefix) { h.triggered.Notify() },
		func(prefix addrfamily.Prefix) { h.triggered.Notify() },
		nil,
	)
	h.triggered = NewTriggeredUpdate(h.table, send)
	return h
}

// Table returns the handler's route table, for a periodic-update
// sender or northbound state read to enumerate.
func (h *Handler) Table() *Table { return h.table }

func (h *Handler) HandleNorthbound(ctx context.Context, req instance.NorthboundRequest) {
	if req.Reply == nil {
		return
	}
	req.Reply <- instance.NorthboundReply{}
}

func (h *Handler) HandleSouthbound(ctx context.Context, msg instance.SouthboundMsg) {}

// HandleProtocol applies spec.md section 4.7's response-processing
// rules to one received RTE.
func (h *Handler) HandleProtocol(ctx context.Context, msg instance.ProtocolMsg) {
	if msg.Kind != responseKind {
		return
	}
	r, ok := msg.Payload.(Response)
	if !ok {
		return
	}

	rte := r.RTE
	rte.Metric += r.InterfaceCost
	if rte.Metric > Infinity {
		rte.Metric = Infinity
	}

	nextHop := effectiveNextHop(rte, r.Source, r.InLocalSubnet)
	h.table.ProcessRTE(rte, r.NeighborID, nextHop)
}

func (h *Handler) HandleTimer(ctx context.Context, msg instance.TimerMsg) {}

func (h *Handler) Shutdown(ctx context.Context) {
	h.logger.Info("rip handler shutting down")
}

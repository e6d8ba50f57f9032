package vrrp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/instance"
)

const advertisementKind = "vrrp.advertisement"

// Advertisement is the ProtocolMsg payload for a received VRRP
// advertisement.
type Advertisement struct {
	VRID     uint8
	Priority uint8
	Source   addrfamily.Address
}

// Handler owns every virtual router configured on the instance,
// keyed by VRID, and dispatches received advertisements to the right
// one (spec.md's seventh protocol: a redundancy module sharing the
// instance harness with every other protocol, not a link-state
// engine).
type Handler struct {
	mu      sync.Mutex
	routers map[uint8]*VirtualRouter
	logger  *slog.Logger
}

// NewHandler constructs an empty vrrp Handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{routers: make(map[uint8]*VirtualRouter), logger: logger}
}

// AddVirtualRouter registers vr and starts it.
func (h *Handler) AddVirtualRouter(vr *VirtualRouter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routers[vr.VRID] = vr
	vr.Startup()
}

// RemoveVirtualRouter shuts down and deregisters the virtual router for
// vrid, if configured.
func (h *Handler) RemoveVirtualRouter(vrid uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if vr, ok := h.routers[vrid]; ok {
		vr.Shutdown()
		delete(h.routers, vrid)
	}
}

// VirtualRouter returns the registered virtual router for vrid.
func (h *Handler) VirtualRouter(vrid uint8) (*VirtualRouter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.routers[vrid]
	return vr, ok
}

func (h *Handler) HandleNorthbound(ctx context.Context, req instance.NorthboundRequest) {
	if req.Reply == nil {
		return
	}
	req.Reply <- instance.NorthboundReply{}
}

func (h *Handler) HandleSouthbound(ctx context.Context, msg instance.SouthboundMsg) {
	switch msg.Kind {
	case instance.SouthboundInterfaceLinkDown:
		h.mu.Lock()
		for _, vr := range h.routers {
			vr.Shutdown()
		}
		h.mu.Unlock()
	}
}

func (h *Handler) HandleProtocol(ctx context.Context, msg instance.ProtocolMsg) {
	if msg.Kind != advertisementKind {
		return
	}
	adv, ok := msg.Payload.(Advertisement)
	if !ok {
		return
	}

	h.mu.Lock()
	vr, ok := h.routers[adv.VRID]
	h.mu.Unlock()
	if !ok {
		return
	}
	vr.ReceiveAdvertisement(adv.Priority, adv.Source)
}

func (h *Handler) HandleTimer(ctx context.Context, msg instance.TimerMsg) {}

func (h *Handler) Shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, vr := range h.routers {
		vr.Shutdown()
	}
	h.logger.Info("vrrp handler shutting down")
}

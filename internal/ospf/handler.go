package ospf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/ribd/internal/instance"
	"github.com/dantte-lp/ribd/internal/linkstate"
)

const (
	helloKind = "ospf.hello"
	dbdKind   = "ospf.dbd"
	lsaKind   = "ospf.lsa"
	ackKind   = "ospf.ack"
)

// Hello is the ProtocolMsg payload for a received OSPF Hello packet.
type Hello struct {
	NeighborID   string
	RouterID     string
	Priority     uint8
	SawSelf      bool
	DeadInterval time.Duration
}

// DBDComplete is the ProtocolMsg payload signaling that database
// description exchange with a neighbor finished (spec.md section 4.4's
// ExStart/Exchange/Loading sequence, collapsed here to the single
// "exchange complete" event the abstract FSM exposes).
type DBDComplete struct {
	NeighborID string
}

// LSA is the ProtocolMsg payload for a received link-state
// advertisement.
type LSA struct {
	NeighborID string
	Record     linkstate.Record
}

// Ack is the ProtocolMsg payload for a received link-state
// acknowledgement.
type Ack struct {
	NeighborID string
	ID         linkstate.RecordID
}

// Handler is the OSPF instantiation of internal/linkstate's shared
// core: router-ID neighbors, DR/BDR election, and reliable flooding of
// LSAs with per-neighbor retransmission lists.
type Handler struct {
	mu sync.Mutex

	routerID string
	priority uint8

	lsdb       *linkstate.LSDB
	spf        *linkstate.SPFDelay
	neighbors  map[string]*Neighbor
	retransmit map[string]*linkstate.RetransmissionList

	dr, bdr       linkstate.RoleCandidate
	hasDR, hasBDR bool

	flood func(neighborID string, rec linkstate.Record)

	logger *slog.Logger
}

// NewHandler constructs an OSPF Handler.
func NewHandler(routerID string, priority uint8, initialDelay, shortDelay, shortHoldDown time.Duration, runSPF func(ctx context.Context), flood func(neighborID string, rec linkstate.Record), logger *slog.Logger) *Handler {
	ctx := context.Background()
	return &Handler{
		routerID:   routerID,
		priority:   priority,
		lsdb:       linkstate.NewLSDB(),
		spf:        linkstate.NewSPFDelay(ctx, initialDelay, shortDelay, shortHoldDown, runSPF, logger),
		neighbors:  make(map[string]*Neighbor),
		retransmit: make(map[string]*linkstate.RetransmissionList),
		flood:      flood,
		logger:     logger,
	}
}

// LSDB returns the handler's link-state database.
func (h *Handler) LSDB() *linkstate.LSDB { return h.lsdb }

func (h *Handler) neighbor(id string) *Neighbor {
	n, ok := h.neighbors[id]
	if ok {
		return n
	}
	n = NewNeighbor(id, 0, func(from, to linkstate.State) {
		h.onAdjacencyTransition(id, from, to)
	})
	h.neighbors[id] = n
	h.retransmit[id] = linkstate.NewRetransmissionList()
	return n
}

func (h *Handler) onAdjacencyTransition(neighborID string, from, to linkstate.State) {
	if to < linkstate.StateTwoWay && from < linkstate.StateTwoWay {
		return
	}
	h.electDRAndBDR()
}

// electDRAndBDR runs OSPF's two-pass election (spec.md section 4.4's
// tie-break rules, applied twice): the DR is elected first over every
// eligible candidate; the BDR is then elected over the same set with
// the DR excluded, so the BDR never doubles as the DR.
func (h *Handler) electDRAndBDR() {
	var candidates []linkstate.RoleCandidate
	self := linkstate.RoleCandidate{ID: h.routerID, Priority: h.priority, Incumbent: h.hasDR && h.dr.ID == h.routerID}
	candidates = append(candidates, self)
	for id, n := range h.neighbors {
		if n.FSM.State() < linkstate.StateTwoWay {
			continue
		}
		candidates = append(candidates, linkstate.RoleCandidate{
			ID:        id,
			Priority:  n.Priority,
			Incumbent: h.hasDR && h.dr.ID == id,
		})
	}

	dr, ok := linkstate.ElectRole(candidates, false)
	if !ok {
		return
	}
	h.dr, h.hasDR = dr, true

	var bdrCandidates []linkstate.RoleCandidate
	for _, c := range candidates {
		if c.ID == dr.ID {
			continue
		}
		c.Incumbent = h.hasBDR && h.bdr.ID == c.ID
		bdrCandidates = append(bdrCandidates, c)
	}
	if bdr, ok := linkstate.ElectRole(bdrCandidates, false); ok {
		h.bdr, h.hasBDR = bdr, true
	}
}

// DR and BDR return the currently elected designated and backup
// designated routers, if any adjacency has reached TwoWay.
func (h *Handler) DR() (linkstate.RoleCandidate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dr, h.hasDR
}

func (h *Handler) BDR() (linkstate.RoleCandidate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bdr, h.hasBDR
}

// NeighborState returns the adjacency state of neighborID.
func (h *Handler) NeighborState(neighborID string) (linkstate.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.neighbors[neighborID]
	if !ok {
		return linkstate.StateDown, false
	}
	return n.FSM.State(), true
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
		for _, n := range h.neighbors {
			n.Down(false)
		}
		h.mu.Unlock()
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
		n := h.neighbor(hello.NeighborID)
		n.Priority = hello.Priority
		n.ReceiveHello(hello.SawSelf, hello.DeadInterval, h.logger)
		h.electDRAndBDR()

	case dbdKind:
		dbd, ok := msg.Payload.(DBDComplete)
		if !ok {
			return
		}
		if n, ok := h.neighbors[dbd.NeighborID]; ok {
			n.DBExchangeComplete()
		}

	case lsaKind:
		lsa, ok := msg.Payload.(LSA)
		if !ok {
			return
		}
		if err := h.lsdb.Install(lsa.Record, time.Now()); err != nil {
			return
		}
		h.spf.TopologyChanged()
		for id := range h.neighbors {
			if id == lsa.NeighborID {
				continue
			}
			h.retransmit[id].Add(lsa.Record.ID)
			if h.flood != nil {
				h.flood(id, lsa.Record)
			}
		}

	case ackKind:
		ack, ok := msg.Payload.(Ack)
		if !ok {
			return
		}
		if rl, ok := h.retransmit[ack.NeighborID]; ok {
			rl.Ack(ack.ID)
		}
	}
}

func (h *Handler) HandleTimer(ctx context.Context, msg instance.TimerMsg) {}

func (h *Handler) Shutdown(ctx context.Context) {
	h.logger.Info("ospf handler shutting down")
}

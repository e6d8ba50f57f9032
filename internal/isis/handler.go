package isis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/ribd/internal/instance"
	"github.com/dantte-lp/ribd/internal/linkstate"
)

const (
	helloKind = "isis.hello"
	lspKind   = "isis.lsp"
	ackKind   = "isis.ack"
)

// Hello is the ProtocolMsg payload for a received IS-IS Hello PDU.
type Hello struct {
	NeighborID string
	SystemID   string
	Priority   uint8
	SawSelf    bool
	HoldTime   time.Duration
}

// LSP is the ProtocolMsg payload for a received link-state PDU.
type LSP struct {
	NeighborID string
	Record     linkstate.Record
}

// Ack is the ProtocolMsg payload for a received PSNP/acknowledgement.
type Ack struct {
	NeighborID string
	ID         linkstate.RecordID
}

// Handler is the IS-IS instantiation of internal/linkstate's adjacency
// FSM, LSDB, flooding, and SPF-delay core (spec.md section 4.4):
// system-ID neighbors, DIS election over broadcast circuits, and
// reliable flooding of LSPs with per-neighbor retransmission lists.
type Handler struct {
	mu sync.Mutex

	systemID string
	priority uint8

	lsdb       *linkstate.LSDB
	spf        *linkstate.SPFDelay
	neighbors  map[string]*Neighbor
	retransmit map[string]*linkstate.RetransmissionList

	dis    linkstate.RoleCandidate
	hasDIS bool

	flood func(neighborID string, rec linkstate.Record)

	metrics      MetricsReporter
	instanceName string

	logger *slog.Logger
}

// MetricsReporter receives the handler's adjacency-transition, LSDB,
// and SPF instrumentation. SetMetrics installs a live reporter; an
// unconfigured Handler uses a no-op implementation so metrics remain
// optional.
type MetricsReporter interface {
	RecordAdjacencyTransition(protocol, instance, from, to string)
	SetLSDBRecords(protocol, instance string, n int)
	AddLSDBPurges(protocol, instance string, n int)
	RecordSPFRun(protocol, instance string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordAdjacencyTransition(string, string, string, string) {}
func (noopMetrics) SetLSDBRecords(string, string, int)                      {}
func (noopMetrics) AddLSDBPurges(string, string, int)                       {}
func (noopMetrics) RecordSPFRun(string, string, time.Duration)              {}

// SetMetrics installs m as the handler's metrics reporter, labeling
// every sample with instanceName. Called once from process wiring
// after NewHandler; safe to skip entirely (metrics stay a no-op).
func (h *Handler) SetMetrics(m MetricsReporter, instanceName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
	h.instanceName = instanceName
}

// NewHandler constructs an IS-IS Handler. flood is called once per
// neighbor, per installed record, to send the LSP onto that adjacency
// (spec.md section 4.4's reliable-flooding rule: flood to every
// neighbor except the one the record arrived from). runSPF is the
// shortest-path computation the SPF delay FSM schedules.
func NewHandler(systemID string, priority uint8, initialDelay, shortDelay, shortHoldDown time.Duration, runSPF func(ctx context.Context), flood func(neighborID string, rec linkstate.Record), logger *slog.Logger) *Handler {
	ctx := context.Background()
	return &Handler{
		systemID:   systemID,
		priority:   priority,
		lsdb:       linkstate.NewLSDB(),
		spf:        linkstate.NewSPFDelay(ctx, initialDelay, shortDelay, shortHoldDown, runSPF, logger),
		neighbors:  make(map[string]*Neighbor),
		retransmit: make(map[string]*linkstate.RetransmissionList),
		flood:      flood,
		metrics:    noopMetrics{},
		logger:     logger,
	}
}

// LSDB returns the handler's link-state database, for SPF and for
// northbound state reads to enumerate.
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

// onAdjacencyTransition recomputes DIS election whenever an adjacency
// reaches or leaves Full, since only fully-adjacent neighbors are
// eligible candidates.
func (h *Handler) onAdjacencyTransition(neighborID string, from, to linkstate.State) {
	h.metrics.RecordAdjacencyTransition("isis", h.instanceName, from.String(), to.String())

	if to != linkstate.StateFull && from != linkstate.StateFull {
		return
	}
	h.electDIS()
}

func (h *Handler) electDIS() {
	candidates := []linkstate.RoleCandidate{{ID: h.systemID, Priority: h.priority}}
	for id, n := range h.neighbors {
		if n.FSM.State() != linkstate.StateFull {
			continue
		}
		candidates = append(candidates, linkstate.RoleCandidate{
			ID:        id,
			Priority:  n.Priority,
			Incumbent: h.hasDIS && h.dis.ID == id,
		})
	}
	winner, ok := linkstate.ElectRole(candidates, false)
	if !ok {
		return
	}
	h.dis, h.hasDIS = winner, true
}

// DIS returns the currently elected designated intermediate system. The
// local system is always a candidate, so once any Hello has been handled
// a DIS is reported even when no adjacency is Full.
func (h *Handler) DIS() (linkstate.RoleCandidate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dis, h.hasDIS
}

// NeighborState returns the adjacency state of neighborID, for metrics
// collection and tests.
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
		n.ReceiveHello(hello.SawSelf, hello.HoldTime, h.logger)
		h.electDIS()

	case lspKind:
		lsp, ok := msg.Payload.(LSP)
		if !ok {
			return
		}
		if err := h.lsdb.Install(lsp.Record, time.Now()); err != nil {
			return
		}
		h.metrics.SetLSDBRecords("isis", h.instanceName, len(h.lsdb.All()))
		h.spf.TopologyChanged()
		for id := range h.neighbors {
			if id == lsp.NeighborID {
				continue
			}
			h.retransmit[id].Add(lsp.Record.ID)
			if h.flood != nil {
				h.flood(id, lsp.Record)
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
	h.logger.Info("isis handler shutting down")
}

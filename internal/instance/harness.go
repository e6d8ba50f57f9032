// Package instance implements the protocol-instance harness shared by
// every protocol engine (BFD, IS-IS, OSPF, LDP, BGP, RIP, VRRP): the
// per-instance channel topology, the single-threaded cooperative event
// loop that serializes all events into an instance, the event recorder,
// and the northbound/southbound message contracts those protocols
// dispatch on.
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dantte-lp/ribd/internal/task"
)

// aggregatorBufSize bounds the aggregator channel. Sized generously
// enough to absorb a burst of southbound/protocol events without
// blocking the producing task, per spec.md section 5's suspension-point
// rule: an instance handler may suspend when sending to a full bounded
// channel, but a deep backlog there is itself a signal something
// downstream is stuck.
const aggregatorBufSize = 256

// ProtocolHandler is implemented by each protocol engine (bfd, isis,
// ospf, ldp, bgp, rip, vrrp) and plugged into a Harness. The event loop
// calls exactly one of these per dispatched message (spec.md section
// 4.2, "Event loop contract", step 3).
type ProtocolHandler interface {
	// HandleNorthbound services a configuration or state request.
	// Replies are sent on req.Reply by the handler, not the harness.
	HandleNorthbound(ctx context.Context, req NorthboundRequest)

	// HandleSouthbound reacts to a shared-bus event.
	HandleSouthbound(ctx context.Context, msg SouthboundMsg)

	// HandleProtocol reacts to a protocol-specific input (neighbor-rx,
	// accept/connect, policy-result, decision-process trigger, ...).
	HandleProtocol(ctx context.Context, msg ProtocolMsg)

	// HandleTimer reacts to a fired internal/task timer.
	HandleTimer(ctx context.Context, msg TimerMsg)

	// Shutdown runs the protocol shutdown hook before the harness
	// unsubscribes from the southbound bus and exits (spec.md section
	// 4.2, step 4).
	Shutdown(ctx context.Context)
}

// Channels is the per-instance channel topology described in spec.md
// section 4.2. The harness owns the aggregator and fans every other
// channel into it; callers (the northbound frontend, the southbound
// bus, protocol transports) hold the send side of NorthboundIn,
// SouthboundIn, ProtocolIn, and TimerIn.
type Channels struct {
	// NorthboundIn carries requests from the northbound frontend.
	NorthboundIn chan NorthboundRequest

	// SouthboundIn carries the instance's subscription feed from the
	// shared southbound bus.
	SouthboundIn chan SouthboundMsg

	// ProtocolIn carries protocol-specific inputs.
	ProtocolIn chan ProtocolMsg

	// TimerIn carries fired internal/task timers.
	TimerIn chan TimerMsg

	// SouthboundOut is the southbound output sender; the protocol
	// handler publishes events onto the shared bus through it.
	SouthboundOut chan<- SouthboundMsg

	// TestOut is a protocol-output sender used only under a test
	// feature, letting tests observe the exact messages the protocol
	// would otherwise write to the wire.
	TestOut chan<- any
}

// NewChannels allocates a fresh, unconnected Channels topology with the
// given aggregator-feed buffer sizes.
func NewChannels(northboundBuf, southboundBuf, protocolBuf, timerBuf int) *Channels {
	return &Channels{
		NorthboundIn: make(chan NorthboundRequest, northboundBuf),
		SouthboundIn: make(chan SouthboundMsg, southboundBuf),
		ProtocolIn:   make(chan ProtocolMsg, protocolBuf),
		TimerIn:      make(chan TimerMsg, timerBuf),
	}
}

// Harness owns one protocol instance's lifetime and serializes all
// events into it (spec.md section 4.2). It runs a single-threaded
// cooperative event loop that drains an aggregator channel and
// dispatches to the protocol handler.
type Harness struct {
	Name     string
	Protocol string

	channels *Channels
	handler  ProtocolHandler
	logger   *slog.Logger
	recorder *Recorder

	aggregator chan InstanceMsg
	seq        atomic.Uint64

	// testBias, when true, biases the event loop's select toward the
	// northbound source, making tests deterministic (spec.md section
	// 4.2's ordering guarantee).
	testBias bool

	fanIn *task.Task
	loop  *task.Task

	stopOnce sync.Once
}

// New constructs a Harness for the named protocol instance. The
// recorder may be a disabled Recorder (see NewDisabledRecorder) when
// tracing is not enabled.
func New(name, protocol string, channels *Channels, handler ProtocolHandler, logger *slog.Logger, recorder *Recorder, testBias bool) *Harness {
	return &Harness{
		Name:       name,
		Protocol:   protocol,
		channels:   channels,
		handler:    handler,
		logger:     logger.With(slog.String("instance", name), slog.String("protocol", protocol)),
		recorder:   recorder,
		aggregator: make(chan InstanceMsg, aggregatorBufSize),
		testBias:   testBias,
	}
}

// Run starts the fan-in goroutines and the event loop, both as
// internal/task.Task handles owned by the harness, and blocks until the
// event loop exits (either the instance was unconfigured, or ctx was
// cancelled). Dropping ctx is the structural-cancellation path named in
// spec.md section 4.2: it stops the fan-in and the loop, which in turn
// lets every receive loop and timer the protocol handler created under
// a child of this ctx unwind.
func (h *Harness) Run(ctx context.Context) error {
	h.fanIn = task.Run(ctx, h.runFanIn)
	h.loop = task.Run(ctx, h.runEventLoop)

	h.loop.Wait()
	h.fanIn.Cancel()
	h.fanIn.Wait()

	return nil
}

// runFanIn copies messages from the typed input channels into the
// single aggregator channel, preserving per-source FIFO order (spec.md
// section 5's ordering guarantee: "messages from one channel are
// processed in arrival order").
func (h *Harness) runFanIn(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-h.channels.NorthboundIn:
			h.sendAggregator(ctx, m)
		case m := <-h.channels.SouthboundIn:
			h.sendAggregator(ctx, m)
		case m := <-h.channels.ProtocolIn:
			h.sendAggregator(ctx, m)
		case m := <-h.channels.TimerIn:
			h.sendAggregator(ctx, m)
		}
	}
}

// sendAggregator forwards m onto the aggregator, honoring cancellation
// so a fan-in goroutine never blocks forever past shutdown.
func (h *Harness) sendAggregator(ctx context.Context, m InstanceMsg) {
	select {
	case h.aggregator <- m:
	case <-ctx.Done():
	}
}

// runEventLoop implements spec.md section 4.2's event loop contract:
// receive one message, record it, dispatch it, and on an "instance
// unconfigured" northbound request, run the shutdown hook and exit.
func (h *Harness) runEventLoop(ctx context.Context) {
	defer h.recorder.Close() //nolint:errcheck // best-effort trace flush on exit

	for {
		msg, ok := h.receiveNext(ctx)
		if !ok {
			return
		}

		seq := h.seq.Add(1)
		kind := msgKind(msg)
		if err := h.recorder.Record(seq, kind, msg); err != nil {
			h.logger.Warn("event recorder write failed", slog.String("error", err.Error()))
		}

		if h.dispatch(ctx, msg) {
			h.handler.Shutdown(ctx)
			return
		}
	}
}

// receiveNext blocks for the next aggregator message or, when testBias
// is set, first drains any pending northbound request non-blockingly so
// tests see northbound events ahead of concurrently-arriving southbound
// or protocol events.
func (h *Harness) receiveNext(ctx context.Context) (InstanceMsg, bool) {
	if h.testBias {
		select {
		case m := <-h.channels.NorthboundIn:
			return m, true
		default:
		}
	}

	select {
	case <-ctx.Done():
		return nil, false
	case m := <-h.aggregator:
		return m, true
	}
}

// dispatch routes msg to the protocol handler and reports whether the
// event loop must exit afterward (an unconfigure request).
func (h *Harness) dispatch(ctx context.Context, msg InstanceMsg) (exit bool) {
	switch m := msg.(type) {
	case NorthboundRequest:
		if m.Kind == NorthboundUnconfigure {
			h.handler.HandleNorthbound(ctx, m)
			return true
		}
		h.handler.HandleNorthbound(ctx, m)
	case SouthboundMsg:
		h.handler.HandleSouthbound(ctx, m)
	case ProtocolMsg:
		h.handler.HandleProtocol(ctx, m)
	case TimerMsg:
		h.handler.HandleTimer(ctx, m)
	default:
		h.logger.Warn("dropping message of unrecognized kind", slog.String("type", fmt.Sprintf("%T", msg)))
	}
	return false
}

// msgKind names msg's dynamic type for the event recorder.
func msgKind(msg InstanceMsg) string {
	switch msg.(type) {
	case NorthboundRequest:
		return "northbound"
	case SouthboundMsg:
		return "southbound"
	case ProtocolMsg:
		return "protocol"
	case TimerMsg:
		return "timer"
	default:
		return "unknown"
	}
}

// Channels returns the harness's channel topology so callers (the
// northbound frontend, the southbound bus, protocol transports) can
// obtain the send side of each input channel.
func (h *Harness) Channels() *Channels {
	return h.channels
}

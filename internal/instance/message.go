package instance

import (
	"net/netip"
	"time"
)

// InstanceMsg is the interface implemented by every message that can be
// delivered into an instance's event loop through the aggregator
// channel. A type switch in Harness.dispatch routes each variant
// (spec.md section 4.2's event loop contract, step 3).
type InstanceMsg interface {
	// instanceMsg is unexported so only this package can satisfy the
	// interface, keeping the set of deliverable message kinds closed.
	instanceMsg()
}

// NorthboundRequest carries a request originating from the northbound
// frontend: a configuration commit phase, a state read, or (in tests) a
// synchronize request used to make event-loop processing deterministic.
type NorthboundRequest struct {
	Kind  NorthboundKind
	Path  string
	Reply chan<- NorthboundReply
}

func (NorthboundRequest) instanceMsg() {}

// NorthboundKind enumerates the request kinds the event loop dispatches
// on (spec.md section 4.2, step 3 and step 4).
type NorthboundKind int

const (
	// NorthboundGet reads configuration or state from the instance.
	NorthboundGet NorthboundKind = iota
	// NorthboundCommit applies a validated configuration diff.
	NorthboundCommit
	// NorthboundUnconfigure tears the instance down; the event loop
	// exits after running the protocol shutdown hook.
	NorthboundUnconfigure
	// NorthboundSynchronize is a testing-only barrier: the event loop
	// replies once every message enqueued before it has been drained.
	NorthboundSynchronize
)

// NorthboundReply is returned to the caller of a NorthboundRequest.
type NorthboundReply struct {
	Data []byte
	Err  error
}

// SouthboundMsg is the shared-bus message type the harness subscribes to
// (spec.md section 6, "Southbound message bus"). Every southbound event
// kind the spec names has a SouthboundKind constant below; protocol
// handlers switch on Kind.
type SouthboundMsg struct {
	Kind SouthboundKind

	RouterID    netip.Addr
	NexthopAddr netip.Addr
	NexthopCost uint32

	PolicyName string

	Prefix netip.Prefix

	IfName    string
	IfUp      bool
	IfAddr    netip.Prefix
	IfAddrSet bool
}

func (SouthboundMsg) instanceMsg() {}

// SouthboundKind enumerates the southbound bus event kinds named in
// spec.md section 6.
type SouthboundKind int

const (
	SouthboundRouterIDUpdate SouthboundKind = iota
	SouthboundNexthopUpdate
	SouthboundPolicyMatchSetsUpdate
	SouthboundPolicyUpdate
	SouthboundPolicyDelete
	SouthboundRouteRedistributeAdd
	SouthboundRouteRedistributeDel
	SouthboundInterfaceLinkUp
	SouthboundInterfaceLinkDown
	SouthboundInterfaceAddrAdd
	SouthboundInterfaceAddrDel
)

// ProtocolMsg carries a protocol-specific input: a neighbor-rx packet, a
// neighbor timer firing, a policy worker result, a decision-process
// trigger, or an accepted/connected transport event (spec.md section
// 4.2's channel topology). Protocol packages construct these; the
// harness only forwards the opaque Payload to the registered protocol
// handler.
type ProtocolMsg struct {
	Kind    string
	Payload any
}

func (ProtocolMsg) instanceMsg() {}

// TimerMsg wraps a fired internal/task timer (neighbor hold timer, SPF
// delay FSM timer, RIP triggered-update timer, and so on) as it enters
// the aggregator. Kept distinct from ProtocolMsg so the event recorder
// can tag timer-driven events without protocol packages needing to know
// about recording.
type TimerMsg struct {
	Kind string
	At   time.Time
	Data any
}

func (TimerMsg) instanceMsg() {}

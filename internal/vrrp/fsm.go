// Package vrrp implements the VRRP virtual-router redundancy state
// machine (RFC 5798's Initialize/Backup/Master FSM), built the same
// way the link-state protocols are built on internal/linkstate: a
// small, protocol-specific FSM driven by internal/task timers and
// plugged into internal/instance as a ProtocolHandler. VRRP has no
// link-state database and no flooding, so it is a simpler cousin of
// internal/linkstate's adjacency FSM rather than an instantiation of
// it.
package vrrp

import "fmt"

// State is the virtual router's redundancy state.
type State int

const (
	StateInitialize State = iota
	StateBackup
	StateMaster
)

func (s State) String() string {
	switch s {
	case StateInitialize:
		return "Initialize"
	case StateBackup:
		return "Backup"
	case StateMaster:
		return "Master"
	default:
		return "Unknown"
	}
}

// Event names a VRRP FSM transition trigger.
type Event int

const (
	// EventStartup enables the virtual router out of Initialize.
	EventStartup Event = iota
	// EventShutdown administratively disables the virtual router from
	// any state.
	EventShutdown
	// EventMasterDownTimerExpired fires in Backup when no
	// advertisement arrived within Master_Down_Interval.
	EventMasterDownTimerExpired
	// EventHigherPriorityAdvertisement fires in Master on receiving an
	// advertisement from a router with strictly higher priority (or
	// equal priority and a higher primary IP address).
	EventHigherPriorityAdvertisement
	// EventLowerOrEqualPriorityAdvertisement fires in Backup when
	// preempt mode is disabled, or the advertisement does not beat the
	// local priority; it just resets the master-down timer and is not
	// itself a state transition (handled outside next()).
	EventLowerOrEqualPriorityAdvertisement
)

func (e Event) String() string {
	switch e {
	case EventStartup:
		return "startup"
	case EventShutdown:
		return "shutdown"
	case EventMasterDownTimerExpired:
		return "master-down-timer-expired"
	case EventHigherPriorityAdvertisement:
		return "higher-priority-advertisement"
	case EventLowerOrEqualPriorityAdvertisement:
		return "lower-or-equal-priority-advertisement"
	default:
		return "unknown"
	}
}

// ErrNoTransition indicates ev has no defined transition from from.
type ErrNoTransition struct {
	From  State
	Event Event
}

func (e *ErrNoTransition) Error() string {
	return fmt.Sprintf("vrrp: no transition for event %s from state %s", e.Event, e.From)
}

// FSM is the redundancy state machine for one virtual router. It holds
// no priority/IP comparison logic itself; callers decide which event
// to apply based on the advertisement's priority, keeping the FSM a
// pure transition table (spec.md's general preference, mirrored from
// internal/linkstate/fsm.go's own design).
type FSM struct {
	state        State
	onTransition func(from, to State)
}

// NewFSM constructs an FSM starting in Initialize.
func NewFSM(onTransition func(from, to State)) *FSM {
	return &FSM{state: StateInitialize, onTransition: onTransition}
}

// State returns the current state.
func (f *FSM) State() State { return f.state }

// Apply drives the FSM with ev.
func (f *FSM) Apply(ev Event) (State, error) {
	from := f.state
	to, err := next(from, ev)
	if err != nil {
		return from, err
	}
	f.state = to
	if f.onTransition != nil && to != from {
		f.onTransition(from, to)
	}
	return to, nil
}

// EnterMaster forces the FSM directly to Master from Initialize,
// RFC 5798's path for the virtual router that owns the IP address
// (Startup always transitions a non-owner to Backup instead).
func (f *FSM) EnterMaster() error {
	if f.state != StateInitialize {
		return &ErrNoTransition{From: f.state, Event: EventStartup}
	}
	from := f.state
	f.state = StateMaster
	if f.onTransition != nil {
		f.onTransition(from, StateMaster)
	}
	return nil
}

func next(from State, ev Event) (State, error) {
	if ev == EventShutdown {
		return StateInitialize, nil
	}

	switch from {
	case StateInitialize:
		if ev == EventStartup {
			// The caller distinguishes "owner of the address, become
			// Master immediately" from "become Backup" by choosing
			// which FSM entry point to call; Startup here always
			// yields Backup, the non-owner path. Owners call
			// EnterMaster instead.
			return StateBackup, nil
		}
	case StateBackup:
		switch ev {
		case EventMasterDownTimerExpired:
			return StateMaster, nil
		case EventLowerOrEqualPriorityAdvertisement:
			return StateBackup, nil
		}
	case StateMaster:
		if ev == EventHigherPriorityAdvertisement {
			return StateBackup, nil
		}
	}

	return from, &ErrNoTransition{From: from, Event: ev}
}


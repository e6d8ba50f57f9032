package decision

import (
	"sync"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/policy"
)

// AttrKey identifies a packed attribute set within one peer's update
// queue (spec.md section 4.6, export pipeline step 2: "a reach
// multimap keyed by attribute-set, so routes with equal attributes
// pack into one message"). Protocol packages derive the key from their
// own wire-attribute encoding (e.g. a canonicalized path-attribute
// byte string for BGP); the queue itself treats it as an opaque
// comparable value.
type AttrKey string

// entryKind distinguishes a queue slot's pending disposition.
type entryKind int

const (
	entryReach entryKind = iota
	entryUnreach
)

type queueEntry struct {
	kind entryKind
	attr AttrKey
	info policy.RoutePolicyInfo
}

// UpdateQueue holds one peer's pending reach/unreach changes for one
// address family, awaiting conversion into wire UPDATE messages
// (spec.md section 4.6, "Neighbor update-queue invariant": at most one
// reach and one unreach entry per prefix; an arriving reach supersedes
// any earlier entry for that prefix; an arriving unreach removes any
// reach for that prefix).
type UpdateQueue struct {
	mu      sync.Mutex
	entries map[addrfamily.Prefix]queueEntry
}

// NewUpdateQueue constructs an empty UpdateQueue.
func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{entries: make(map[addrfamily.Prefix]queueEntry)}
}

// Reach enqueues prefix as reachable with the given attribute key and
// policy-evaluated info, superseding any prior entry (reach or
// unreach) for the same prefix.
func (q *UpdateQueue) Reach(prefix addrfamily.Prefix, attr AttrKey, info policy.RoutePolicyInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[prefix] = queueEntry{kind: entryReach, attr: attr, info: info}
}

// Unreach enqueues prefix as withdrawn, removing any prior reach entry
// for the same prefix.
func (q *UpdateQueue) Unreach(prefix addrfamily.Prefix) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[prefix] = queueEntry{kind: entryUnreach}
}

// Drain removes and returns every pending entry, grouped for packing:
// reach prefixes bucketed by attribute key, plus the flat unreach set.
// Callers (the protocol's export-pack step) own the result; the queue
// is empty after Drain returns.
func (q *UpdateQueue) Drain() (reach map[AttrKey][]ReachEntry, unreach []addrfamily.Prefix) {
	q.mu.Lock()
	defer q.mu.Unlock()

	reach = make(map[AttrKey][]ReachEntry)
	for prefix, e := range q.entries {
		switch e.kind {
		case entryReach:
			reach[e.attr] = append(reach[e.attr], ReachEntry{Prefix: prefix, Info: e.info})
		case entryUnreach:
			unreach = append(unreach, prefix)
		}
	}
	q.entries = make(map[addrfamily.Prefix]queueEntry)
	return reach, unreach
}

// Len reports the number of pending entries, used for the update-queue
// depth gauge (SPEC_FULL.md section A's metrics list).
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ReachEntry pairs a prefix with its policy-evaluated attributes
// within one attribute-key bucket.
type ReachEntry struct {
	Prefix addrfamily.Prefix
	Info   policy.RoutePolicyInfo
}

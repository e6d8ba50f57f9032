package rip

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dantte-lp/ribd/internal/task"
)

// DefaultMinJitter and DefaultMaxJitter bound RIP's triggered-update
// delay (spec.md section 4.7: "delayed by a random jitter (1-5 s)").
const (
	DefaultMinJitter = 1 * time.Second
	DefaultMaxJitter = 5 * time.Second
)

// TriggeredUpdate coalesces a burst of route changes behind one
// randomly-jittered timer, then asks the table for every CHANGED route
// to send in a single update (spec.md section 4.7: "triggered updates
// ... coalesced: all routes whose CHANGED flag is set at expiry are
// sent once").
type TriggeredUpdate struct {
	mu      sync.Mutex
	pending bool
	timer   *task.TimeoutTask

	table       *Table
	send        func(entries []Entry)
	rng         *rand.Rand
	minJitter   time.Duration
	jitterRange int64
}

// NewTriggeredUpdate constructs a TriggeredUpdate coalescer over table
// using the production jitter bounds, invoking send with the
// changed-route batch when the jittered delay elapses.
func NewTriggeredUpdate(table *Table, send func(entries []Entry)) *TriggeredUpdate {
	return NewTriggeredUpdateWithJitter(table, send, DefaultMinJitter, DefaultMaxJitter)
}

// NewTriggeredUpdateWithJitter is NewTriggeredUpdate with caller-chosen
// jitter bounds, used by tests to exercise coalescing without waiting
// out the production 1-5s window.
func NewTriggeredUpdateWithJitter(table *Table, send func(entries []Entry), minJitter, maxJitter time.Duration) *TriggeredUpdate {
	return &TriggeredUpdate{
		table:       table,
		send:        send,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		minJitter:   minJitter,
		jitterRange: int64(maxJitter - minJitter),
	}
}

// Notify requests a triggered update; repeated calls while one is
// already pending coalesce into the timer already armed.
func (tu *TriggeredUpdate) Notify() {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if tu.pending {
		return
	}
	tu.pending = true

	jitter := tu.minJitter
	if tu.jitterRange > 0 {
		jitter += time.Duration(tu.rng.Int63n(tu.jitterRange))
	}
	if tu.timer == nil {
		tu.timer = task.NewTimeoutTask(jitter, tu.fire)
		return
	}
	tu.timer.Reset(jitter)
}

func (tu *TriggeredUpdate) fire() {
	tu.mu.Lock()
	tu.pending = false
	tu.mu.Unlock()

	changed := tu.table.DrainChanged()
	if len(changed) > 0 && tu.send != nil {
		tu.send(changed)
	}
}

package rip

import (
	"sync"
	"time"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/task"
)

// gcEntry tracks a route that went to infinite metric and is awaiting
// garbage collection (spec.md section 4.7: "If a route goes to
// infinite metric, it is uninstalled and a garbage-collect timer
// starts; expiry removes it").
type gcEntry struct {
	timer *task.TimeoutTask
}

// Table holds the RIP-instantiated route set plus each route's
// invalid and garbage-collect timers.
type Table struct {
	mu sync.Mutex

	entries map[addrfamily.Prefix]*Entry
	gc      map[addrfamily.Prefix]*gcEntry
	invalid map[addrfamily.Prefix]*task.TimeoutTask

	invalidInterval time.Duration
	flushInterval   time.Duration

	onChanged   func(prefix addrfamily.Prefix)
	onExpired   func(prefix addrfamily.Prefix)
	onFlushed   func(prefix addrfamily.Prefix)
}

// NewTable constructs an empty RIP route table. onChanged is called
// whenever a route's CHANGED flag is set (for the triggered-update
// coalescer to pick up); onExpired when the invalid timer fires (the
// route is uninstalled and its garbage-collect timer started);
// onFlushed when that garbage-collect timer expires.
func NewTable(invalidInterval, flushInterval time.Duration, onChanged, onExpired, onFlushed func(prefix addrfamily.Prefix)) *Table {
	return &Table{
		entries:         make(map[addrfamily.Prefix]*Entry),
		gc:              make(map[addrfamily.Prefix]*gcEntry),
		invalid:         make(map[addrfamily.Prefix]*task.TimeoutTask),
		invalidInterval: invalidInterval,
		flushInterval:   flushInterval,
		onChanged:       onChanged,
		onExpired:       onExpired,
		onFlushed:       onFlushed,
	}
}

// ProcessRTE applies spec.md section 4.7's response-processing rules
// to one received RTE, after interface cost has already been added to
// rte.Metric by the caller (the interface an RTE arrived on is a
// southbound-derived fact this package does not model).
func (t *Table) ProcessRTE(rte RTE, neighborID string, nextHop addrfamily.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[rte.Prefix]

	if rte.Metric >= Infinity {
		if ok && existing.NeighborID == neighborID {
			t.uninstallLocked(rte.Prefix)
		}
		return
	}

	if !ok {
		t.installLocked(rte, neighborID, nextHop)
		return
	}

	betterMetric := rte.Metric < existing.Metric
	sameSourceDifferent := existing.NeighborID == neighborID &&
		(rte.Metric != existing.Metric || !nextHop.Equal(existing.NextHop) || rte.Tag != existing.Tag)

	if !betterMetric && !sameSourceDifferent {
		if existing.NeighborID == neighborID {
			t.resetInvalidLocked(rte.Prefix)
		}
		return
	}

	worseFromCurrentSource := existing.NeighborID == neighborID && rte.Metric > existing.Metric
	t.installLocked(rte, neighborID, nextHop)
	if worseFromCurrentSource {
		t.entries[rte.Prefix].Changed = true
		if t.onChanged != nil {
			t.onChanged(rte.Prefix)
		}
	}
}

func (t *Table) installLocked(rte RTE, neighborID string, nextHop addrfamily.Address) {
	t.entries[rte.Prefix] = &Entry{
		Prefix:     rte.Prefix,
		Metric:     rte.Metric,
		NextHop:    nextHop,
		Tag:        rte.Tag,
		NeighborID: neighborID,
		learnedAt:  time.Now(),
	}
	t.clearGCLocked(rte.Prefix)
	t.resetInvalidLocked(rte.Prefix)
}

// resetInvalidLocked (re)arms the prefix's invalid timer, the
// same-neighbor refresh behavior spec.md section 4.7 names.
func (t *Table) resetInvalidLocked(prefix addrfamily.Prefix) {
	if timer, ok := t.invalid[prefix]; ok {
		timer.Reset(t.invalidInterval)
		return
	}
	t.invalid[prefix] = task.NewTimeoutTask(t.invalidInterval, func() {
		t.mu.Lock()
		_, stillPresent := t.entries[prefix]
		t.mu.Unlock()
		if stillPresent {
			t.uninstallLocked(prefix)
			if t.onExpired != nil {
				t.onExpired(prefix)
			}
		}
	})
}

// uninstallLocked removes the route and starts its garbage-collect
// timer (spec.md section 4.7).
func (t *Table) uninstallLocked(prefix addrfamily.Prefix) {
	delete(t.entries, prefix)
	if timer, ok := t.invalid[prefix]; ok {
		timer.Cancel()
		delete(t.invalid, prefix)
	}
	if _, ok := t.gc[prefix]; ok {
		return
	}
	t.gc[prefix] = &gcEntry{
		timer: task.NewTimeoutTask(t.flushInterval, func() {
			t.mu.Lock()
			delete(t.gc, prefix)
			t.mu.Unlock()
			if t.onFlushed != nil {
				t.onFlushed(prefix)
			}
		}),
	}
}

func (t *Table) clearGCLocked(prefix addrfamily.Prefix) {
	if g, ok := t.gc[prefix]; ok {
		g.timer.Cancel()
		delete(t.gc, prefix)
	}
}

// Lookup returns the installed entry for prefix, if any.
func (t *Table) Lookup(prefix addrfamily.Prefix) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[prefix]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// DrainChanged returns every entry whose CHANGED flag is set, clearing
// the flag on each (spec.md section 4.7: "all routes whose CHANGED
// flag is set at expiry are sent once; the flag is then cleared").
func (t *Table) DrainChanged() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []Entry
	for _, e := range t.entries {
		if e.Changed {
			changed = append(changed, *e)
			e.Changed = false
		}
	}
	return changed
}

// All returns every currently installed entry.
func (t *Table) All() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

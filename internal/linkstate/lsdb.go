package linkstate

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MaxAge is the effective-age ceiling at which a record is purged
// from the database (spec.md section 4.4: "An acknowledged record
// whose effective age reaches MAX_AGE is purged").
const MaxAge = 3600 * time.Second

// RecordID identifies one LSDB record: originating system plus the
// fragment/LSP number within that system's set.
type RecordID struct {
	OriginatingSystem string
	Fragment          uint8
}

// Record is one link-state database entry. Body carries the
// protocol-specific TLV payload opaquely; the LSDB core only needs the
// header fields to run aging, flooding, and SPF.
type Record struct {
	ID       RecordID
	SeqNo    uint32
	Body     []byte
	Checksum [2]byte

	// originated is when this instance (or the peer that originated
	// it) created the record; effective age is measured from here.
	originated time.Time
}

// EffectiveAge returns how long the record has existed.
func (r Record) EffectiveAge(now time.Time) time.Duration {
	return now.Sub(r.originated)
}

// Expired reports whether the record's effective age has reached
// MaxAge.
func (r Record) Expired(now time.Time) bool {
	return r.EffectiveAge(now) >= MaxAge
}

var (
	// ErrOlderSequence indicates a candidate record's sequence number
	// does not supersede the one already stored.
	ErrOlderSequence = errors.New("linkstate: candidate does not supersede stored record")
	// ErrRecordNotFound indicates no record exists for the given id.
	ErrRecordNotFound = errors.New("linkstate: record not found")
)

// LSDB is the link-state database: one Record per (originating
// system, fragment), with sequence-number-ordered replacement and
// MAX_AGE-driven purge (spec.md section 4.4).
type LSDB struct {
	mu      sync.RWMutex
	records map[RecordID]Record
}

// NewLSDB constructs an empty database.
func NewLSDB() *LSDB {
	return &LSDB{records: make(map[RecordID]Record)}
}

// Install inserts or replaces a record. It returns ErrOlderSequence
// (without modifying the database) if a stored record for the same id
// has a sequence number that is not older than the candidate's.
func (d *LSDB) Install(rec Record, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.records[rec.ID]; ok && !seqNewer(rec.SeqNo, existing.SeqNo) {
		return ErrOlderSequence
	}
	rec.originated = now
	d.records[rec.ID] = rec
	return nil
}

// seqNewer reports whether candidate supersedes stored, with the
// standard link-state sequence-space wraparound rule (treat the
// numbers as a circular space split at the midpoint).
func seqNewer(candidate, stored uint32) bool {
	if candidate == stored {
		return false
	}
	diff := candidate - stored
	return diff < (1 << 31)
}

// Lookup returns the record for id.
func (d *LSDB) Lookup(id RecordID) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%v: %w", id, ErrRecordNotFound)
	}
	return rec, nil
}

// Purge removes every record whose effective age has reached MaxAge,
// returning the ids removed. Callers are expected to have already
// confirmed every neighbor has acknowledged the MAX_AGE flood for
// these ids (spec.md section 4.4); LSDB itself does not track
// acknowledgement state, which lives in the per-neighbor retransmission
// list.
func (d *LSDB) Purge(now time.Time) []RecordID {
	d.mu.Lock()
	defer d.mu.Unlock()

	var purged []RecordID
	for id, rec := range d.records {
		if rec.Expired(now) {
			purged = append(purged, id)
			delete(d.records, id)
		}
	}
	return purged
}

// All returns a snapshot slice of every record currently stored, used
// by SPF and by database-exchange descriptor generation.
func (d *LSDB) All() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Record, 0, len(d.records))
	for _, rec := range d.records {
		out = append(out, rec)
	}
	return out
}

// RetransmissionList tracks, per neighbor, the set of records awaiting
// acknowledgement on one adjacency (spec.md section 4.4: "Reliable
// flooding" / "each neighbor acknowledges by header, removing the
// entry from the retransmission list").
type RetransmissionList struct {
	mu      sync.Mutex
	pending map[RecordID]struct{}
}

// NewRetransmissionList constructs an empty list.
func NewRetransmissionList() *RetransmissionList {
	return &RetransmissionList{pending: make(map[RecordID]struct{})}
}

// Add marks id as awaiting acknowledgement.
func (l *RetransmissionList) Add(id RecordID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[id] = struct{}{}
}

// Ack removes id from the pending set, returning true if it was
// present.
func (l *RetransmissionList) Ack(id RecordID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[id]; !ok {
		return false
	}
	delete(l.pending, id)
	return true
}

// Pending returns a snapshot of ids still awaiting acknowledgement,
// the set the retransmission timer re-sends on expiry.
func (l *RetransmissionList) Pending() []RecordID {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]RecordID, 0, len(l.pending))
	for id := range l.pending {
		out = append(out, id)
	}
	return out
}

// Empty reports whether nothing is awaiting acknowledgement on this
// adjacency, the condition spec.md section 4.4 checks alongside the M
// bit to declare the adjacency Up.
func (l *RetransmissionList) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) == 0
}

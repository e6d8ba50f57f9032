// Package keychain implements the named, versioned authentication key
// sets shared by protocol senders on one peering (spec.md section 3:
// "Keychain / authentication context"), along with the atomic monotonic
// send-sequence counter every sender on a peering shares.
package keychain

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Algorithm identifies an authentication algorithm a Key uses.
type Algorithm int

const (
	AlgorithmSimple Algorithm = iota
	AlgorithmMD5
	AlgorithmHMACSHA1
	AlgorithmHMACSHA256
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmSimple:
		return "simple"
	case AlgorithmMD5:
		return "md5"
	case AlgorithmHMACSHA1:
		return "hmac-sha1"
	case AlgorithmHMACSHA256:
		return "hmac-sha256"
	default:
		return "unknown"
	}
}

// Key is one versioned entry in a Keychain.
type Key struct {
	// ID identifies the key within its keychain (e.g. a BFD/OSPF/IS-IS
	// key id octet, or an RIP/LDP equivalent).
	ID uint16

	// Algorithm names the MAC algorithm the key is used with.
	Algorithm Algorithm

	// Secret is the raw key material.
	Secret []byte

	// ValidFrom and ValidUntil bound the key's accept/send window; a
	// zero value on either side means unbounded in that direction.
	ValidFrom  time.Time
	ValidUntil time.Time
}

// activeAt reports whether the key is within its validity window at t.
func (k Key) activeAt(t time.Time) bool {
	if !k.ValidFrom.IsZero() && t.Before(k.ValidFrom) {
		return false
	}
	if !k.ValidUntil.IsZero() && t.After(k.ValidUntil) {
		return false
	}
	return true
}

// ErrNoActiveKey indicates no key in the keychain is valid at the
// requested time.
var ErrNoActiveKey = errors.New("keychain: no active key")

// ErrKeyNotFound indicates no key with the given id exists.
var ErrKeyNotFound = errors.New("keychain: key not found")

// Keychain is a named, versioned set of keys plus the send-sequence
// counter shared by every sender on the peering the keychain
// authenticates (spec.md section 3). Replacing the key set (e.g. via a
// northbound commit) installs a new immutable snapshot; readers never
// observe a partially-updated key list.
type Keychain struct {
	name string

	mu      sync.RWMutex
	keys    []Key
	version uint64

	// sendSeq is the atomic monotonic send-sequence counter shared by
	// all senders on one peering (spec.md section 3). Incremented by
	// NextSendSeq, never by direct mutation.
	sendSeq atomic.Uint64
}

// New constructs an empty, named Keychain. The send-sequence counter
// starts at the given initial value (protocols that must start from a
// random or persisted sequence number pass it here; zero otherwise).
func New(name string, initialSendSeq uint64) *Keychain {
	kc := &Keychain{name: name}
	kc.sendSeq.Store(initialSendSeq)
	return kc
}

// Name returns the keychain's name.
func (kc *Keychain) Name() string {
	return kc.name
}

// Version returns the current key-set version, incremented on every
// Replace.
func (kc *Keychain) Version() uint64 {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.version
}

// Replace installs a new key set atomically, bumping the version. The
// caller retains no reference into keys; Replace copies it.
func (kc *Keychain) Replace(keys []Key) {
	snapshot := make([]Key, len(keys))
	copy(snapshot, keys)

	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.keys = snapshot
	kc.version++
}

// ActiveKey returns the key valid at time t. When more than one key's
// validity window covers t, the key with the highest ID wins (the
// conventional "prefer the newest rollover key" rule used by keyed
// routing protocols during a rollover window).
func (kc *Keychain) ActiveKey(t time.Time) (Key, error) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()

	var best *Key
	for i := range kc.keys {
		k := kc.keys[i]
		if !k.activeAt(t) {
			continue
		}
		if best == nil || k.ID > best.ID {
			best = &kc.keys[i]
		}
	}

	if best == nil {
		return Key{}, ErrNoActiveKey
	}
	return *best, nil
}

// KeyByID returns the key with the given id, regardless of validity
// window (used to verify an incoming packet's claimed key id even if
// it has since expired, for diagnostics).
func (kc *Keychain) KeyByID(id uint16) (Key, error) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()

	for _, k := range kc.keys {
		if k.ID == id {
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("id %d: %w", id, ErrKeyNotFound)
}

// NextSendSeq atomically increments and returns the peering's shared
// send-sequence counter. Every sender on the same peering (e.g. both
// directions of a micro-BFD group, or a graceful-restart helper and its
// primary) calls this instead of keeping a private counter, so the
// wire sequence number is monotonic regardless of which sender emits
// the next packet.
func (kc *Keychain) NextSendSeq() uint64 {
	return kc.sendSeq.Add(1)
}

// CurrentSendSeq returns the counter's current value without
// incrementing it.
func (kc *Keychain) CurrentSendSeq() uint64 {
	return kc.sendSeq.Load()
}

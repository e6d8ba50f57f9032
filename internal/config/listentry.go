package config

import (
	"context"
	"fmt"
	"strings"
)

// Segment is one step of a data path used for ancestor-handle
// resolution: a plain container name, or a keyed list entry.
type Segment struct {
	// Container is the registered path of the list container this
	// segment belongs to (e.g. "/protocols/bgp/neighbors/neighbor").
	Container string
	// Key is the list entry's key (e.g. a neighbor address). Empty for
	// non-list segments.
	Key string
}

// ResolveHandle walks path's ancestors in root-to-leaf order, invoking
// each list container's registered Lookup callback to accumulate a
// typed handle (spec.md section 4.3: "the engine walks the list
// ancestors in root-to-leaf order and invokes each ancestor's lookup
// callback to accumulate a typed handle").
//
// includeLeaf controls whether the final segment is itself resolved:
// apply-phase Creates look up ancestors only, not the node being
// created (spec.md section 4.3).
func ResolveHandle(ctx context.Context, reg *Registry, path []Segment, includeLeaf bool) (Handle, error) {
	segments := path
	if !includeLeaf && len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}

	var handle Handle
	for _, seg := range segments {
		if seg.Key == "" {
			continue
		}

		fn, ok := reg.lookupCallback(seg.Container)
		if !ok {
			return nil, fmt.Errorf("resolve handle at %s: %w", seg.Container, ErrNoCallback)
		}

		h, err := fn(ctx, handle, seg.Key)
		if err != nil {
			return nil, fmt.Errorf("resolve handle at %s key %q: %w", seg.Container, seg.Key, ErrLookupFailed)
		}
		handle = h
	}

	return handle, nil
}

// ParsePath splits a "/"-separated path with optional "[key]" list
// selectors into Segments. Example:
//
//	/protocols/bgp/neighbors/neighbor[10.0.0.1]/timers
//
// yields one Segment with Container
// "/protocols/bgp/neighbors/neighbor" and Key "10.0.0.1" in the chain.
func ParsePath(path string) []Segment {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	var segments []Segment
	var prefix string

	for _, part := range parts {
		name, key, isEntry := splitEntry(part)
		prefix = prefix + "/" + name

		if isEntry {
			segments = append(segments, Segment{Container: prefix, Key: key})
		}
	}

	return segments
}

// splitEntry splits "neighbor[10.0.0.1]" into ("neighbor", "10.0.0.1", true),
// or returns (part, "", false) when part carries no "[key]" selector.
func splitEntry(part string) (name, key string, isEntry bool) {
	open := strings.IndexByte(part, '[')
	if open < 0 || !strings.HasSuffix(part, "]") {
		return part, "", false
	}
	return part[:open], part[open+1 : len(part)-1], true
}

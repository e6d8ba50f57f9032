package decision

import "github.com/dantte-lp/ribd/internal/addrfamily"

// Batch is one wire-message's worth of reachable prefixes sharing a
// single attribute key, ready for a protocol's own message encoder.
type Batch struct {
	Attr     AttrKey
	Prefixes []addrfamily.Prefix
}

// PackReach splits reach, a single attribute key's accumulated
// prefixes, into Batches no larger than maxPrefixes. maxPrefixes is
// computed by the caller from its own wire format's header and
// attribute-section overhead (spec.md section 4.6 step 3: "pack
// floor((MAX_LEN - header - attrs - per-family overhead) /
// (1 + address_len)) prefixes per message"); PackReach itself is
// format-agnostic and only does the splitting.
func PackReach(attr AttrKey, entries []ReachEntry, maxPrefixes int) []Batch {
	if maxPrefixes <= 0 || len(entries) == 0 {
		return nil
	}

	var batches []Batch
	for start := 0; start < len(entries); start += maxPrefixes {
		end := start + maxPrefixes
		if end > len(entries) {
			end = len(entries)
		}
		prefixes := make([]addrfamily.Prefix, 0, end-start)
		for _, e := range entries[start:end] {
			prefixes = append(prefixes, e.Prefix)
		}
		batches = append(batches, Batch{Attr: attr, Prefixes: prefixes})
	}
	return batches
}

// PackUnreach splits a flat withdrawal set into Batches no larger than
// maxPrefixes, the unreach counterpart to PackReach.
func PackUnreach(unreach []addrfamily.Prefix, maxPrefixes int) []Batch {
	if maxPrefixes <= 0 || len(unreach) == 0 {
		return nil
	}

	var batches []Batch
	for start := 0; start < len(unreach); start += maxPrefixes {
		end := start + maxPrefixes
		if end > len(unreach) {
			end = len(unreach)
		}
		batches = append(batches, Batch{Prefixes: append([]addrfamily.Prefix(nil), unreach[start:end]...)})
	}
	return batches
}

// MaxPrefixesPerMessage computes the spec.md section 4.6 step 3 packing
// formula: floor((maxLen - header - attrsLen - perFamilyOverhead) /
// (1 + addrLen)), clamped to zero for pathological inputs so callers
// never have to guard against a negative or divide-by-zero batch size
// themselves.
func MaxPrefixesPerMessage(maxLen, header, attrsLen, perFamilyOverhead, addrLen int) int {
	room := maxLen - header - attrsLen - perFamilyOverhead
	if room <= 0 {
		return 0
	}
	denom := 1 + addrLen
	if denom <= 0 {
		return 0
	}
	return room / denom
}

// Package rip implements RIP's distance-vector response processing
// with its own route table, separate from internal/decision's RIB
// (spec.md section 4.7): per-RTE
// metric/nexthop rules, same-or-better-source replacement, garbage
// collection of routes gone to infinite metric, and jittered triggered
// updates.
package rip

import (
	"time"

	"github.com/dantte-lp/ribd/internal/addrfamily"
)

// Infinity is RIP's unreachable metric (RFC 2453 section 3.7).
const Infinity = 16

// RTE is one Route Table Entry as received in a RIP response, prior to
// interface-cost addition (spec.md section 4.7, step 1).
type RTE struct {
	Prefix     addrfamily.Prefix
	Metric     uint32
	NextHop    addrfamily.Address // advertised next hop, may be the zero value
	Tag        uint32
	HasNextHop bool
}

// Entry is one installed RIP route, tracked per spec.md section 4.7's
// replacement and garbage-collection rules.
type Entry struct {
	Prefix     addrfamily.Prefix
	Metric     uint32
	NextHop    addrfamily.Address
	Tag        uint32
	NeighborID string

	// Changed marks a route whose metric rose due to replacement by
	// the same source, queuing it for the next triggered update.
	Changed bool

	learnedAt time.Time
}

// effectiveNextHop resolves the RTE's next hop per spec.md section
// 4.7, step 2: the advertised next hop only when it lies in a locally
// attached subnet, otherwise the packet's source address.
func effectiveNextHop(rte RTE, source addrfamily.Address, inLocalSubnet func(addrfamily.Address) bool) addrfamily.Address {
	if rte.HasNextHop && inLocalSubnet(rte.NextHop) {
		return rte.NextHop
	}
	return source
}

// Package decision implements the policy-driven route decision pipeline
// shared in shape by the BGP and RIP modules (spec.md section 4.6):
// import-pipeline glue around internal/policy's evaluator, a generic
// best-path selector parameterized by a protocol-supplied tie-break
// order, a debounced decision-process scheduler, and a per-peer update
// queue that packs accepted routes into wire-sized batches. internal/bgp
// and internal/rip instantiate this core the way internal/isis and
// internal/ospf instantiate internal/linkstate's core.
package decision

import (
	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/policy"
)

// RouteSource names where a Route came from (spec.md section 3:
// "Route. Destination prefix, source (internal neighbor or
// redistribution)...").
type RouteSource int

const (
	SourceNeighbor RouteSource = iota
	SourceRedistribute
)

// Route is one decision-pipeline-managed destination: the shared
// fields every address family needs for best-path comparison and
// export, plus the policy-evaluated RoutePolicyInfo carrying the
// protocol-specific attributes (spec.md section 3: "Route").
type Route struct {
	Prefix        addrfamily.Prefix
	Source        RouteSource
	NeighborID    string
	Info          policy.RoutePolicyInfo
	AdminDistance uint8

	// Changed marks a route whose best-path-relevant fields differ from
	// what was last advertised. RIP's triggered-update logic keeps its
	// own flag on rip.Entry and does not read this one.
	Changed bool
}

// RIB holds, per destination prefix, every candidate route accepted by
// import policy from every source, awaiting best-path selection.
type RIB struct {
	byPrefix map[addrfamily.Prefix]map[string]Route
}

// redistributeKey is the candidate-set key for redistributed routes, a
// fixed sentinel since at most one redistributed route exists per
// prefix per protocol instance; neighbor-learned routes are keyed by
// their neighbor id.
const redistributeKey = "\x00redistribute"

// NewRIB constructs an empty RIB.
func NewRIB() *RIB {
	return &RIB{byPrefix: make(map[addrfamily.Prefix]map[string]Route)}
}

// Install adds or replaces one candidate route for its prefix, keyed by
// neighbor (or the redistribute sentinel for RouteSource
// SourceRedistribute).
func (r *RIB) Install(route Route) {
	key := route.NeighborID
	if route.Source == SourceRedistribute {
		key = redistributeKey
	}

	candidates, ok := r.byPrefix[route.Prefix]
	if !ok {
		candidates = make(map[string]Route)
		r.byPrefix[route.Prefix] = candidates
	}
	candidates[key] = route
}

// Withdraw removes the candidate route a given source (neighbor id, or
// the redistribute sentinel) contributed for prefix. It reports whether
// any candidates remain for the prefix afterward.
func (r *RIB) Withdraw(prefix addrfamily.Prefix, neighborID string, source RouteSource) (remaining bool) {
	key := neighborID
	if source == SourceRedistribute {
		key = redistributeKey
	}

	candidates, ok := r.byPrefix[prefix]
	if !ok {
		return false
	}
	delete(candidates, key)
	if len(candidates) == 0 {
		delete(r.byPrefix, prefix)
		return false
	}
	return true
}

// WithdrawNeighbor removes every candidate route contributed by
// neighborID across all prefixes (a neighbor going down), returning the
// prefixes whose candidate sets are now empty.
func (r *RIB) WithdrawNeighbor(neighborID string) []addrfamily.Prefix {
	var emptied []addrfamily.Prefix
	for prefix, candidates := range r.byPrefix {
		if _, ok := candidates[neighborID]; !ok {
			continue
		}
		delete(candidates, neighborID)
		if len(candidates) == 0 {
			delete(r.byPrefix, prefix)
			emptied = append(emptied, prefix)
		}
	}
	return emptied
}

// Candidates returns the candidate routes for prefix.
func (r *RIB) Candidates(prefix addrfamily.Prefix) []Route {
	candidates, ok := r.byPrefix[prefix]
	if !ok {
		return nil
	}
	out := make([]Route, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c)
	}
	return out
}

// Prefixes returns every destination prefix with at least one
// candidate route.
func (r *RIB) Prefixes() []addrfamily.Prefix {
	out := make([]addrfamily.Prefix, 0, len(r.byPrefix))
	for p := range r.byPrefix {
		out = append(out, p)
	}
	return out
}

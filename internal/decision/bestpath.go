package decision

import "github.com/dantte-lp/ribd/internal/addrfamily"

// Less reports whether a is strictly preferred over b under a
// protocol's tie-break order. Best-path selection never compares a
// route against itself and treats an empty candidate set as having no
// winner.
type Less func(a, b Route) bool

// SelectBest runs the protocol-supplied tie-break order over rib's
// candidate set for every prefix, returning the winning Route per
// prefix (spec.md section 4.6: "Best-path selection... selects the
// preferred route using the protocol's ordered tie-breaks").
//
// Routes for which eligible returns false are excluded before
// comparison begins (spec.md section 4.6: "route ineligibility reasons
// such as cluster loop, AS loop, originator, confederation,
// unresolvable nexthop cause exclusion before comparison").
func SelectBest(rib *RIB, eligible func(Route) bool, less Less) map[addrfamily.Prefix]Route {
	best := make(map[addrfamily.Prefix]Route)

	for _, prefix := range rib.Prefixes() {
		candidates := rib.Candidates(prefix)

		var winner Route
		haveWinner := false
		for _, c := range candidates {
			if eligible != nil && !eligible(c) {
				continue
			}
			if !haveWinner || less(c, winner) {
				winner = c
				haveWinner = true
			}
		}
		if haveWinner {
			best[prefix] = winner
		}
	}

	return best
}

// BGPLess implements the path-vector tie-break order: higher
// local-pref, shorter AS-path, lower origin, lower MED, external over
// internal, lower nexthop cost, lower neighbor id (string order), lower
// next-hop address (string order). Route carries no router-id, so no
// router-id comparison is made. Each field is compared only once its
// predecessors are equal.
func BGPLess(a, b Route) bool {
	if a.Info.LocalPref != b.Info.LocalPref {
		return a.Info.LocalPref > b.Info.LocalPref
	}
	if a.Info.ASPathLen != b.Info.ASPathLen {
		return a.Info.ASPathLen < b.Info.ASPathLen
	}
	if a.Info.Origin != b.Info.Origin {
		return a.Info.Origin < b.Info.Origin
	}
	if a.Info.MED != b.Info.MED {
		return a.Info.MED < b.Info.MED
	}
	aExternal := a.Info.RouteType == externalRouteType
	bExternal := b.Info.RouteType == externalRouteType
	if aExternal != bExternal {
		return aExternal
	}
	if a.Info.Metric != b.Info.Metric {
		// Nexthop cost is carried in Metric for BGP's instantiation
		// (the shared RoutePolicyInfo has no dedicated nexthop-cost
		// field); lower wins.
		return a.Info.Metric < b.Info.Metric
	}
	if a.NeighborID != b.NeighborID {
		return a.NeighborID < b.NeighborID
	}
	return a.Info.NextHop.String() < b.Info.NextHop.String()
}

// externalRouteType mirrors policy.RouteTypeExternal without importing
// the policy package's constant directly into the comparator's
// argument list, keeping BGPLess usable with only the fields it reads.
const externalRouteType = 1

// RIPLess implements the distance-vector tie-break: strictly lower
// metric wins; spec.md section 4.7 handles same-metric replacement
// separately (only the reporting neighbor may replace a route at equal
// metric), so RIPLess is intentionally strict, not used to pick among
// multiple simultaneous candidates the way BGP's is.
func RIPLess(a, b Route) bool {
	return a.Info.Metric < b.Info.Metric
}

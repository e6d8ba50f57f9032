// Package bgp instantiates internal/decision's generic route-selection
// core for BGP (spec.md section 4.6): path-attribute wire encoding via
// gobgp's packet codec, the per-peer session and update-queue wiring,
// and the harness ProtocolHandler that ties both into
// internal/instance.
package bgp

import (
	"fmt"
	"sort"

	gobgp "github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/dantte-lp/ribd/internal/decision"
	"github.com/dantte-lp/ribd/internal/policy"
)

// BuildPathAttributes converts a policy-evaluated RoutePolicyInfo into
// the ordered path-attribute list a wire UPDATE message carries,
// leaning on gobgp's packet.bgp constructors rather than hand-rolling
// the attribute TLV encoding (SPEC_FULL.md section B: "gobgp's wire
// codec for BGP path attributes"). AS_PATH is a single four-octet
// AS_SEQUENCE segment holding only localAS: RoutePolicyInfo carries an
// AS-path length (ASPathLen) but no AS numbers, so no received path is
// encoded after it.
func BuildPathAttributes(info policy.RoutePolicyInfo, localAS uint32) []gobgp.PathAttributeInterface {
	attrs := make([]gobgp.PathAttributeInterface, 0, 6)

	attrs = append(attrs, gobgp.NewPathAttributeOrigin(uint8(encodeOrigin(info.Origin))))

	asSeq := gobgp.NewAs4PathParam(gobgp.BGP_ASPATH_ATTR_TYPE_SEQ, []uint32{localAS})
	attrs = append(attrs, gobgp.NewPathAttributeAsPath([]gobgp.AsPathParamInterface{asSeq}))

	if info.NextHop.IsUsable() {
		attrs = append(attrs, gobgp.NewPathAttributeNextHop(info.NextHop.String()))
	}

	if info.RouteType == policy.RouteTypeInternal {
		attrs = append(attrs, gobgp.NewPathAttributeLocalPref(info.LocalPref))
	}
	if info.MED != 0 {
		attrs = append(attrs, gobgp.NewPathAttributeMultiExitDisc(info.MED))
	}
	if len(info.Communities) > 0 {
		communities := append([]uint32(nil), info.Communities...)
		sort.Slice(communities, func(i, j int) bool { return communities[i] < communities[j] })
		attrs = append(attrs, gobgp.NewPathAttributeCommunities(communities))
	}

	return attrs
}

// encodeOrigin maps the shared RouteOrigin enum to BGP's wire ORIGIN
// values (IGP=0, EGP=1, INCOMPLETE=2), which happen to share the same
// ordinal layout as policy.RouteOrigin.
func encodeOrigin(o policy.RouteOrigin) int {
	switch o {
	case policy.OriginIGP:
		return 0
	case policy.OriginEGP:
		return 1
	default:
		return 2
	}
}

// AttrKeyFor derives a decision.AttrKey from a path-attribute set by
// serializing each attribute and concatenating the results, so routes
// the import pipeline evaluated to identical attributes (hence
// identical wire bytes) land in the same update-queue bucket
// (spec.md section 4.6 step 2: "a reach multimap keyed by
// attribute-set").
func AttrKeyFor(attrs []gobgp.PathAttributeInterface) (decision.AttrKey, error) {
	var key []byte
	for _, a := range attrs {
		b, err := a.Serialize()
		if err != nil {
			return "", fmt.Errorf("bgp: serialize path attribute: %w", err)
		}
		key = append(key, b...)
	}
	return decision.AttrKey(key), nil
}

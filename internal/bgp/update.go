package bgp

import (
	gobgp "github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/decision"
)

// MessageMaxLen is the largest BGP message a peer without the extended
// message capability will accept (RFC 4271 section 4: 4096 octets),
// used by decision.MaxPrefixesPerMessage to size NLRI batches.
const MessageMaxLen = 4096

// headerLen is the 19-octet fixed BGP message header (16-octet marker,
// 2-octet length, 1-octet type).
const headerLen = 19

// BuildUpdateMessages packs one attribute bucket's reachable NLRI,
// already split by decision.PackReach into wire-sized Batches, into
// gobgp BGPMessage values ready for Serialize. Each batch shares one
// attribute list since PackReach only ever groups entries with equal
// attribute keys.
func BuildUpdateMessages(attrs []gobgp.PathAttributeInterface, batches []decision.Batch) ([]*gobgp.BGPMessage, error) {
	msgs := make([]*gobgp.BGPMessage, 0, len(batches))
	for _, b := range batches {
		nlri, err := toNLRI(b.Prefixes)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, gobgp.NewBGPUpdateMessage(nil, attrs, nlri))
	}
	return msgs, nil
}

// BuildWithdrawMessages packs withdrawn-prefix Batches into
// attribute-free UPDATE messages.
func BuildWithdrawMessages(batches []decision.Batch) ([]*gobgp.BGPMessage, error) {
	msgs := make([]*gobgp.BGPMessage, 0, len(batches))
	for _, b := range batches {
		withdrawn, err := toNLRI(b.Prefixes)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, gobgp.NewBGPUpdateMessage(withdrawn, nil, nil))
	}
	return msgs, nil
}

func toNLRI(prefixes []addrfamily.Prefix) ([]*gobgp.IPAddrPrefix, error) {
	out := make([]*gobgp.IPAddrPrefix, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, gobgp.NewIPAddrPrefix(uint8(p.Len()), p.Addr().String()))
	}
	return out, nil
}

// AttributeOverheadEstimate returns a conservative per-message
// attribute-section length estimate for decision.MaxPrefixesPerMessage,
// derived by serializing attrs once.
func AttributeOverheadEstimate(attrs []gobgp.PathAttributeInterface) (int, error) {
	total := 0
	for _, a := range attrs {
		b, err := a.Serialize()
		if err != nil {
			return 0, err
		}
		total += len(b)
	}
	return total, nil
}

package ldp_test

import (
	"context"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/instance"
	"github.com/dantte-lp/ribd/internal/ldp"
	"github.com/dantte-lp/ribd/internal/linkstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nil, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func TestHandler_OneWayHelloBringsSessionToInitializing(t *testing.T) {
	t.Parallel()

	h := ldp.NewHandler(15*time.Second, discardLogger())
	h.HandleProtocol(context.Background(), instance.ProtocolMsg{
		Kind: "ldp.hello",
		Payload: ldp.Hello{
			PeerLSR:       "10.0.0.2",
			Bidirectional: false,
			HoldTime:      5 * time.Second,
		},
	})

	state, ok := h.SessionState("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, linkstate.StateInitializing, state)
}

func TestHandler_BidirectionalHelloThenSessionUpReachesFull(t *testing.T) {
	t.Parallel()

	h := ldp.NewHandler(15*time.Second, discardLogger())
	ctx := context.Background()

	h.HandleProtocol(ctx, instance.ProtocolMsg{
		Kind:    "ldp.hello",
		Payload: ldp.Hello{PeerLSR: "10.0.0.2", Bidirectional: true, HoldTime: 5 * time.Second},
	})
	state, ok := h.SessionState("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, linkstate.StateTwoWay, state)

	h.HandleProtocol(ctx, instance.ProtocolMsg{
		Kind:    "ldp.sessionup",
		Payload: ldp.SessionEstablished{PeerLSR: "10.0.0.2"},
	})
	state, ok = h.SessionState("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, linkstate.StateFull, state)
}

func TestHandler_InterfaceDownDropsAllSessions(t *testing.T) {
	t.Parallel()

	h := ldp.NewHandler(15*time.Second, discardLogger())
	ctx := context.Background()

	h.HandleProtocol(ctx, instance.ProtocolMsg{
		Kind:    "ldp.hello",
		Payload: ldp.Hello{PeerLSR: "10.0.0.2", Bidirectional: true, HoldTime: 5 * time.Second},
	})
	h.HandleSouthbound(ctx, instance.SouthboundMsg{Kind: instance.SouthboundInterfaceLinkDown})

	state, ok := h.SessionState("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, linkstate.StateDown, state)
}

func TestSelectTransportAddress_FirstMatchingFamilyWins(t *testing.T) {
	t.Parallel()

	v4 := ldp.TransportAddress{
		Family: addrfamily.FamilyV4,
		Addr:   addrfamily.MustAddress(netip.MustParseAddr("10.0.0.1")),
	}
	v4Second := ldp.TransportAddress{
		Family: addrfamily.FamilyV4,
		Addr:   addrfamily.MustAddress(netip.MustParseAddr("10.0.0.9")),
	}
	v6 := ldp.TransportAddress{
		Family: addrfamily.FamilyV6,
		Addr:   addrfamily.MustAddress(netip.MustParseAddr("2001:db8::1")),
	}

	got, ok := ldp.SelectTransportAddress([]ldp.TransportAddress{v4, v4Second, v6}, addrfamily.FamilyV4)
	require.True(t, ok)
	assert.Equal(t, v4, got, "second v4 TLV for the same family must be ignored")

	got, ok = ldp.SelectTransportAddress([]ldp.TransportAddress{v4, v4Second, v6}, addrfamily.FamilyV6)
	require.True(t, ok)
	assert.Equal(t, v6, got)

	_, ok = ldp.SelectTransportAddress(nil, addrfamily.FamilyV4)
	assert.False(t, ok)
}

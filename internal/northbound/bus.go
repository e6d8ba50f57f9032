package northbound

import (
	"log/slog"
	"sync"

	"github.com/dantte-lp/ribd/internal/instance"
)

// subscriberBuf bounds each subscriber's feed channel. A slow instance
// blocks the publisher only up to this many pending events, matching
// spec.md section 4.2's "suspend only when sending to a full bounded
// channel" contract rather than growing without bound.
const subscriberBuf = 64

// SouthboundBus is the broadcast channel described in spec.md section
// 2: "a broadcast channel carrying interface / address / route
// redistribution / nexthop-tracking / policy-update events from the OS
// integration layer." The OS integration layer itself is out of scope
// (spec.md section 1); this type is the in-process fan-out every
// instance's Channels.SouthboundIn subscribes to.
type SouthboundBus struct {
	mu     sync.Mutex
	subs   map[string]chan instance.SouthboundMsg
	logger *slog.Logger
}

// NewSouthboundBus constructs an empty bus.
func NewSouthboundBus(logger *slog.Logger) *SouthboundBus {
	return &SouthboundBus{
		subs:   make(map[string]chan instance.SouthboundMsg),
		logger: logger.With(slog.String("component", "northbound.bus")),
	}
}

// Subscribe registers instanceName for future Publish calls and
// returns the channel its harness should wire as Channels.SouthboundIn.
func (b *SouthboundBus) Subscribe(instanceName string) chan instance.SouthboundMsg {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan instance.SouthboundMsg, subscriberBuf)
	b.subs[instanceName] = ch
	return ch
}

// Unsubscribe removes instanceName's feed, closing its channel. Safe
// to call once an instance has shut down (spec.md section 4.2, step 4:
// "unsubscribe from the southbound bus").
func (b *SouthboundBus) Unsubscribe(instanceName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[instanceName]
	if !ok {
		return
	}
	delete(b.subs, instanceName)
	close(ch)
}

// Publish fans msg out to every current subscriber. A subscriber whose
// feed is full is skipped with a warning rather than blocking the
// publisher indefinitely -- one wedged instance must not stall the
// whole southbound bus.
func (b *SouthboundBus) Publish(msg instance.SouthboundMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("southbound subscriber feed full, dropping message",
				slog.String("instance", name),
				slog.Int("kind", int(msg.Kind)),
			)
		}
	}
}

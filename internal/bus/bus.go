// Package bus implements the mesh packet bus (C4): a fixed-capacity,
// multi-producer/multi-subscriber broadcast queue of DecodedPacket
// values with non-blocking publish and per-subscriber lag detection.
package bus

import (
	"context"
	"sync"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

// Depth is the number of slots in the broadcast ring (D=8).
const Depth = 8

// MaxSubscribers is the nominal number of subscriber slots. Subscribe
// does not enforce it: every call hands out a new subscription.
const MaxSubscribers = 16

type slot struct {
	seq    uint64
	packet meshpacket.DecodedPacket
	valid  bool
}

// Bus is a fixed-capacity broadcast channel of decoded packets.
// Publish never blocks: once every live subscriber has consumed the
// oldest slot it is overwritten; a subscriber that falls behind by a
// full ring's depth is marked lagged and resumes at the newest entry
// rather than applying back-pressure to publishers.
type Bus struct {
	mu          sync.Mutex
	cond        *sync.Cond
	ring        [Depth]slot
	writeCursor uint64 // next seq to be written
	subscribers int
}

// New constructs an empty packet bus.
func New() *Bus {
	b := &Bus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish broadcasts a decoded packet to every subscriber. It never
// blocks regardless of subscriber state.
func (b *Bus) Publish(pkt meshpacket.DecodedPacket) {
	b.mu.Lock()
	idx := b.writeCursor % Depth
	b.ring[idx] = slot{seq: b.writeCursor, packet: pkt, valid: true}
	b.writeCursor++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Subscriber is an independent read cursor into the bus.
type Subscriber struct {
	bus    *Bus
	cursor uint64
}

// Subscribe registers a new subscriber positioned at the current
// newest entry (it will not see packets published before it
// subscribed).
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers++
	return &Subscriber{bus: b, cursor: b.writeCursor}
}

// Receive blocks until a packet is available for this subscriber or
// ctx is done. lagged is true when the subscriber fell behind by a
// full ring depth; in that case the returned packet is the newest
// entry and the cursor resumes immediately after it: a lagged
// subscriber resumes at the newest entry rather than replaying history.
func (s *Subscriber) Receive(ctx context.Context) (pkt meshpacket.DecodedPacket, lagged bool, err error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.writeCursor == s.cursor {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				// Taking b.mu guarantees the waiter is parked in Wait
				// before the broadcast, so the wakeup cannot be lost.
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-done:
			}
		}()
		b.cond.Wait()
		close(done)
		if err = ctx.Err(); err != nil {
			return meshpacket.DecodedPacket{}, false, err
		}
	}

	if b.writeCursor-s.cursor > Depth {
		s.cursor = b.writeCursor - 1
		lagged = true
	}

	idx := s.cursor % Depth
	sl := b.ring[idx]
	s.cursor++
	return sl.packet, lagged, nil
}

package processor

import (
	"context"
	"testing"
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/bus"
	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
	"github.com/gatlinnewhouse/meshcore/internal/nodedb"
)

func TestProcessorTaskUpdatesNodeDatabase(t *testing.T) {
	db := nodedb.New(8)
	b := bus.New()
	task := New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go task.Run(ctx, b)

	// Run subscribes inside its goroutine, and the bus does not deliver
	// packets published before a subscription exists; give it time to
	// subscribe first.
	time.Sleep(50 * time.Millisecond)
	b.Publish(meshpacket.DecodedPacket{
		Header: meshpacket.Header{
			Source:      0x4242,
			Destination: meshpacket.BroadcastAddr,
			PacketID:    1,
		},
		Payload: meshpacket.Payload{Port: meshpacket.PortTextMessage},
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := db.Get(0x4242); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("node 0x4242 was never registered in the node database")
}

func TestProcessorTaskStopsOnContextCancel(t *testing.T) {
	db := nodedb.New(8)
	b := bus.New()
	task := New(db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx, b)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// Package processor implements the packet-processor task (C9): an
// independent subscription on the packet bus (C4) that feeds every
// decoded packet into the node database (C5), keeping the peer
// registry current without the relay engine (C6) needing to touch it
// directly.
package processor

import (
	"context"
	"log"
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/bus"
	"github.com/gatlinnewhouse/meshcore/internal/nodedb"
)

// Task drains its own bus subscription and updates db from every
// decoded packet observed.
type Task struct {
	db *nodedb.NodeDatabase
}

// New constructs a packet-processor task updating db.
func New(db *nodedb.NodeDatabase) *Task {
	return &Task{db: db}
}

// Run subscribes to b and updates the node database from every decoded
// packet until ctx is done or the subscription errors.
func (t *Task) Run(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe()
	for {
		pkt, lagged, err := sub.Receive(ctx)
		if err != nil {
			return
		}
		if lagged {
			log.Println("processor: subscriber lagged, resumed at newest packet")
		}
		t.db.AddOrUpdateFromPacket(&pkt, uint32(time.Now().Unix()))
	}
}

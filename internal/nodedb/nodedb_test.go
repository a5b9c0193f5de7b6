package nodedb

import (
	"testing"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

func packetFrom(source uint32, port meshpacket.Port, data []byte, snr int8) *meshpacket.DecodedPacket {
	return &meshpacket.DecodedPacket{
		Header:  meshpacket.Header{Source: source, ChannelHash: 1},
		SNR:     snr,
		Payload: meshpacket.Payload{Port: port, Data: data},
	}
}

func TestAddOrUpdateFieldMerge(t *testing.T) {
	db := New(4)

	user := User{LongName: "Base Station", ShortName: "BASE", HWModel: 3}
	db.AddOrUpdateFromPacket(packetFrom(100, meshpacket.PortNodeInfo, EncodeUser(user), 5), 1000)

	node, ok := db.Get(100)
	if !ok {
		t.Fatal("expected node 100 to be tracked")
	}
	if node.User == nil || node.User.LongName != "Base Station" {
		t.Fatalf("user block not set: %+v", node.User)
	}

	pos := Position{LatI: 1, LonI: 2, Altitude: 3, Time: 4, LocationSource: 1}
	db.AddOrUpdateFromPacket(packetFrom(100, meshpacket.PortPosition, EncodePosition(pos), 7), 2000)

	node, _ = db.Get(100)
	if node.Position == nil || node.Position.LatI != 1 {
		t.Fatalf("position block not set: %+v", node.Position)
	}
	if node.User == nil || node.User.LongName != "Base Station" {
		t.Fatal("prior user block must be preserved across unrelated update")
	}
	if node.SNR != 7 || node.LastHeard != 2000 {
		t.Fatalf("snr/last_heard not updated: snr=%v last_heard=%v", node.SNR, node.LastHeard)
	}
}

func TestEvictsSmallestLastHeard(t *testing.T) {
	db := New(2)

	db.AddOrUpdateFromPacket(packetFrom(1, meshpacket.PortTextMessage, nil, 0), 100)
	db.AddOrUpdateFromPacket(packetFrom(2, meshpacket.PortTextMessage, nil, 0), 200)
	if db.Len() != 2 {
		t.Fatalf("len = %d, want 2", db.Len())
	}

	db.AddOrUpdateFromPacket(packetFrom(3, meshpacket.PortTextMessage, nil, 0), 300)
	if db.Len() != 2 {
		t.Fatalf("len after eviction = %d, want 2", db.Len())
	}
	if _, ok := db.Get(1); ok {
		t.Fatal("node with smallest last_heard should have been evicted")
	}
	if _, ok := db.Get(2); !ok {
		t.Fatal("node 2 should still be tracked")
	}
	if _, ok := db.Get(3); !ok {
		t.Fatal("newly inserted node 3 should be tracked")
	}
}

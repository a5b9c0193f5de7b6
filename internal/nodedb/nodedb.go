// Package nodedb implements the node database (C5): a bounded,
// in-memory registry of mesh peers, updated from observed packets and
// evicted by least-recently-heard when full.
package nodedb

import (
	"sync"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

// DefaultCapacity is the default bound on the number of tracked peers.
const DefaultCapacity = 64

// User holds the optional user-identity block of a NodeInfo.
type User struct {
	LongName   string
	ShortName  string
	HWModel    uint8
	Role       uint8
	IsLicensed bool
}

// Position holds the optional position block of a NodeInfo.
type Position struct {
	LatI           int32
	LonI           int32
	Altitude       int32
	Time           uint32
	LocationSource uint8
}

// DeviceMetrics holds the optional telemetry block of a NodeInfo.
type DeviceMetrics struct {
	BatteryLevel  uint8
	Voltage       float32
	ChannelUtil   float32
	AirUtilTX     float32
	UptimeSeconds uint32
}

// NodeInfo is one tracked peer record.
type NodeInfo struct {
	Num           uint32
	User          *User
	Position      *Position
	DeviceMetrics *DeviceMetrics
	SNR           float32
	LastHeard     uint32
	Channel       uint8
}

// NodeDatabase is the bounded peer registry. It imposes no locking
// discipline of its own — callers either confine access to a single
// task (as C9 does) or take an external lock — but provides a safe
// exported API guarded by its own mutex so either usage is sound.
type NodeDatabase struct {
	mu       sync.Mutex
	capacity int
	nodes    map[uint32]*NodeInfo
}

// New constructs an empty node database bounded to capacity entries.
func New(capacity int) *NodeDatabase {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &NodeDatabase{
		capacity: capacity,
		nodes:    make(map[uint32]*NodeInfo, capacity),
	}
}

// AddOrUpdateFromPacket promotes or inserts a NodeInfo from an observed
// decoded packet. Updates are field-merge: fields present in the
// incoming packet replace prior values; fields the packet does not
// carry are preserved. snr (from the packet's SNR) and lastHeard (from
// the lastHeard argument) are always updated.
func (db *NodeDatabase) AddOrUpdateFromPacket(pkt *meshpacket.DecodedPacket, lastHeard uint32) {
	db.mu.Lock()
	defer db.mu.Unlock()

	num := pkt.Header.Source
	existing, ok := db.nodes[num]
	if !ok {
		if len(db.nodes) >= db.capacity {
			db.evictOldestLocked()
		}
		existing = &NodeInfo{Num: num}
		db.nodes[num] = existing
	}

	existing.SNR = float32(pkt.SNR)
	existing.LastHeard = lastHeard
	existing.Channel = pkt.Header.ChannelHash

	switch pkt.Payload.Port {
	case meshpacket.PortNodeInfo:
		if u := decodeUser(pkt.Payload.Data); u != nil {
			existing.User = u
		}
	case meshpacket.PortPosition:
		if p := decodePosition(pkt.Payload.Data); p != nil {
			existing.Position = p
		}
	case meshpacket.PortTelemetry:
		if m := decodeDeviceMetrics(pkt.Payload.Data); m != nil {
			existing.DeviceMetrics = m
		}
	}
}

// Get returns the tracked NodeInfo for num, if any.
func (db *NodeDatabase) Get(num uint32) (NodeInfo, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, ok := db.nodes[num]
	if !ok {
		return NodeInfo{}, false
	}
	return *n, true
}

// Iter returns a snapshot slice of every tracked NodeInfo.
func (db *NodeDatabase) Iter() []NodeInfo {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]NodeInfo, 0, len(db.nodes))
	for _, n := range db.nodes {
		out = append(out, *n)
	}
	return out
}

// Len reports the number of tracked peers.
func (db *NodeDatabase) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.nodes)
}

// evictOldestLocked removes the entry with the smallest LastHeard.
// Caller must hold db.mu.
func (db *NodeDatabase) evictOldestLocked() {
	var oldestNum uint32
	var oldestHeard uint32
	first := true
	for num, n := range db.nodes {
		if first || n.LastHeard < oldestHeard {
			oldestNum = num
			oldestHeard = n.LastHeard
			first = false
		}
	}
	if !first {
		delete(db.nodes, oldestNum)
	}
}

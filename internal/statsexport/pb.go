// Package statsexport implements the two host-facing RelayStats
// observation surfaces this core ships in place of the firmware's
// unspecified serial control plane (§6): a streaming gRPC service
// (A6) and a read-only websocket feed (A7). Neither participates in
// the packet pipeline or relay engine — both only observe snapshots
// handed to them.
//
// The gRPC service's messages are hand-written Go structs rather than
// protoc-generated code, manually defined to avoid requiring protoc
// compilation: there is no existing .proto schema for this core's
// RelayStats shape to generate from.
package statsexport

// Empty is the (no-field) request message for StreamStats.
type Empty struct{}

// StatsSnapshot is the streamed message: a point-in-time copy of the
// relay engine's counters plus a timestamp.
type StatsSnapshot struct {
	RecordedAtUnixMs        int64   `json:"recorded_at_unix_ms"`
	PacketsReceived         uint64  `json:"packets_received"`
	PacketsQueued           uint64  `json:"packets_queued"`
	PacketsTransmitted      uint64  `json:"packets_transmitted"`
	PacketsDropped          uint64  `json:"packets_dropped"`
	PacketsExpired          uint64  `json:"packets_expired"`
	ChannelBusyEvents       uint64  `json:"channel_busy_events"`
	DutyCycleBlocks         uint64  `json:"duty_cycle_blocks"`
	ImplicitAcks            uint64  `json:"implicit_acks"`
	LoopPreventionDrops     uint64  `json:"loop_prevention_drops"`
	Retransmissions         uint64  `json:"retransmissions"`
	CurrentDutyCyclePercent float64 `json:"current_duty_cycle_percent"`
}

// Source is anything that can produce a current stats snapshot. The
// relay engine's Stats() accessor, wrapped with a timestamp, satisfies
// this via the adapter in cmd/meshcore.
type Source interface {
	Snapshot() StatsSnapshot
}

// SnapshotFunc adapts a plain function to Source.
type SnapshotFunc func() StatsSnapshot

// Snapshot implements Source.
func (f SnapshotFunc) Snapshot() StatsSnapshot { return f() }

package relay

import (
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

// Scheduling-delay constants (§4.6.2).
const (
	MinHopDelayMs = 200
	MaxHopDelayMs = 300
	HopPenaltyMs  = 50
)

// Bounded-collection limits (invariants iv/v, P4).
const (
	MaxPendingPackets = 16
	MaxRecentPackets  = 32
)

// MaxPacketAgeMs is the expiration threshold measured from queued_at
// (§4.6.7).
const MaxPacketAgeMs = 60000

// MaxBusyCount is the channel-busy backoff ceiling; exceeding it drops
// the packet (§4.6.4).
const MaxBusyCount = 8

// MaintenanceInterval is the relay main loop's periodic timer, firing
// even with no bus traffic to guarantee bounded liveness (§5).
const MaintenanceInterval = time.Second

// RetryIntervalsMs are the retransmission delays indexed by
// retry_count, clamped to the last entry (§4.6.3).
var RetryIntervalsMs = []int64{5000, 15000, 30000, 60000, 120000}

// Priority levels, matching the original firmware's priority scale.
const (
	PriorityUnset      uint8 = 0
	PriorityMin        uint8 = 1
	PriorityBackground uint8 = 10
	PriorityDefault    uint8 = 64
	PriorityReliable   uint8 = 70
	PriorityAck        uint8 = 120
	PriorityMax        uint8 = 127
)

// maxRetxForPort returns the bounded-retry ceiling for a port,
// overridden to zero when the packet does not want an acknowledgment
// (§4.6.3).
func maxRetxForPort(port meshpacket.Port, wantsAck bool) uint8 {
	if !wantsAck {
		return 0
	}
	switch port {
	case meshpacket.PortRouting:
		return 4
	case meshpacket.PortTextMessage:
		return 2
	default:
		return 3
	}
}

// retryDelayMs returns the retransmission delay to schedule after a
// transmission that brought the pending entry's retry_count to
// retryCountAfterTX, clamping to the last configured interval. A
// retry_count of 1 (the first transmission just completed) schedules
// the first retry at RetryIntervalsMs[0], and so on.
func retryDelayMs(retryCountAfterTX uint8) int64 {
	idx := int(retryCountAfterTX) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(RetryIntervalsMs) {
		idx = len(RetryIntervalsMs) - 1
	}
	return RetryIntervalsMs[idx]
}

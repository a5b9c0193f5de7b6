package relay

import (
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

// State is a PendingPacket's position in its per-packet state machine
// (§4.6.8).
type State int

const (
	// StateWaiting is the initial state: queued, next_tx_time not yet reached.
	StateWaiting State = iota
	// StateReady means now >= next_tx_time; eligible for transmission.
	StateReady
	// StateTransmitting is entered for the duration of a PHY TX call.
	StateTransmitting
	// StateDone is terminal: completed, expired, over-busy, or failed validation.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateTransmitting:
		return "transmitting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// PendingPacket is one queued rebroadcast candidate (§3).
type PendingPacket struct {
	Original   meshpacket.DecodedPacket
	QueuedAt   time.Time
	NextTXTime time.Time
	MaxRetx    uint8
	RetryCount uint8
	BusyCount  uint8
	WantsAck   bool
	Priority   uint8
	State      State
}

// expired reports whether p is older than MaxPacketAgeMs as of now.
func (p *PendingPacket) expired(now time.Time) bool {
	return now.Sub(p.QueuedAt) >= time.Duration(MaxPacketAgeMs)*time.Millisecond
}

// refreshState advances Waiting to Ready once next_tx_time has arrived.
// It never moves a packet out of Transmitting or Done — those
// transitions are driven explicitly by the engine's TX outcome
// handling.
func (p *PendingPacket) refreshState(now time.Time) {
	if p.State == StateWaiting && !now.Before(p.NextTXTime) {
		p.State = StateReady
	}
}

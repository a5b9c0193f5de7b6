package relay

import "github.com/gatlinnewhouse/meshcore/internal/meshpacket"

// Decision is the outcome of should_relay's ordered rule evaluation
// (§4.6.1).
type Decision int

const (
	// Admitted means the packet should be queued for rebroadcast.
	Admitted Decision = iota
	// DeniedInvalidPacketID means packet_id == 0.
	DeniedInvalidPacketID
	// DeniedInvalidHop means hop_start > 7 or hop_limit > hop_start.
	DeniedInvalidHop
	// DeniedInvalidSource means source is 0 or the broadcast sentinel.
	DeniedInvalidSource
	// DeniedOwnSource means source == our_node_id; handled via the
	// implicit-ACK path rather than queued.
	DeniedOwnSource
	// DeniedDuplicate means packet_id is already in the recent set.
	DeniedDuplicate
	// DeniedHopExhausted means hop_limit == 0.
	DeniedHopExhausted
	// DeniedTerminal means destination == our_node_id.
	DeniedTerminal
	// DeniedPort means the port is not in the conservative relay whitelist.
	DeniedPort
)

// relayablePorts is the conservative port whitelist admission rule 8
// consults.
var relayablePorts = map[meshpacket.Port]bool{
	meshpacket.PortRouting:     true,
	meshpacket.PortTextMessage: true,
	meshpacket.PortNodeInfo:    true,
	meshpacket.PortPosition:    true,
	meshpacket.PortTelemetry:   true,
}

// shouldRelay evaluates the ordered admission rules of §4.6.1 against
// pkt, given ourNodeID and the current recent-packet duplicate set.
// isRecent is a predicate rather than a concrete set type so callers
// can consult the engine's actual ring under its own lock.
func shouldRelay(pkt *meshpacket.DecodedPacket, ourNodeID uint32, isRecent func(uint32) bool) Decision {
	h := pkt.Header

	if h.PacketID == 0 {
		return DeniedInvalidPacketID
	}
	if h.HopStart > meshpacket.MaxHopCount || h.HopLimit > h.HopStart {
		return DeniedInvalidHop
	}
	if h.Source == 0 || h.Source == meshpacket.BroadcastAddr {
		return DeniedInvalidSource
	}
	if h.Source == ourNodeID {
		return DeniedOwnSource
	}
	if isRecent(h.PacketID) {
		return DeniedDuplicate
	}
	if h.HopLimit == 0 {
		return DeniedHopExhausted
	}
	if h.Destination == ourNodeID {
		return DeniedTerminal
	}
	if !relayablePorts[pkt.Payload.Port] {
		return DeniedPort
	}
	return Admitted
}

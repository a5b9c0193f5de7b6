// Package relay implements the relay engine (C6) and duty-cycle
// accountant (C7): admission, scheduling, retry, channel-busy backoff,
// duty-cycle gating, implicit-ACK detection, and the per-packet state
// machine for per-packet rebroadcast decisions.
package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/bus"
	"github.com/gatlinnewhouse/meshcore/internal/entropy"
	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

// Transmitter is the callback handle the relay engine uses to hand a
// decoded packet back to the radio task (C8) for retransmission. The
// radio task is responsible for re-encoding the header and
// re-encrypting the payload with the original channel key before
// invoking the PHY TX primitive (§4.7) — the relay engine itself never
// touches wire bytes.
type Transmitter interface {
	Transmit(ctx context.Context, pkt *meshpacket.DecodedPacket) error
	ChannelBusy() bool
}

// AuditSink receives relay decisions for ambient persistence (A5). It
// is optional: a nil sink disables audit logging without affecting
// relay behavior.
type AuditSink interface {
	RecordDecision(packetID, source, destination uint32, port meshpacket.Port, decision string, detail string)
}

// Config configures an Engine.
type Config struct {
	OurNodeID  uint32
	LoRa       LoRaParams
	Clock      Clock
	Entropy    entropy.Source
	AuditSink  AuditSink
	RXBoost    bool
}

// Engine is the relay engine: the bounded priority scheduler that is
// the single largest component of this core.
type Engine struct {
	ourNodeID uint32
	loraParams LoRaParams
	clock     Clock
	entropy   entropy.Source
	audit     AuditSink
	rxBoost   bool

	mu         sync.Mutex
	pending    map[uint32]*PendingPacket
	recentRing [MaxRecentPackets]uint32
	recentPos  int
	recentLen  int
	recentSet  map[uint32]bool

	dutyCycle *DutyCycleAccountant
	stats     Stats
}

// New constructs a relay engine. now anchors the duty-cycle
// accountant's rolling window.
func New(cfg Config, now time.Time) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	ent := cfg.Entropy
	if ent == nil {
		ent = entropy.Crypto{}
	}
	return &Engine{
		ourNodeID:  cfg.OurNodeID,
		loraParams: cfg.LoRa,
		clock:      clock,
		entropy:    ent,
		audit:      cfg.AuditSink,
		rxBoost:    cfg.RXBoost,
		pending:    make(map[uint32]*PendingPacket, MaxPendingPackets),
		recentSet:  make(map[uint32]bool, MaxRecentPackets),
		dutyCycle:  NewDutyCycleAccountant(now),
	}
}

// Stats returns a snapshot of the relay engine's counters (§4.6.9).
func (e *Engine) Stats() Stats {
	return e.stats.Snapshot()
}

// PendingCount reports the current number of queued entries, for tests
// asserting P4 (|pending_packets| <= 16).
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Run subscribes to b and drives the relay engine's main loop:
// suspend on either a new bus message or the 1-second maintenance
// timer, whichever fires first (§5), handling inbound packets and
// sweeping/transmitting pending entries on every wake.
func (e *Engine) Run(ctx context.Context, b *bus.Bus, tx Transmitter) {
	sub := b.Subscribe()
	msgCh := make(chan meshpacket.DecodedPacket)

	go func() {
		for {
			pkt, _, err := sub.Receive(ctx)
			if err != nil {
				return
			}
			select {
			case msgCh <- pkt:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-msgCh:
			e.HandleInbound(&pkt)
		case <-ticker.C:
		}
		e.maintenance(ctx, tx)
	}
}

// HandleInbound processes one decoded packet from the bus: implicit-ACK
// detection first (§4.6.6), then the admission rules (§4.6.1), then
// queueing if admitted.
func (e *Engine) HandleInbound(pkt *meshpacket.DecodedPacket) {
	e.stats.incReceived()

	e.mu.Lock()
	defer e.mu.Unlock()

	if pkt.Header.Source == e.ourNodeID {
		if _, ok := e.pending[pkt.Header.PacketID]; ok {
			delete(e.pending, pkt.Header.PacketID)
			e.stats.incImplicitAcks()
			e.audit_(pkt, "implicit_ack", "")
		}
	}

	decision := shouldRelay(pkt, e.ourNodeID, e.isRecentLocked)
	switch decision {
	case Admitted:
		e.queueLocked(pkt)
	case DeniedDuplicate:
		e.stats.incLoopPreventionDrops()
		e.audit_(pkt, "dropped", "duplicate")
	default:
		e.audit_(pkt, "dropped", decisionLabel(decision))
	}
}

func decisionLabel(d Decision) string {
	switch d {
	case DeniedInvalidPacketID:
		return "invalid_packet_id"
	case DeniedInvalidHop:
		return "invalid_hop"
	case DeniedInvalidSource:
		return "invalid_source"
	case DeniedOwnSource:
		return "own_source"
	case DeniedHopExhausted:
		return "hop_exhausted"
	case DeniedTerminal:
		return "terminal"
	case DeniedPort:
		return "port_not_relayable"
	default:
		return "unknown"
	}
}

func (e *Engine) audit_(pkt *meshpacket.DecodedPacket, decision, detail string) {
	if e.audit == nil {
		return
	}
	e.audit.RecordDecision(pkt.Header.PacketID, pkt.Header.Source, pkt.Header.Destination, pkt.Payload.Port, decision, detail)
}

// isRecentLocked reports whether packetID is in the recent-packets
// duplicate-suppression set. Caller must hold e.mu.
func (e *Engine) isRecentLocked(packetID uint32) bool {
	return e.recentSet[packetID]
}

// addRecentLocked records packetID in the bounded recent-packets ring,
// evicting the oldest entry once full. Caller must hold e.mu.
func (e *Engine) addRecentLocked(packetID uint32) {
	if e.recentLen == MaxRecentPackets {
		oldest := e.recentRing[e.recentPos]
		delete(e.recentSet, oldest)
	} else {
		e.recentLen++
	}
	e.recentRing[e.recentPos] = packetID
	e.recentSet[packetID] = true
	e.recentPos = (e.recentPos + 1) % MaxRecentPackets
}

// priorityForPort assigns a scheduling priority by application port.
// Routing control traffic is treated as reliable-priority; telemetry
// and position updates are background priority; everything else gets
// the default.
func priorityForPort(port meshpacket.Port) uint8 {
	switch port {
	case meshpacket.PortRouting:
		return PriorityReliable
	case meshpacket.PortPosition, meshpacket.PortTelemetry:
		return PriorityBackground
	default:
		return PriorityDefault
	}
}

// queueLocked admits pkt into the pending-packet table. Caller must
// hold e.mu.
func (e *Engine) queueLocked(pkt *meshpacket.DecodedPacket) {
	if len(e.pending) >= MaxPendingPackets {
		e.stats.incDropped()
		e.audit_(pkt, "dropped", "queue_full")
		return
	}

	wantsAck := pkt.Header.WantAck
	maxRetx := maxRetxForPort(pkt.Payload.Port, wantsAck)
	priority := priorityForPort(pkt.Payload.Port)

	delay, err := computeScheduleDelay(pkt.Header.HopStart, pkt.Header.HopLimit, priority, e.rxBoost, e.entropy)
	if err != nil {
		log.Printf("relay: scheduling delay computation failed, dropping packet %d: %v", pkt.Header.PacketID, err)
		e.stats.incDropped()
		return
	}

	now := e.clock.Now()
	e.pending[pkt.Header.PacketID] = &PendingPacket{
		Original:   *pkt,
		QueuedAt:   now,
		NextTXTime: now.Add(delay),
		MaxRetx:    maxRetx,
		WantsAck:   wantsAck,
		Priority:   priority,
		State:      StateWaiting,
	}
	e.addRecentLocked(pkt.Header.PacketID)
	e.stats.incQueued()
	e.audit_(pkt, "admitted", "")
}

// maintenance sweeps expired entries, advances Waiting->Ready
// transitions, and — if a ready packet exists — attempts one
// transmission per tick, choosing the ready entry with the smallest
// next_tx_time (ties broken by smallest packet_id), per the §5
// correction to the original's naive first-match scan.
func (e *Engine) maintenance(ctx context.Context, tx Transmitter) {
	e.mu.Lock()
	now := e.clock.Now()

	for id, p := range e.pending {
		if p.State == StateDone {
			delete(e.pending, id)
			continue
		}
		if p.expired(now) {
			delete(e.pending, id)
			e.stats.incExpired()
			continue
		}
		p.refreshState(now)
	}

	var chosenID uint32
	var chosen *PendingPacket
	for id, p := range e.pending {
		if p.State != StateReady {
			continue
		}
		if chosen == nil || p.NextTXTime.Before(chosen.NextTXTime) ||
			(p.NextTXTime.Equal(chosen.NextTXTime) && id < chosenID) {
			chosen, chosenID = p, id
		}
	}

	e.stats.setCurrentDutyCyclePercent(e.dutyCycle.CurrentPercent())

	if chosen == nil {
		e.mu.Unlock()
		return
	}

	if tx.ChannelBusy() {
		chosen.BusyCount++
		e.stats.incChannelBusy()
		if chosen.BusyCount > MaxBusyCount {
			delete(e.pending, chosenID)
			e.stats.incDropped()
		} else {
			backoffMs := 100 * (1 << chosen.BusyCount)
			chosen.NextTXTime = now.Add(time.Duration(backoffMs) * time.Millisecond)
			chosen.State = StateWaiting
		}
		e.mu.Unlock()
		return
	}

	estimate := EstimateAirtimeMs(e.loraParams, len(chosen.Original.Payload.Data)+payloadEnvelopeOverhead)
	if !e.dutyCycle.CanTransmit(estimate) {
		e.stats.incDutyCycleBlocks()
		e.mu.Unlock()
		return
	}

	chosen.State = StateTransmitting
	e.mu.Unlock()

	pktCopy := chosen.Original
	txErr := tx.Transmit(ctx, &pktCopy)

	e.mu.Lock()
	defer e.mu.Unlock()

	p, stillPending := e.pending[chosenID]
	if !stillPending {
		// Implicit-ACKed (or otherwise removed) while the lock was
		// released for transmission; nothing left to update.
		return
	}

	if txErr != nil {
		e.stats.incDropped()
		delete(e.pending, chosenID)
		return
	}

	e.dutyCycle.RecordTX(now, estimate)
	e.stats.incTransmitted()
	if p.RetryCount > 0 {
		e.stats.incRetransmissions()
	}

	p.RetryCount++
	if p.RetryCount > p.MaxRetx {
		delete(e.pending, chosenID)
		return
	}

	p.NextTXTime = now.Add(time.Duration(retryDelayMs(p.RetryCount)) * time.Millisecond)
	p.State = StateWaiting
}

// payloadEnvelopeOverhead accounts for the fixed payload envelope size
// (meshpacket.payloadHeaderSize) plus the 16-byte frame header, so
// airtime estimates are computed against the actual on-air frame size
// rather than just the application data bytes.
const payloadEnvelopeOverhead = meshpacket.HeaderSize + 18

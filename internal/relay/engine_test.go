package relay

import (
	"context"
	"testing"
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

// fixedEntropy is a deterministic entropy.Source test double: it
// always returns the same byte, making jitter draws (and therefore
// scheduling delays) reproducible in tests.
type fixedEntropy struct{ b byte }

func (f fixedEntropy) Fill(buf []byte) error {
	for i := range buf {
		buf[i] = f.b
	}
	return nil
}

// fakeTransmitter is a hand-written Transmitter test double, following
// this repo's usual mock-collaborator-struct idiom.
type fakeTransmitter struct {
	busy      bool
	failNext  bool
	transmits []meshpacket.DecodedPacket
}

func (f *fakeTransmitter) ChannelBusy() bool { return f.busy }

func (f *fakeTransmitter) Transmit(ctx context.Context, pkt *meshpacket.DecodedPacket) error {
	if f.failNext {
		f.failNext = false
		return errTransmitFailed
	}
	f.transmits = append(f.transmits, *pkt)
	return nil
}

var errTransmitFailed = &transmitError{"simulated PHY failure"}

type transmitError struct{ msg string }

func (e *transmitError) Error() string { return e.msg }

func newTestEngine(now time.Time, ourNodeID uint32) (*Engine, *testClock) {
	clk := newTestClock(now)
	eng := New(Config{
		OurNodeID: ourNodeID,
		LoRa:      LoRaParams{SpreadingFactor: 11, BandwidthHz: 250000, CodingRate: 5, PreambleSymbols: 16},
		Clock:     clk,
		Entropy:   fixedEntropy{b: 0},
	}, now)
	return eng, clk
}

func routingPacket(packetID, source uint32, hopStart, hopLimit uint8, wantAck bool) *meshpacket.DecodedPacket {
	return &meshpacket.DecodedPacket{
		Header: meshpacket.Header{
			Destination: meshpacket.BroadcastAddr,
			Source:      source,
			PacketID:    packetID,
			HopStart:    hopStart,
			HopLimit:    hopLimit,
			WantAck:     wantAck,
		},
		Payload: meshpacket.Payload{Port: meshpacket.PortRouting, Data: []byte("r")},
	}
}

// S2: duplicate suppression.
func TestDuplicateSuppression(t *testing.T) {
	eng, _ := newTestEngine(time.Unix(0, 0), 0xDEADBEEF)
	pkt := routingPacket(1, 0x11111111, 3, 3, true)

	eng.HandleInbound(pkt)
	eng.HandleInbound(pkt)

	stats := eng.Stats()
	if stats.PacketsQueued != 1 {
		t.Fatalf("packets_queued = %d, want 1", stats.PacketsQueued)
	}
	if stats.LoopPreventionDrops != 1 {
		t.Fatalf("loop_prevention_drops = %d, want 1", stats.LoopPreventionDrops)
	}
}

// S3: hop-limit exhausted.
func TestHopLimitExhausted(t *testing.T) {
	eng, _ := newTestEngine(time.Unix(0, 0), 0xDEADBEEF)
	pkt := routingPacket(2, 0x11111111, 3, 0, true)

	eng.HandleInbound(pkt)

	if eng.PendingCount() != 0 {
		t.Fatalf("pending count = %d, want 0", eng.PendingCount())
	}
	if eng.Stats().PacketsQueued != 0 {
		t.Fatal("hop-exhausted packet must not be queued")
	}
}

// S4: implicit ACK.
func TestImplicitAck(t *testing.T) {
	eng, _ := newTestEngine(time.Unix(0, 0), 0xDEADBEEF)

	queued := routingPacket(42, 0x11111111, 3, 3, true)
	eng.HandleInbound(queued)
	if eng.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", eng.PendingCount())
	}

	echo := routingPacket(42, 0xDEADBEEF, 3, 2, true)
	eng.HandleInbound(echo)

	if eng.PendingCount() != 0 {
		t.Fatalf("pending count after implicit ack = %d, want 0", eng.PendingCount())
	}
	if eng.Stats().ImplicitAcks != 1 {
		t.Fatalf("implicit_acks = %d, want 1", eng.Stats().ImplicitAcks)
	}
}

// S5: retry schedule for a want-ack Routing packet.
func TestRetrySchedule(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	eng, clk := newTestEngine(start, 0xDEADBEEF)
	tx := &fakeTransmitter{}
	ctx := context.Background()

	pkt := routingPacket(7, 0x11111111, 3, 3, true)
	eng.HandleInbound(pkt)

	// TX1: fast-forward past the initial jitter delay.
	clk.Advance(time.Second)
	eng.maintenance(ctx, tx)
	if len(tx.transmits) != 1 {
		t.Fatalf("after TX1, transmits = %d, want 1", len(tx.transmits))
	}
	assertRetryCount(t, eng, 7, 1)

	// TX2..TX4: one retransmission per retry-schedule gap.
	gaps := []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
	for i, gap := range gaps {
		clk.Advance(gap + time.Millisecond)
		eng.maintenance(ctx, tx)
		assertRetryCount(t, eng, 7, uint8(i+2))
	}
	if len(tx.transmits) != 4 {
		t.Fatalf("after TX2-4, transmits = %d, want 4", len(tx.transmits))
	}

	// TX5: retry_count would become 5 > max_retx=4, so the entry is removed.
	clk.Advance(60*time.Second + time.Millisecond)
	eng.maintenance(ctx, tx)

	if eng.PendingCount() != 0 {
		t.Fatalf("pending count after max_retx reached = %d, want 0", eng.PendingCount())
	}
	if len(tx.transmits) != 5 {
		t.Fatalf("total transmissions = %d, want 5", len(tx.transmits))
	}
	if eng.Stats().Retransmissions != 4 {
		t.Fatalf("retransmissions = %d, want 4", eng.Stats().Retransmissions)
	}
}

func assertRetryCount(t *testing.T, eng *Engine, packetID uint32, want uint8) {
	t.Helper()
	eng.mu.Lock()
	p, ok := eng.pending[packetID]
	eng.mu.Unlock()
	if !ok {
		t.Fatalf("pending entry for packet %d missing", packetID)
	}
	if p.RetryCount != want {
		t.Fatalf("packet %d: retry_count = %d, want %d", packetID, p.RetryCount, want)
	}
}

// S6: channel-busy backoff.
func TestChannelBusyBackoff(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	eng, clk := newTestEngine(start, 0xDEADBEEF)
	tx := &fakeTransmitter{busy: true}
	ctx := context.Background()

	pkt := routingPacket(9, 0x11111111, 3, 3, false)
	eng.HandleInbound(pkt)

	clk.Advance(time.Second)
	eng.maintenance(ctx, tx)

	wantBackoffMs := []int64{200, 400, 800, 1600, 3200, 6400, 12800, 25600}
	for i, ms := range wantBackoffMs {
		eng.mu.Lock()
		p, ok := eng.pending[9]
		eng.mu.Unlock()
		if !ok {
			t.Fatalf("busy iteration %d: pending entry missing", i)
		}
		if p.BusyCount != uint8(i+1) {
			t.Fatalf("busy iteration %d: busy_count = %d, want %d", i, p.BusyCount, i+1)
		}
		clk.Advance(time.Duration(ms)*time.Millisecond + time.Millisecond)
		eng.maintenance(ctx, tx)
	}

	if eng.PendingCount() != 0 {
		t.Fatal("packet should be dropped after exceeding max busy count")
	}
	if eng.Stats().PacketsDropped != 1 {
		t.Fatalf("packets_dropped = %d, want 1", eng.Stats().PacketsDropped)
	}
	// 8 backoffs plus the ninth busy report that triggers the drop.
	wantEvents := uint64(len(wantBackoffMs) + 1)
	if eng.Stats().ChannelBusyEvents != wantEvents {
		t.Fatalf("channel_busy_events = %d, want %d", eng.Stats().ChannelBusyEvents, wantEvents)
	}
}

// S7: duty-cycle gate.
func TestDutyCycleGate(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	eng, clk := newTestEngine(start, 0xDEADBEEF)
	// Pre-charge to just under the regulatory line (~9.99% of the
	// window) so that the candidate's own airtime estimate tips
	// cumulative usage over 10%. A pre-charge of exactly 358s (~9.94%)
	// plus a sub-second candidate never actually crosses 10%, so this
	// is chosen to land the test on the blocking side of the formula
	// in §4.6.5 rather than mirror that number literally.
	eng.dutyCycle.RecordTX(start, 359_600)

	tx := &fakeTransmitter{}
	ctx := context.Background()

	pkt := routingPacket(11, 0x11111111, 3, 3, false)
	eng.HandleInbound(pkt)
	clk.Advance(time.Second)

	eng.maintenance(ctx, tx)

	if len(tx.transmits) != 0 {
		t.Fatal("transmission should have been deferred by the duty-cycle gate")
	}
	if eng.Stats().DutyCycleBlocks != 1 {
		t.Fatalf("duty_cycle_blocks = %d, want 1", eng.Stats().DutyCycleBlocks)
	}
	if eng.PendingCount() != 1 {
		t.Fatal("duty-cycle gate defers, it must not drop the pending entry")
	}

	clk.Advance(WindowDuration + time.Second)
	eng.dutyCycle.RecordTX(clk.Now(), 0)
	if pct := eng.dutyCycle.CurrentPercent(); pct > 1 {
		t.Fatalf("duty cycle window should have reset, got %.2f%%", pct)
	}
}

// P3: admitted packets satisfy the header invariants.
func TestAdmittedPacketsSatisfyInvariants(t *testing.T) {
	eng, _ := newTestEngine(time.Unix(0, 0), 0xDEADBEEF)
	pkt := routingPacket(5, 0x11111111, 3, 3, true)
	eng.HandleInbound(pkt)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	for id, p := range eng.pending {
		if id == 0 {
			t.Fatal("admitted packet_id must not be zero")
		}
		if p.Original.Header.HopLimit > p.Original.Header.HopStart || p.Original.Header.HopStart > meshpacket.MaxHopCount {
			t.Fatal("admitted packet violates hop invariant")
		}
	}
}

// P5: retry_count <= max_retx and max_retx matches the port table.
func TestMaxRetxTable(t *testing.T) {
	cases := []struct {
		port     meshpacket.Port
		wantAck  bool
		wantMax  uint8
	}{
		{meshpacket.PortRouting, true, 4},
		{meshpacket.PortTextMessage, true, 2},
		{meshpacket.PortPosition, true, 3},
		{meshpacket.PortRouting, false, 0},
	}
	for _, c := range cases {
		got := maxRetxForPort(c.port, c.wantAck)
		if got != c.wantMax {
			t.Errorf("maxRetxForPort(%v, %v) = %d, want %d", c.port, c.wantAck, got, c.wantMax)
		}
	}
}

// P4: bounded collections.
func TestBoundedCollections(t *testing.T) {
	eng, _ := newTestEngine(time.Unix(0, 0), 0xDEADBEEF)
	for i := uint32(1); i <= MaxPendingPackets+10; i++ {
		eng.HandleInbound(routingPacket(i, 0x11111111, 3, 3, true))
	}
	if eng.PendingCount() > MaxPendingPackets {
		t.Fatalf("pending count = %d, exceeds MaxPendingPackets=%d", eng.PendingCount(), MaxPendingPackets)
	}

	eng.mu.Lock()
	recent := eng.recentLen
	eng.mu.Unlock()
	if recent > MaxRecentPackets {
		t.Fatalf("recent set size = %d, exceeds MaxRecentPackets=%d", recent, MaxRecentPackets)
	}
}

// P6: counters never show more relays than receptions.
func TestCounterInequality(t *testing.T) {
	eng, _ := newTestEngine(time.Unix(0, 0), 0xDEADBEEF)
	eng.HandleInbound(routingPacket(1, 0x11111111, 3, 3, true))
	eng.HandleInbound(routingPacket(1, 0x11111111, 3, 3, true))
	eng.HandleInbound(routingPacket(2, 0, 3, 3, true)) // invalid source

	s := eng.Stats()
	rejected := s.PacketsReceived - s.PacketsQueued - s.LoopPreventionDrops
	if s.PacketsReceived < s.PacketsQueued+s.LoopPreventionDrops {
		t.Fatalf("packets_received=%d must be >= queued(%d)+loop_drops(%d)", s.PacketsReceived, s.PacketsQueued, s.LoopPreventionDrops)
	}
	if rejected < 1 {
		t.Fatal("the invalid-source packet should count as admission-rejected")
	}
}

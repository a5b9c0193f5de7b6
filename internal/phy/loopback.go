package phy

import (
	"context"
	"fmt"
	"sync"
)

// Loopback is an in-process Driver backed by buffered Go channels —
// no real radio underneath. Frames written with Inject appear on a
// subsequent RX call; frames handed to TX are recorded for assertions
// and optionally forwarded to a peer Loopback via Connect, letting
// tests wire two loopback "radios" together, using the usual
// channel-based rx/tx loop shape.
type Loopback struct {
	params Params

	mu      sync.Mutex
	rxChan  chan frame
	peer    *Loopback
	busy    bool
	txLog   [][]byte
	closed  bool
}

type frame struct {
	data       []byte
	rssi, snr  int8
}

// NewLoopback constructs an idle loopback driver with a generous
// receive queue depth.
func NewLoopback(params Params) *Loopback {
	return &Loopback{
		params: params,
		rxChan: make(chan frame, 32),
	}
}

// Connect wires two loopback drivers so that a.TX delivers to b.RX and
// vice versa, modeling two radios in range of each other.
func Connect(a, b *Loopback) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// Inject delivers a frame directly into the receive queue, bypassing
// any peer wiring — the usual way test code feeds a loopback driver
// the bytes an encrypted/encoded packet test fixture already built.
func (l *Loopback) Inject(data []byte, rssi, snr int8) {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case l.rxChan <- frame{data: buf, rssi: rssi, snr: snr}:
	default:
	}
}

// PrepareRX is a no-op for the loopback driver: there is no hardware
// state to arm.
func (l *Loopback) PrepareRX(ctx context.Context) error { return nil }

// RX blocks until a frame is available or ctx is done.
func (l *Loopback) RX(ctx context.Context, buf []byte) (int, int8, int8, error) {
	select {
	case <-ctx.Done():
		return 0, 0, 0, ctx.Err()
	case f := <-l.rxChan:
		n := copy(buf, f.data)
		return n, f.rssi, f.snr, nil
	}
}

// PrepareTX is a no-op for the loopback driver.
func (l *Loopback) PrepareTX(ctx context.Context) error { return nil }

// TX records the transmitted frame and, if a peer is connected,
// delivers it to the peer's receive queue with a synthetic RSSI/SNR.
func (l *Loopback) TX(ctx context.Context, buf []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("phy: loopback driver closed")
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	l.txLog = append(l.txLog, cp)
	peer := l.peer
	l.mu.Unlock()

	if peer != nil {
		peer.Inject(cp, -60, 8)
	}
	return nil
}

// ChannelBusy defaults to false, matching the original firmware's
// always-false placeholder (§9 Open Question); SetBusy lets a test
// toggle it to exercise the relay engine's backoff path without a real
// PHY.
func (l *Loopback) ChannelBusy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// SetBusy is a test hook allowing a test to force ChannelBusy's return
// value, exercising the relay engine's channel-busy backoff path
// (§4.6.4, S6) without a real PHY.
func (l *Loopback) SetBusy(busy bool) {
	l.mu.Lock()
	l.busy = busy
	l.mu.Unlock()
}

// TXLog returns every frame handed to TX, for test assertions.
func (l *Loopback) TXLog() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.txLog))
	copy(out, l.txLog)
	return out
}

// Close releases the loopback driver. Subsequent TX calls fail.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

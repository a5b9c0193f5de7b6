package phy

import (
	"context"
	"testing"
	"time"
)

func TestLoopbackRXTXRoundTrip(t *testing.T) {
	a := NewLoopback(Params{FrequencyHz: 915000000})
	b := NewLoopback(Params{FrequencyHz: 915000000})
	Connect(a, b)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	payload := []byte("hello mesh")
	if err := a.TX(ctx, payload); err != nil {
		t.Fatalf("TX failed: %v", err)
	}

	buf := make([]byte, 256)
	n, rssi, snr, err := b.RX(ctx, buf)
	if err != nil {
		t.Fatalf("RX failed: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("RX got %q, want %q", buf[:n], payload)
	}
	if rssi != -60 || snr != 8 {
		t.Fatalf("RX got synthetic rssi=%d snr=%d, want -60/8", rssi, snr)
	}

	log := a.TXLog()
	if len(log) != 1 || string(log[0]) != string(payload) {
		t.Fatalf("TXLog = %v, want one entry matching payload", log)
	}
}

func TestLoopbackInject(t *testing.T) {
	l := NewLoopback(Params{})
	defer l.Close()

	l.Inject([]byte("direct"), -70, 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	buf := make([]byte, 32)
	n, rssi, snr, err := l.RX(ctx, buf)
	if err != nil {
		t.Fatalf("RX failed: %v", err)
	}
	if string(buf[:n]) != "direct" || rssi != -70 || snr != 5 {
		t.Fatalf("RX got %q rssi=%d snr=%d, want direct/-70/5", buf[:n], rssi, snr)
	}
}

func TestLoopbackRXRespectsContextCancellation(t *testing.T) {
	l := NewLoopback(Params{})
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	buf := make([]byte, 32)
	_, _, _, err := l.RX(ctx, buf)
	if err == nil {
		t.Fatal("RX should have returned an error when no frame arrived before ctx deadline")
	}
}

func TestLoopbackChannelBusyToggle(t *testing.T) {
	l := NewLoopback(Params{})
	defer l.Close()

	if l.ChannelBusy() {
		t.Fatal("ChannelBusy should default to false")
	}

	l.SetBusy(true)
	if !l.ChannelBusy() {
		t.Fatal("ChannelBusy should report true after SetBusy(true)")
	}

	l.SetBusy(false)
	if l.ChannelBusy() {
		t.Fatal("ChannelBusy should report false after SetBusy(false)")
	}
}

func TestLoopbackTXAfterCloseFails(t *testing.T) {
	l := NewLoopback(Params{})
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	if err := l.TX(ctx, []byte("nope")); err == nil {
		t.Fatal("TX after Close should fail")
	}
}

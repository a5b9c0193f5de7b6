// Package phy defines the PHY driver collaborator contract and ships
// two concrete implementations: an in-process loopback transport (A3)
// for tests and default configuration, and a ZeroMQ-backed transport
// (A4) speaking to an external LoRa concentrator daemon. The PHY
// itself — antenna, SPI/concentrator chip, regional parameter tables —
// is explicitly out of this core's scope; this package only carries
// the swappable interface and its two drivers.
package phy

import "context"

// Params describes the modulation configuration a driver is
// initialized with: frequency, spreading factor, bandwidth, coding
// rate, syncword, and preamble length (§4.7, §6).
type Params struct {
	FrequencyHz     uint32
	SpreadingFactor uint8
	BandwidthHz     uint32
	CodingRate      uint8
	SyncWord        uint8
	PreambleSymbols uint16
	TxPowerDbm      int8
}

// Driver is the PHY collaborator contract the radio task (C8) drives:
// prepare for receive, block for one received frame, prepare for
// transmit, and transmit one frame. All operations are fallible and
// cooperative-suspending (block the calling goroutine on I/O, never
// busy-spin). ChannelBusy reports channel-activity-detection state for
// the relay engine's duty-cycle/backoff paths (§4.6.4, §9).
type Driver interface {
	PrepareRX(ctx context.Context) error
	RX(ctx context.Context, buf []byte) (n int, rssi, snr int8, err error)
	PrepareTX(ctx context.Context) error
	TX(ctx context.Context, buf []byte) error
	ChannelBusy() bool
	Close() error
}

// Package radio implements the radio task (C8): the single task
// owning the PHY. It drives continuous receive, pushes every frame
// through the packet decoder (C3), publishes decoded packets onto the
// packet bus (C4), and exposes a Transmit handle the relay engine (C6)
// calls back into for rebroadcast — re-encoding the header and
// re-encrypting the payload with the original channel key before
// invoking the PHY TX primitive (§4.7).
//
// TX and RX are mutually exclusive on a real single radio (§4.7), but
// that exclusivity belongs to the PHY driver itself, not this task: a
// blocking RX call has no defined return time, so serializing it
// against TX here with a plain mutex would leave every rebroadcast
// stuck behind whatever frame RX happens to be waiting on. Both
// drivers this core ships (phy.Loopback, phy.Concentrator) already
// operate over independent channels/sockets and require no such
// serialization; a real single-chip PHY driver is expected to arm/
// disarm its own receiver around a transmit the same way
// PrepareTX/PrepareRX already bracket each operation.
package radio

import (
	"context"
	"log"

	"github.com/gatlinnewhouse/meshcore/internal/bus"
	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
	"github.com/gatlinnewhouse/meshcore/internal/phy"
)

// Task drives one PHY driver: received frames are decoded and
// published; the relay engine transmits through Task's Transmit
// method, satisfying relay.Transmitter.
type Task struct {
	driver phy.Driver
	cipher *meshpacket.Cipher
	bus    *bus.Bus
}

// New constructs a radio task bound to driver, using cipher for both
// inbound decryption and outbound re-encryption, publishing decoded
// packets onto b.
func New(driver phy.Driver, cipher *meshpacket.Cipher, b *bus.Bus) *Task {
	return &Task{driver: driver, cipher: cipher, bus: b}
}

// Run drives continuous receive until ctx is done: per frame, fill a
// buffer, read RSSI/SNR, push it through the decode pipeline (C3), and
// publish any successfully decoded packet to the bus (C4). Parse and
// crypto failures are dropped and logged at the Parse/Crypto taxonomy
// level (§7); the RX loop keeps running regardless.
func (t *Task) Run(ctx context.Context) error {
	if err := t.driver.PrepareRX(ctx); err != nil {
		return err
	}

	buf := make([]byte, meshpacket.MaxFrameSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, rssi, snr, err := t.driver.RX(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("radio: RX error: %v", err)
			continue
		}

		pkt, err := t.decode(buf[:n], rssi, snr)
		if err != nil {
			log.Printf("radio: dropping frame: %v", err)
			continue
		}
		t.bus.Publish(*pkt)
	}
}

func (t *Task) decode(raw []byte, rssi, snr int8) (*meshpacket.DecodedPacket, error) {
	enc, err := meshpacket.FromBytes(raw, rssi, snr)
	if err != nil {
		return nil, err
	}
	dec, err := enc.Decrypt(t.cipher)
	if err != nil {
		return nil, err
	}
	return dec.Decode()
}

// Transmit re-encodes pkt's header and re-encrypts its payload with
// the radio task's channel cipher, then hands the resulting frame to
// the PHY TX primitive. Implements relay.Transmitter.
func (t *Task) Transmit(ctx context.Context, pkt *meshpacket.DecodedPacket) error {
	frame, err := pkt.Encode(t.cipher)
	if err != nil {
		return err
	}

	if err := t.driver.PrepareTX(ctx); err != nil {
		return err
	}
	return t.driver.TX(ctx, frame)
}

// ChannelBusy reports the PHY's channel-activity-detection state.
// Implements relay.Transmitter.
func (t *Task) ChannelBusy() bool {
	return t.driver.ChannelBusy()
}

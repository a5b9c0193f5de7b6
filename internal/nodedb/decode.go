package nodedb

import (
	"encoding/binary"
	"math"
)

// The wire layouts below are this core's own fixed-size encodings for
// the NodeInfo/Position/Telemetry sub-blocks. Meshtastic itself wraps
// these in protobuf messages; since that schema is out of this
// pipeline's scope (the payload envelope is defined in
// internal/meshpacket, not a borrowed .proto), a compact fixed-size
// encoding with manual binary.LittleEndian packing is used here
// instead of code generation for these small on-air structures.

const userEncodingSize = 1 + 1 + 32 + 16 // HWModel + flags(role<<1|licensed) + longname + shortname

func decodeUser(data []byte) *User {
	if len(data) < userEncodingSize {
		return nil
	}
	hwModel := data[0]
	flags := data[1]
	longName := trimZero(data[2:34])
	shortName := trimZero(data[34:50])
	return &User{
		LongName:   longName,
		ShortName:  shortName,
		HWModel:    hwModel,
		Role:       flags >> 1,
		IsLicensed: flags&1 != 0,
	}
}

// EncodeUser is the inverse of decodeUser, exported for use by tests
// and by any producer that needs to synthesize a NodeInfo payload.
func EncodeUser(u User) []byte {
	buf := make([]byte, userEncodingSize)
	buf[0] = u.HWModel
	flags := u.Role << 1
	if u.IsLicensed {
		flags |= 1
	}
	buf[1] = flags
	copy(buf[2:34], padTo(u.LongName, 32))
	copy(buf[34:50], padTo(u.ShortName, 16))
	return buf
}

const positionEncodingSize = 4 + 4 + 4 + 4 + 1

func decodePosition(data []byte) *Position {
	if len(data) < positionEncodingSize {
		return nil
	}
	return &Position{
		LatI:           int32(binary.LittleEndian.Uint32(data[0:4])),
		LonI:           int32(binary.LittleEndian.Uint32(data[4:8])),
		Altitude:       int32(binary.LittleEndian.Uint32(data[8:12])),
		Time:           binary.LittleEndian.Uint32(data[12:16]),
		LocationSource: data[16],
	}
}

// EncodePosition is the inverse of decodePosition.
func EncodePosition(p Position) []byte {
	buf := make([]byte, positionEncodingSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.LatI))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.LonI))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Altitude))
	binary.LittleEndian.PutUint32(buf[12:16], p.Time)
	buf[16] = p.LocationSource
	return buf
}

const deviceMetricsEncodingSize = 1 + 4 + 4 + 4 + 4

func decodeDeviceMetrics(data []byte) *DeviceMetrics {
	if len(data) < deviceMetricsEncodingSize {
		return nil
	}
	return &DeviceMetrics{
		BatteryLevel:  data[0],
		Voltage:       decodeFloat32(data[1:5]),
		ChannelUtil:   decodeFloat32(data[5:9]),
		AirUtilTX:     decodeFloat32(data[9:13]),
		UptimeSeconds: binary.LittleEndian.Uint32(data[13:17]),
	}
}

// EncodeDeviceMetrics is the inverse of decodeDeviceMetrics.
func EncodeDeviceMetrics(m DeviceMetrics) []byte {
	buf := make([]byte, deviceMetricsEncodingSize)
	buf[0] = m.BatteryLevel
	encodeFloat32(buf[1:5], m.Voltage)
	encodeFloat32(buf[5:9], m.ChannelUtil)
	encodeFloat32(buf[9:13], m.AirUtilTX)
	binary.LittleEndian.PutUint32(buf[13:17], m.UptimeSeconds)
	return buf
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func encodeFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func trimZero(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

func padTo(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return buf
}

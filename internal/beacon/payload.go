// Package beacon maps measurements onto an iBeacon-style advertisement.
//
// Manufacturer data layout (23 bytes, multi-byte fields big-endian):
//
//	[0]      0x02 beacon type
//	[1]      0x15 remaining length (21)
//	[2:18]   service UUID
//	[18:20]  major  int16 (ozone, ppm)
//	[20:22]  minor  int16 (temperature, °C)
//	[22]     measured power int8
package beacon

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	beaconType   = 0x02
	beaconLength = 0x15
	// ManufacturerDataLen is the size of the iBeacon manufacturer data block.
	ManufacturerDataLen = 23
)

// AppleCompanyID is the company identifier scanners expect on iBeacon frames.
const AppleCompanyID uint16 = 0x004C

// Payload is the advertised value. One payload is on air at a time.
type Payload struct {
	ManufacturerID uint16
	UUID           [16]byte
	Major          int16
	Minor          int16
	MeasuredPower  int8
}

// ManufacturerData returns the bytes advertised under ManufacturerID.
func (p Payload) ManufacturerData() []byte {
	var b [ManufacturerDataLen]byte
	b[0] = beaconType
	b[1] = beaconLength
	copy(b[2:18], p.UUID[:])
	binary.BigEndian.PutUint16(b[18:20], uint16(p.Major))
	binary.BigEndian.PutUint16(b[20:22], uint16(p.Minor))
	b[22] = byte(p.MeasuredPower)
	return b[:]
}

// ParseManufacturerData decodes a block produced by ManufacturerData.
// Returns (nil, error) if the block is not an iBeacon frame.
func ParseManufacturerData(companyID uint16, data []byte) (*Payload, error) {
	if len(data) < ManufacturerDataLen {
		return nil, fmt.Errorf("payload too short: %d", len(data))
	}
	if data[0] != beaconType || data[1] != beaconLength {
		return nil, fmt.Errorf("invalid beacon prefix: %02X %02X", data[0], data[1])
	}
	p := &Payload{
		ManufacturerID: companyID,
		Major:          int16(binary.BigEndian.Uint16(data[18:20])),
		Minor:          int16(binary.BigEndian.Uint16(data[20:22])),
		MeasuredPower:  int8(data[22]),
	}
	copy(p.UUID[:], data[2:18])
	return p, nil
}

// ParseUUID accepts either a 16-character ASCII identifier, copied byte for
// byte (e.g. "MANU-EPSG-GTI-3A"), or a canonical RFC 4122 string.
func ParseUUID(s string) ([16]byte, error) {
	var out [16]byte
	if len(s) == len(out) {
		copy(out[:], s)
		return out, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return out, fmt.Errorf("invalid beacon uuid %q: want 16 ASCII bytes or RFC 4122 form: %w", s, err)
	}
	return u, nil
}

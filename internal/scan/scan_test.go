package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/types"
)

func testUUID() [16]byte {
	var id [16]byte
	copy(id[:], "MANU-EPSG-GTI-3A")
	return id
}

func frame(major, minor int16) beacon.Payload {
	return beacon.Payload{
		ManufacturerID: beacon.AppleCompanyID,
		UUID:           testUUID(),
		Major:          major,
		Minor:          minor,
		MeasuredPower:  73,
	}
}

func TestDecoder(t *testing.T) {
	d := NewDecoder(Filter{ManufacturerID: beacon.AppleCompanyID, UUID: testUUID()})
	p := frame(42, 21)

	t.Run("new payload is reported", func(t *testing.T) {
		got, ok, err := d.Decode("AA:BB", p.ManufacturerID, p.ManufacturerData())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, p, got)
		assert.Equal(t, types.Measurement{OzonePPM: 42, TemperatureC: 21}, Measurement(got))
	})

	t.Run("repeat from same address is suppressed", func(t *testing.T) {
		_, ok, err := d.Decode("AA:BB", p.ManufacturerID, p.ManufacturerData())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same payload from another address is reported", func(t *testing.T) {
		_, ok, err := d.Decode("CC:DD", p.ManufacturerID, p.ManufacturerData())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("changed payload is reported", func(t *testing.T) {
		next := frame(43, 21)
		_, ok, err := d.Decode("AA:BB", next.ManufacturerID, next.ManufacturerData())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("other company is ignored", func(t *testing.T) {
		_, ok, err := d.Decode("EE:FF", 0xFFFF, p.ManufacturerData())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other uuid is ignored", func(t *testing.T) {
		other := p
		other.UUID[15] = 'X'
		_, ok, err := d.Decode("EE:FF", other.ManufacturerID, other.ManufacturerData())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-ibeacon frame errors", func(t *testing.T) {
		_, ok, err := d.Decode("EE:FF", beacon.AppleCompanyID, []byte{0x01, 0xD0, 0x00})
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestMeasurementNegativeTemperature(t *testing.T) {
	assert.Equal(t, types.Measurement{OzonePPM: -50, TemperatureC: -5}, Measurement(frame(-50, -5)))
}

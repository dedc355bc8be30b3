package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/config"
	"howsair-beacon/internal/telemetry"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeSampler struct{ raw map[int]int }

func (s *fakeSampler) ReadRaw(_ context.Context, pin int) (int, error) {
	v, ok := s.raw[pin]
	if !ok {
		return 0, errors.New("no such pin")
	}
	return v, nil
}

type fakeRadio struct {
	calls      []string
	beacons    []beacon.Payload
	housekeeps int
}

func (r *fakeRadio) Enable() error {
	r.calls = append(r.calls, "enable")
	return nil
}

func (r *fakeRadio) Clear() error {
	r.calls = append(r.calls, "clear")
	return nil
}

func (r *fakeRadio) SetFields(string, int8) error { return nil }

func (r *fakeRadio) SetBeacon(p beacon.Payload) error {
	r.beacons = append(r.beacons, p)
	return nil
}

func (r *fakeRadio) Start(time.Duration) error {
	r.calls = append(r.calls, "start")
	return nil
}

func (r *fakeRadio) Housekeep() error {
	r.housekeeps++
	return nil
}

type fakeBuzzer struct{ tones []physic.Frequency }

func (b *fakeBuzzer) Tone(f physic.Frequency) error {
	b.tones = append(b.tones, f)
	return nil
}

func (b *fakeBuzzer) Silence() error { return nil }

func TestNode_StepDrivesPipeline(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	// pins 0/1/2 on a 3.3V 12-bit ADC: gas == ref reads the 50 ppm baseline
	sampler := &fakeSampler{raw: map[int]int{0: 2048, 1: 2048, 2: 0}}
	radio := &fakeRadio{}
	buzzer := &fakeBuzzer{}

	dev := config.DefaultDevice()
	dev.Alert.ThresholdPPM = 40

	var observed []telemetry.Record
	n, err := New(Hardware{Sampler: sampler, Radio: radio, Buzzer: buzzer}, Options{
		Device:            dev,
		TelemetryInterval: time.Second,
		LoopInterval:      10 * time.Millisecond,
		Sinks: []telemetry.Sink{telemetry.SinkFunc(func(_ context.Context, rec telemetry.Record) error {
			observed = append(observed, rec)
			return nil
		})},
		Clock: clock,
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())
	assert.Equal(t, []string{"enable", "clear"}, radio.calls)

	ctx := context.Background()
	n.Step(ctx)
	require.Len(t, radio.beacons, 1)
	assert.Equal(t, int16(50), radio.beacons[0].Major)
	assert.Equal(t, int16(20), radio.beacons[0].Minor)
	assert.True(t, n.AlertActive())
	assert.Equal(t, []physic.Frequency{262 * physic.Hertz}, buzzer.tones)

	// Within the telemetry interval only the melody and radio advance.
	clock.Advance(300 * time.Millisecond)
	n.Step(ctx)
	assert.Len(t, radio.beacons, 1)
	assert.Equal(t, 2, radio.housekeeps)
	assert.Equal(t, 294*physic.Hertz, buzzer.tones[len(buzzer.tones)-1])

	// 0.825V between gas and ref drops ozone to 10 ppm, below 40-5.
	sampler.raw[0] = 3072
	clock.Advance(time.Second)
	n.Step(ctx)
	require.Len(t, radio.beacons, 2)
	assert.Equal(t, int16(10), radio.beacons[1].Major)
	assert.False(t, n.AlertActive())

	require.Len(t, observed, 2)
	assert.Equal(t, uint32(0), observed[0].Sequence)
	assert.Equal(t, uint32(1), observed[1].Sequence)
	assert.Equal(t, uint64(2), n.Stats().Broadcasts)
}

func TestNode_AlarmDisabledByDefault(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	sampler := &fakeSampler{raw: map[int]int{0: 2048, 1: 2048, 2: 0}}
	radio := &fakeRadio{}

	n, err := New(Hardware{Sampler: sampler, Radio: radio}, Options{
		Device:            config.DefaultDevice(),
		TelemetryInterval: time.Second,
		LoopInterval:      10 * time.Millisecond,
		Clock:             clock,
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())

	n.Step(context.Background())
	assert.Len(t, radio.beacons, 1)
	assert.False(t, n.AlertActive())
}

func TestNode_SensorFailureKeepsLooping(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	radio := &fakeRadio{}

	n, err := New(Hardware{Sampler: &fakeSampler{raw: map[int]int{}}, Radio: radio}, Options{
		Device:            config.DefaultDevice(),
		TelemetryInterval: time.Second,
		LoopInterval:      10 * time.Millisecond,
		Clock:             clock,
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())

	n.Step(context.Background())
	assert.Empty(t, radio.beacons)
	assert.Equal(t, 1, radio.housekeeps)
	assert.Equal(t, uint64(1), n.Stats().Skipped)
}

func TestNode_RunStopsOnCancel(t *testing.T) {
	sampler := &fakeSampler{raw: map[int]int{0: 2048, 1: 2048, 2: 0}}
	radio := &fakeRadio{}

	n, err := New(Hardware{Sampler: sampler, Radio: radio}, Options{
		Device:            config.DefaultDevice(),
		TelemetryInterval: time.Second,
		LoopInterval:      5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, n.Run(ctx))

	assert.Len(t, radio.beacons, 1)
	assert.Equal(t, "clear", radio.calls[len(radio.calls)-1])
	assert.Greater(t, radio.housekeeps, 1)
}

func TestNew_Validation(t *testing.T) {
	opts := Options{Device: config.DefaultDevice(), TelemetryInterval: time.Second, LoopInterval: time.Millisecond}

	_, err := New(Hardware{Radio: &fakeRadio{}}, opts)
	assert.Error(t, err)

	hw := Hardware{Sampler: &fakeSampler{}, Radio: &fakeRadio{}}
	bad := opts
	bad.LoopInterval = 0
	_, err = New(hw, bad)
	assert.Error(t, err)

	bad = opts
	bad.Device.Beacon.UUID = "nope"
	_, err = New(hw, bad)
	assert.Error(t, err)
}

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/config"
	"howsair-beacon/internal/telemetry"
	"howsair-beacon/internal/types"
)

type fakePublisher struct {
	mu   sync.Mutex
	got  []types.Telemetry
	err  error
	sent chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan struct{}, 64)}
}

func (f *fakePublisher) PublishTelemetry(t types.Telemetry) error {
	f.mu.Lock()
	f.got = append(f.got, t)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return f.err
}

func (f *fakePublisher) published() []types.Telemetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Telemetry(nil), f.got...)
}

func sampleRecord(seq uint32) telemetry.Record {
	return telemetry.Record{
		Time:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Sequence:    seq,
		Measurement: types.Measurement{OzonePPM: 42, TemperatureC: 21},
		Payload:     beacon.Payload{Major: 42, Minor: 21},
	}
}

func waitSent(t *testing.T, f *fakePublisher, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.sent:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for publish")
		}
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "beacons/GTI-3A/telemetry", TelemetryTopic("GTI-3A"))
	assert.Equal(t, "beacons/GTI-3A/status", StatusTopic("GTI-3A"))
}

func TestToTelemetryJSON(t *testing.T) {
	rec := sampleRecord(9)
	rec.Clamped = true

	data, err := json.Marshal(ToTelemetry("GTI-3A", rec))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"beacon_id": "GTI-3A",
		"timestamp": "2026-03-01T12:00:00Z",
		"ozone_ppm": 42,
		"temperature_c": 21,
		"major": 42,
		"minor": 21,
		"clamped": true,
		"sequence": 9
	}`, string(data))
}

func TestMirrorPublishesInOrder(t *testing.T) {
	pub := newFakePublisher()
	m := NewMirror(pub, "GTI-3A", 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	for seq := uint32(1); seq <= 3; seq++ {
		require.NoError(t, m.Observe(ctx, sampleRecord(seq)))
	}
	waitSent(t, pub, 3)

	got := pub.published()
	require.Len(t, got, 3)
	for i, tel := range got {
		assert.Equal(t, uint32(i+1), tel.Sequence)
		assert.Equal(t, "GTI-3A", tel.BeaconID)
	}
}

func TestMirrorDropsWhenFull(t *testing.T) {
	pub := newFakePublisher()
	m := NewMirror(pub, "GTI-3A", 2, nil)

	// No worker running: the queue fills and Observe must not block.
	require.NoError(t, m.Observe(context.Background(), sampleRecord(1)))
	require.NoError(t, m.Observe(context.Background(), sampleRecord(2)))
	err := m.Observe(context.Background(), sampleRecord(3))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMirrorSurvivesPublishErrors(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("broker gone")
	m := NewMirror(pub, "GTI-3A", 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.NoError(t, m.Observe(ctx, sampleRecord(1)))
	require.NoError(t, m.Observe(ctx, sampleRecord(2)))
	waitSent(t, pub, 2)
	assert.Len(t, pub.published(), 2)
}

func TestClientNotConnected(t *testing.T) {
	c, err := NewClient(config.Config{BeaconID: "GTI-3A", MQTTBroker: "localhost", MQTTPort: 1883, MQTTClientID: "test"}, nil)
	require.NoError(t, err)

	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.PublishTelemetry(types.Telemetry{}), ErrNotConnected)

	c.Disconnect()
	c.Disconnect()
	assert.ErrorIs(t, c.Connect(context.Background()), ErrStopped)
}

func TestNewClientRequiresBeaconID(t *testing.T) {
	_, err := NewClient(config.Config{}, nil)
	assert.Error(t, err)
}

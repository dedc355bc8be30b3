package mqtt

import (
	"context"
	"errors"
	"log/slog"

	"howsair-beacon/internal/telemetry"
	"howsair-beacon/internal/types"
)

var ErrQueueFull = errors.New("mqtt mirror queue full")

const DefaultQueueSize = 16

type TelemetryPublisher interface {
	PublishTelemetry(t types.Telemetry) error
}

// Mirror is a telemetry.Sink that hands records to a background publisher.
// Observe never blocks; records are dropped when the queue is full.
type Mirror struct {
	pub      TelemetryPublisher
	beaconID string
	queue    chan types.Telemetry
	logger   *slog.Logger
}

func NewMirror(pub TelemetryPublisher, beaconID string, queueSize int, logger *slog.Logger) *Mirror {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		pub:      pub,
		beaconID: beaconID,
		queue:    make(chan types.Telemetry, queueSize),
		logger:   logger,
	}
}

func (m *Mirror) Observe(_ context.Context, rec telemetry.Record) error {
	t := ToTelemetry(m.beaconID, rec)
	select {
	case m.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run publishes queued records until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-m.queue:
			if err := m.pub.PublishTelemetry(t); err != nil {
				m.logger.Warn("mqtt mirror publish failed", "sequence", t.Sequence, "error", err)
			}
		}
	}
}

func ToTelemetry(beaconID string, rec telemetry.Record) types.Telemetry {
	return types.Telemetry{
		BeaconID:     beaconID,
		Timestamp:    rec.Time,
		OzonePPM:     rec.Measurement.OzonePPM,
		TemperatureC: rec.Measurement.TemperatureC,
		Major:        rec.Payload.Major,
		Minor:        rec.Payload.Minor,
		Clamped:      rec.Clamped,
		Sequence:     rec.Sequence,
	}
}

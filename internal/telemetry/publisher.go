// Package telemetry runs one sample-encode-broadcast cycle per Tick.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/sensor"
	"howsair-beacon/internal/types"
)

type Measurer interface {
	Measure(ctx context.Context) (types.Measurement, error)
}

type Broadcaster interface {
	Broadcast(m types.Measurement, measuredPower int8) (beacon.Result, error)
}

// Record describes a broadcast that went on air.
type Record struct {
	Time        time.Time
	Sequence    uint32
	Measurement types.Measurement
	Payload     beacon.Payload
	Clamped     bool
}

// Sink observes completed broadcasts. Errors are logged by the publisher
// and never stop the cycle; implementations must return quickly.
type Sink interface {
	Observe(ctx context.Context, rec Record) error
}

type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Observe(ctx context.Context, rec Record) error { return f(ctx, rec) }

type Stats struct {
	Ticks      uint64
	Broadcasts uint64
	Skipped    uint64
	Failed     uint64
	Clamped    uint64
}

type Options struct {
	MeasuredPower int8
	Sinks         []Sink
	Logger        *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Publisher struct {
	measurer      Measurer
	broadcaster   Broadcaster
	measuredPower int8
	sinks         []Sink
	logger        *slog.Logger
	now           func() time.Time

	sequence uint32
	stats    Stats
}

func NewPublisher(m Measurer, b Broadcaster, opts Options) (*Publisher, error) {
	if m == nil {
		return nil, errors.New("telemetry: nil measurer")
	}
	if b == nil {
		return nil, errors.New("telemetry: nil broadcaster")
	}
	for i, s := range opts.Sinks {
		if s == nil {
			return nil, fmt.Errorf("telemetry: nil sink at index %d", i)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Publisher{
		measurer:      m,
		broadcaster:   b,
		measuredPower: opts.MeasuredPower,
		sinks:         append([]Sink(nil), opts.Sinks...),
		logger:        logger,
		now:           now,
	}, nil
}

// Tick measures and replaces the advertisement. When the sensor is
// unavailable the previous advertisement stays on air.
func (p *Publisher) Tick(ctx context.Context) {
	p.stats.Ticks++

	m, err := p.measurer.Measure(ctx)
	if err != nil {
		p.stats.Skipped++
		if errors.Is(err, sensor.ErrSensorUnavailable) {
			p.logger.Warn("telemetry: sensor unavailable, keeping previous advertisement", "error", err)
		} else {
			p.logger.Error("telemetry: measure failed, keeping previous advertisement", "error", err)
		}
		return
	}

	res, err := p.broadcaster.Broadcast(m, p.measuredPower)
	if err != nil {
		p.stats.Failed++
		p.logger.Error("telemetry: broadcast failed", "error", err, "measurement", m.String())
		return
	}
	p.stats.Broadcasts++
	if res.Clamped {
		p.stats.Clamped++
	}

	rec := Record{
		Time:        p.now(),
		Sequence:    p.sequence,
		Measurement: m,
		Payload:     res.Payload,
		Clamped:     res.Clamped,
	}
	p.sequence++

	p.logger.Info("telemetry: broadcast",
		"sequence", rec.Sequence,
		"ozone_ppm", m.OzonePPM,
		"temperature_c", m.TemperatureC,
		"major", res.Payload.Major,
		"minor", res.Payload.Minor,
		"clamped", res.Clamped,
	)

	for _, s := range p.sinks {
		if err := s.Observe(ctx, rec); err != nil {
			p.logger.Warn("telemetry: sink failed", "sequence", rec.Sequence, "error", err)
		}
	}
}

func (p *Publisher) Stats() Stats { return p.stats }

// Package node wires the beacon pipeline and drives it from one
// cooperative loop: the alert melody and radio housekeeping run every
// iteration, the telemetry cycle every TelemetryInterval.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"howsair-beacon/internal/alert"
	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/config"
	"howsair-beacon/internal/sensor"
	"howsair-beacon/internal/telemetry"
)

// Radio is an advertiser that needs periodic housekeeping.
type Radio interface {
	beacon.Advertiser
	Housekeep() error
}

type Hardware struct {
	Sampler sensor.Sampler
	Radio   Radio
	// Buzzer may be nil; the alert then only shows up in the logs.
	Buzzer alert.ToneOutput
}

type Options struct {
	Device            config.Device
	TelemetryInterval time.Duration
	LoopInterval      time.Duration
	SampleTimeout     time.Duration
	// Sinks observe every completed broadcast after the alert trigger.
	Sinks  []telemetry.Sink
	Logger *slog.Logger
	Clock  alert.Clock
}

type Node struct {
	radio     Radio
	encoder   *beacon.Encoder
	publisher *telemetry.Publisher
	melody    *alert.Sequencer
	clock     alert.Clock
	logger    *slog.Logger

	telemetryInterval time.Duration
	loopInterval      time.Duration

	nextTick  time.Time
	indicator bool

	mu     sync.Mutex
	status Status
}

// Status is a snapshot taken after every loop iteration. It is safe to
// read from other goroutines.
type Status struct {
	Stats       telemetry.Stats
	AlertActive bool
	UpdatedAt   time.Time
}

func New(hw Hardware, opts Options) (*Node, error) {
	if hw.Sampler == nil || hw.Radio == nil {
		return nil, errors.New("node: sampler and radio are required")
	}
	if opts.TelemetryInterval <= 0 || opts.LoopInterval <= 0 {
		return nil, fmt.Errorf("node: intervals must be positive, got telemetry=%v loop=%v", opts.TelemetryInterval, opts.LoopInterval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = alert.SystemClock{}
	}
	dev := opts.Device

	coeffs, err := dev.Coefficients()
	if err != nil {
		return nil, err
	}
	reader, err := sensor.NewReader(hw.Sampler, sensor.Options{
		Pins:          dev.Pins(),
		ADC:           dev.ADCParams(),
		Coefficients:  coeffs,
		SampleTimeout: opts.SampleTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	identity, err := dev.Identity()
	if err != nil {
		return nil, err
	}
	encoder, err := beacon.NewEncoder(hw.Radio, beacon.Options{
		Identity:     identity,
		StartTimeout: dev.Beacon.StartTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	buzzer := hw.Buzzer
	if buzzer == nil {
		buzzer = silentBuzzer{}
	}
	melody, err := alert.NewSequencer(buzzer, clock, dev.Melody(), logger)
	if err != nil {
		return nil, err
	}

	var sinks []telemetry.Sink
	if dev.Alert.ThresholdPPM > 0 {
		trigger, err := alert.NewThresholdTrigger(melody, dev.Alert.ThresholdPPM, dev.Alert.HysteresisPPM, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, trigger)
	}
	sinks = append(sinks, opts.Sinks...)

	publisher, err := telemetry.NewPublisher(reader, encoder, telemetry.Options{
		MeasuredPower: dev.Beacon.MeasuredPower,
		Sinks:         sinks,
		Logger:        logger,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Node{
		radio:             hw.Radio,
		encoder:           encoder,
		publisher:         publisher,
		melody:            melody,
		clock:             clock,
		logger:            logger,
		telemetryInterval: opts.TelemetryInterval,
		loopInterval:      opts.LoopInterval,
	}, nil
}

// Start turns the radio on. The first Step broadcasts immediately.
func (n *Node) Start() error {
	if err := n.encoder.TurnOn(); err != nil {
		return err
	}
	n.nextTick = n.clock.Now()
	return nil
}

// Step runs one loop iteration. Errors from the melody or the radio are
// logged; the loop keeps going.
func (n *Node) Step(ctx context.Context) {
	now := n.clock.Now()
	if !now.Before(n.nextTick) {
		n.publisher.Tick(ctx)
		n.nextTick = now.Add(n.telemetryInterval)
	}

	if err := n.melody.Update(); err != nil {
		n.logger.Warn("node: alert update failed", "error", err)
	}
	if err := n.radio.Housekeep(); err != nil {
		n.logger.Warn("node: radio housekeeping failed", "error", err)
	}

	active := n.melody.IsActive()
	if active != n.indicator {
		n.indicator = active
		n.logger.Info("node: alert indicator", "on", active)
	}

	n.mu.Lock()
	n.status = Status{Stats: n.publisher.Stats(), AlertActive: active, UpdatedAt: now}
	n.mu.Unlock()
}

// Run calls Start, then Step every LoopInterval until ctx is done. On
// exit the buzzer is silenced and the advertisement cleared.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}
	defer n.shutdown()

	ticker := time.NewTicker(n.loopInterval)
	defer ticker.Stop()

	n.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.Step(ctx)
		}
	}
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Node) Stats() telemetry.Stats { return n.Status().Stats }

func (n *Node) AlertActive() bool { return n.Status().AlertActive }

func (n *Node) shutdown() {
	if err := errors.Join(n.melody.Stop(), n.radio.Clear()); err != nil {
		n.logger.Warn("node: shutdown", "error", err)
	}
}

type silentBuzzer struct{}

func (silentBuzzer) Tone(physic.Frequency) error { return nil }

func (silentBuzzer) Silence() error { return nil }

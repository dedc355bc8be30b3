package app

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"

	"howsair-beacon/internal/alert"
	"howsair-beacon/internal/config"
	"howsair-beacon/internal/httpapi"
	"howsair-beacon/internal/hw"
	"howsair-beacon/internal/journal"
	"howsair-beacon/internal/mqtt"
	"howsair-beacon/internal/node"
	"howsair-beacon/internal/radio"
	"howsair-beacon/internal/telemetry"
)

// ADS1115 single-ended full scale at the ±4.096V gain.
const (
	ads1115MaxVoltage = 4096 * physic.MilliVolt
	ads1115FullScale  = 1 << 15
	ads1115Rate       = 128 * physic.Hertz
)

// Run drives the beacon on a Linux host until ctx is done.
func Run(ctx context.Context, cfg config.Config) error {
	dev := cfg.Device
	slog.Info("initializing beacon",
		"beacon_id", cfg.BeaconID,
		"i2c_bus", cfg.I2CBus,
		"telemetry_interval", cfg.TelemetryInterval,
		"alert_threshold_ppm", dev.Alert.ThresholdPPM,
		"journal", cfg.JournalPath,
		"http_addr", cfg.HTTPAddr,
		"mqtt_enabled", cfg.MQTTEnabled,
	)
	if dev.ADC.FullScale != ads1115FullScale || dev.ADC.ReferenceVoltage != 4.096 {
		slog.Warn("adc tables do not match the ADS1115 ±4.096V range",
			"reference_voltage", dev.ADC.ReferenceVoltage,
			"full_scale", dev.ADC.FullScale,
		)
	}

	host, err := hw.Open(hw.Options{
		I2CBus:        cfg.I2CBus,
		ADCAddress:    cfg.ADCAddress,
		ADCMaxVoltage: ads1115MaxVoltage,
		ADCRate:       ads1115Rate,
		Channels:      []int{dev.Sensor.GasPin, dev.Sensor.RefPin, dev.Sensor.TempPin},
		BuzzerPin:     cfg.BuzzerPin,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("hw close failed", "error", err)
		}
	}()

	var (
		sinks []telemetry.Sink
		store httpapi.BroadcastStore
	)

	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, journal.Options{
			Path:     cfg.JournalPath,
			BeaconID: cfg.BeaconID,
			LogSQL:   cfg.LogLevel <= slog.LevelDebug,
		})
		if err != nil {
			return err
		}
		defer j.Close()

		w, err := journal.NewWriter(j, journal.DefaultQueueSize, slog.Default())
		if err != nil {
			return err
		}
		writerCtx, stopWriter := context.WithCancel(ctx)
		writerDone := make(chan struct{})
		go func() {
			w.Run(writerCtx)
			close(writerDone)
		}()
		defer func() {
			stopWriter()
			<-writerDone
		}()

		sinks = append(sinks, w)
		store = j
	}

	if cfg.MQTTEnabled {
		client, err := mqtt.NewClient(cfg, slog.Default())
		if err != nil {
			return err
		}
		go func() {
			if err := client.Connect(ctx); err != nil {
				slog.Error("mqtt connect failed", "error", err)
			}
		}()
		defer client.Disconnect()

		mirror := mqtt.NewMirror(client, cfg.BeaconID, mqtt.DefaultQueueSize, slog.Default())
		go mirror.Run(ctx)
		sinks = append(sinks, mirror)
	}

	n, err := node.New(node.Hardware{
		Sampler: host.Sampler,
		Radio:   radio.New(nil, radio.Options{}),
		Buzzer:  buzzer(host),
	}, node.Options{
		Device:            dev,
		TelemetryInterval: cfg.TelemetryInterval,
		LoopInterval:      cfg.LoopInterval,
		SampleTimeout:     cfg.SampleTimeout,
		Sinks:             sinks,
	})
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	if cfg.HTTPAddr != "" {
		httpCtx, stopHTTP := context.WithCancel(ctx)
		httpDone := make(chan struct{})
		defer func() {
			stopHTTP()
			<-httpDone
		}()
		go func() {
			defer close(httpDone)
			if err := httpapi.Serve(httpCtx, cfg.HTTPAddr, httpapi.NewMux(cfg.BeaconID, n, store)); err != nil {
				slog.Error("http server failed", "error", err)
			}
		}()
	}

	if err := n.Run(ctx); err != nil {
		return err
	}

	st := n.Stats()
	slog.Info("beacon stopped",
		"ticks", st.Ticks,
		"broadcasts", st.Broadcasts,
		"skipped", st.Skipped,
		"failed", st.Failed,
		"clamped", st.Clamped,
	)
	return nil
}

// buzzer is nil, not a typed nil, when no pin is configured.
func buzzer(h *hw.Host) alert.ToneOutput {
	if h.Buzzer == nil {
		return nil
	}
	return h.Buzzer
}

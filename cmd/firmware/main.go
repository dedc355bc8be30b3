//go:build tinygo

// Command firmware runs the beacon on a Pico W: on-chip ADC for the
// sensor, PWM buzzer on GPIO15, CYW43439 radio.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"howsair-beacon/internal/config"
	"howsair-beacon/internal/node"
	"howsair-beacon/internal/pico"
	"howsair-beacon/internal/radio"
)

const (
	gasGPIO    = 26
	refGPIO    = 27
	tempGPIO   = 28
	buzzerGPIO = 15

	telemetryInterval = 5 * time.Second
	loopInterval      = 10 * time.Millisecond
)

func main() {
	machine.Serial.Configure(machine.UARTConfig{})
	// Give the host time to enumerate the USB serial device.
	time.Sleep(1500 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("boot", "app", "howsair-beacon")

	dev := config.DefaultDevice()
	dev.Sensor.GasPin = gasGPIO
	dev.Sensor.RefPin = refGPIO
	dev.Sensor.TempPin = tempGPIO
	dev.ADC.ReferenceVoltage = 3.3
	dev.ADC.FullScale = pico.ADCFullScale

	buzzer, err := pico.NewBuzzer(machine.PWM7, buzzerGPIO)
	if err != nil {
		halt(logger, "buzzer init failed", err)
	}

	n, err := node.New(node.Hardware{
		Sampler: pico.NewSampler(gasGPIO, refGPIO, tempGPIO),
		Radio:   radio.New(nil, radio.Options{Logger: logger}),
		Buzzer:  buzzer,
	}, node.Options{
		Device:            dev,
		TelemetryInterval: telemetryInterval,
		LoopInterval:      loopInterval,
		Logger:            logger,
	})
	if err != nil {
		halt(logger, "node init failed", err)
	}

	if err := n.Run(context.Background()); err != nil {
		halt(logger, "node stopped", err)
	}
}

func halt(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	for {
		time.Sleep(time.Second)
	}
}

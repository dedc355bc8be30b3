// Package hw binds the beacon to Linux hosts through periph.io: an ADS1115
// on I2C for the ozone front-end and a PWM-capable GPIO for the buzzer.
package hw

import (
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

type Options struct {
	// I2CBus is the periph bus name; empty opens the default bus.
	I2CBus string
	// ADCAddress is the ADS1115 I2C address (0x48..0x4B).
	ADCAddress uint16
	// ADCMaxVoltage selects the programmable gain; must cover the sensor's output swing.
	ADCMaxVoltage physic.ElectricPotential
	ADCRate       physic.Frequency
	// Channels lists the ADS1115 inputs (0..3) to expose as sampler pins.
	Channels  []int
	BuzzerPin string
	Logger    *slog.Logger
}

// Host owns the opened periph resources.
type Host struct {
	Sampler *ADS1115Sampler
	Buzzer  *PWMBuzzer

	bus  i2c.BusCloser
	pins []ads1x15.PinADC
}

func Open(opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hw: host init: %w", err)
	}

	bus, err := i2creg.Open(opts.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("hw: open i2c bus %q: %w", opts.I2CBus, err)
	}
	h := &Host{bus: bus}

	adcOpts := ads1x15.DefaultOpts
	if opts.ADCAddress != 0 {
		adcOpts.I2cAddress = opts.ADCAddress
	}
	adc, err := ads1x15.NewADS1115(bus, &adcOpts)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("hw: ads1115: %w", err)
	}

	readers := make(map[int]sampleReader, len(opts.Channels))
	for _, ch := range opts.Channels {
		c, err := channel(ch)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		pin, err := adc.PinForChannel(c, opts.ADCMaxVoltage, opts.ADCRate, ads1x15.BestQuality)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("hw: ads1115 channel %d: %w", ch, err)
		}
		h.pins = append(h.pins, pin)
		readers[ch] = pin
	}
	h.Sampler = newADS1115Sampler(readers)

	if opts.BuzzerPin != "" {
		b, err := NewPWMBuzzer(opts.BuzzerPin)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		h.Buzzer = b
	}

	logger.Info("hw: host opened",
		"i2c_bus", opts.I2CBus,
		"adc_address", fmt.Sprintf("0x%02X", adcOpts.I2cAddress),
		"adc_channels", opts.Channels,
		"buzzer_pin", opts.BuzzerPin,
	)
	return h, nil
}

func (h *Host) Close() error {
	var errs []error
	if h.Buzzer != nil {
		errs = append(errs, h.Buzzer.Silence())
	}
	for _, p := range h.pins {
		errs = append(errs, p.Halt())
	}
	if h.bus != nil {
		errs = append(errs, h.bus.Close())
	}
	return errors.Join(errs...)
}

var singleEnded = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

func channel(n int) (ads1x15.Channel, error) {
	if n < 0 || n >= len(singleEnded) {
		return 0, fmt.Errorf("hw: ads1115 channel %d out of range [0, %d)", n, len(singleEnded))
	}
	return singleEnded[n], nil
}

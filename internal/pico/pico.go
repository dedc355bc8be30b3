//go:build tinygo

// Package pico binds the beacon to RP2040/RP2350 boards through TinyGo's
// machine package.
package pico

import (
	"context"
	"fmt"
	"machine"

	"periph.io/x/conn/v3/physic"
)

// ADCFullScale is the range of machine.ADC.Get, which scales every
// converter resolution to 16 bits.
const ADCFullScale = 1 << 16

// Sampler reads the on-chip ADC. Pin identifiers are GPIO numbers.
type Sampler struct {
	adcs map[int]machine.ADC
}

func NewSampler(gpios ...int) *Sampler {
	machine.InitADC()
	s := &Sampler{adcs: make(map[int]machine.ADC, len(gpios))}
	for _, n := range gpios {
		pin := machine.Pin(n)
		pin.Configure(machine.PinConfig{Mode: machine.PinAnalog})
		adc := machine.ADC{Pin: pin}
		adc.Configure(machine.ADCConfig{})
		s.adcs[n] = adc
	}
	return s
}

func (s *Sampler) ReadRaw(ctx context.Context, pin int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	adc, ok := s.adcs[pin]
	if !ok {
		return 0, fmt.Errorf("pico: gpio %d is not an analog input", pin)
	}
	return int(adc.Get()), nil
}

// PWM is the subset of a TinyGo PWM slice the buzzer needs.
type PWM interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
	SetPeriod(period uint64) error
}

// Buzzer plays square waves on one PWM channel.
type Buzzer struct {
	pwm     PWM
	channel uint8
}

func NewBuzzer(pwm PWM, gpio int) (*Buzzer, error) {
	if err := pwm.Configure(machine.PWMConfig{Period: uint64(physic.KiloHertz.Period())}); err != nil {
		return nil, fmt.Errorf("pico: configure pwm: %w", err)
	}
	ch, err := pwm.Channel(machine.Pin(gpio))
	if err != nil {
		return nil, fmt.Errorf("pico: pwm channel for gpio %d: %w", gpio, err)
	}
	b := &Buzzer{pwm: pwm, channel: ch}
	return b, b.Silence()
}

func (b *Buzzer) Tone(f physic.Frequency) error {
	if f <= 0 {
		return b.Silence()
	}
	if err := b.pwm.SetPeriod(uint64(f.Period())); err != nil {
		return fmt.Errorf("pico: set period for %v: %w", f, err)
	}
	b.pwm.Set(b.channel, b.pwm.Top()/2)
	return nil
}

func (b *Buzzer) Silence() error {
	b.pwm.Set(b.channel, 0)
	return nil
}

package hw

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"howsair-beacon/internal/alert"
)

type pwmPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
	Out(l gpio.Level) error
}

// PWMBuzzer drives a passive buzzer with a 50% duty square wave.
type PWMBuzzer struct {
	pin pwmPin
}

var _ alert.ToneOutput = (*PWMBuzzer)(nil)

func NewPWMBuzzer(name string) (*PWMBuzzer, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("hw: gpio %q not found", name)
	}
	return &PWMBuzzer{pin: p}, nil
}

func (b *PWMBuzzer) Tone(f physic.Frequency) error {
	return b.pin.PWM(gpio.DutyHalf, f)
}

func (b *PWMBuzzer) Silence() error {
	return b.pin.Out(gpio.Low)
}

package hw

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/analog"

	"howsair-beacon/internal/sensor"
)

type sampleReader interface {
	Read() (analog.Sample, error)
}

// ADS1115Sampler serves sensor.Sampler from single-ended ADS1115 inputs.
// With the ±4.096V gain the matching sensor.ADC is {4.096, 32768}.
type ADS1115Sampler struct {
	pins map[int]sampleReader
}

var _ sensor.Sampler = (*ADS1115Sampler)(nil)

func newADS1115Sampler(pins map[int]sampleReader) *ADS1115Sampler {
	return &ADS1115Sampler{pins: pins}
}

func (s *ADS1115Sampler) ReadRaw(ctx context.Context, pin int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r, ok := s.pins[pin]
	if !ok {
		return 0, fmt.Errorf("hw: pin %d not configured", pin)
	}
	sample, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("hw: read pin %d: %w", pin, err)
	}
	// single-ended inputs read a few negative codes of offset near ground
	if sample.Raw < 0 {
		return 0, nil
	}
	return int(sample.Raw), nil
}

// Ozone front-end sampling: three ADC channels (gas electrode, reference
// electrode, temperature output) turned into one calibrated Measurement.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"howsair-beacon/internal/calibration"
	"howsair-beacon/internal/types"
)

// ErrSensorUnavailable means a channel could not be sampled (fault, bad
// value or timeout). Callers skip the cycle.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Sampler reads one raw conversion in [0, full scale) from an analog pin.
type Sampler interface {
	ReadRaw(ctx context.Context, pin int) (int, error)
}

type Pins struct {
	Gas  int
	Ref  int
	Temp int
}

// ADC describes the converter: volts = raw * ReferenceVoltage / FullScale.
type ADC struct {
	ReferenceVoltage float64
	FullScale        int
}

func (a ADC) Volts(raw int) float64 {
	return float64(raw) * (a.ReferenceVoltage / float64(a.FullScale))
}

type Options struct {
	Pins         Pins
	ADC          ADC
	Coefficients calibration.Coefficients
	// SampleTimeout bounds each channel read; zero disables the guard.
	SampleTimeout time.Duration
	Logger        *slog.Logger
}

type Reader struct {
	sampler Sampler
	pins    Pins
	adc     ADC
	coeffs  calibration.Coefficients
	timeout time.Duration
	logger  *slog.Logger
}

func NewReader(sampler Sampler, opts Options) (*Reader, error) {
	if sampler == nil {
		return nil, errors.New("sensor: nil sampler")
	}
	if opts.Coefficients.Slope() <= 0 {
		return nil, fmt.Errorf("sensor: %w: slope %g", calibration.ErrInvalidCalibration, opts.Coefficients.Slope())
	}
	if opts.ADC.FullScale <= 0 {
		return nil, fmt.Errorf("sensor: adc full scale must be positive, got %d", opts.ADC.FullScale)
	}
	if opts.ADC.ReferenceVoltage <= 0 {
		return nil, fmt.Errorf("sensor: adc reference voltage must be positive, got %g", opts.ADC.ReferenceVoltage)
	}
	if opts.SampleTimeout < 0 {
		return nil, fmt.Errorf("sensor: sample timeout must not be negative, got %v", opts.SampleTimeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		sampler: sampler,
		pins:    opts.Pins,
		adc:     opts.ADC,
		coeffs:  opts.Coefficients,
		timeout: opts.SampleTimeout,
		logger:  logger,
	}, nil
}

// Measure samples gas, reference and temperature in that order.
func (r *Reader) Measure(ctx context.Context) (types.Measurement, error) {
	vGas, err := r.readVolts(ctx, r.pins.Gas)
	if err != nil {
		return types.Measurement{}, err
	}
	vRef, err := r.readVolts(ctx, r.pins.Ref)
	if err != nil {
		return types.Measurement{}, err
	}
	vTemp, err := r.readVolts(ctx, r.pins.Temp)
	if err != nil {
		return types.Measurement{}, err
	}

	m := types.Measurement{
		OzonePPM:     calibration.OzonePPM(vGas, vRef, r.coeffs),
		TemperatureC: calibration.TemperatureC(vTemp, r.coeffs),
	}
	r.logger.Debug("sensor: measured",
		"v_gas", vGas,
		"v_ref", vRef,
		"v_temp", vTemp,
		"mode", r.coeffs.Mode().String(),
		"ozone_ppm", m.OzonePPM,
		"temperature_c", m.TemperatureC,
	)
	return m, nil
}

func (r *Reader) readVolts(ctx context.Context, pin int) (float64, error) {
	raw, err := r.readRaw(ctx, pin)
	if err != nil {
		return 0, err
	}
	if raw < 0 || raw >= r.adc.FullScale {
		return 0, fmt.Errorf("%w: pin %d: raw %d outside [0, %d)", ErrSensorUnavailable, pin, raw, r.adc.FullScale)
	}
	return r.adc.Volts(raw), nil
}

func (r *Reader) readRaw(ctx context.Context, pin int) (int, error) {
	if r.timeout == 0 {
		raw, err := r.sampler.ReadRaw(ctx, pin)
		if err != nil {
			return 0, unavailable(pin, err)
		}
		return raw, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		raw int
		err error
	}
	// Buffered so a sampler that ignores ctx can still finish and exit.
	done := make(chan result, 1)
	go func() {
		raw, err := r.sampler.ReadRaw(ctx, pin)
		done <- result{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return 0, unavailable(pin, res.err)
		}
		return res.raw, nil
	case <-ctx.Done():
		return 0, unavailable(pin, ctx.Err())
	}
}

func unavailable(pin int, err error) error {
	if errors.Is(err, ErrSensorUnavailable) {
		return fmt.Errorf("pin %d: %w", pin, err)
	}
	return fmt.Errorf("%w: pin %d: %w", ErrSensorUnavailable, pin, err)
}

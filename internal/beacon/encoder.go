package beacon

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"howsair-beacon/internal/types"
	"howsair-beacon/internal/utils"
)

// ErrOutOfRangeMeasurement flags a value that did not fit a signed 16-bit
// field and was clamped.
var ErrOutOfRangeMeasurement = errors.New("measurement out of range")

// RangeError reports one clamped field. Calibration already saturates
// readings at the int32 bounds, so Value may be a lower bound of the
// magnitude; see Saturated.
type RangeError struct {
	Field   string
	Value   int
	Clamped int16
}

// Saturated reports whether Value sits at an int32 bound, meaning the
// calibrated reading was at least that large.
func (e *RangeError) Saturated() bool {
	return e.Value >= math.MaxInt32 || e.Value <= math.MinInt32
}

func (e *RangeError) Error() string {
	if e.Saturated() {
		op := ">="
		if e.Value < 0 {
			op = "<="
		}
		return fmt.Sprintf("%s %s %d (saturated) outside [%d, %d], clamped to %d", e.Field, op, e.Value, math.MinInt16, math.MaxInt16, e.Clamped)
	}
	return fmt.Sprintf("%s %d outside [%d, %d], clamped to %d", e.Field, e.Value, math.MinInt16, math.MaxInt16, e.Clamped)
}

func (e *RangeError) Is(target error) bool { return target == ErrOutOfRangeMeasurement }

// Advertiser is the radio. Clear stops whatever is on air.
type Advertiser interface {
	Enable() error
	Clear() error
	SetFields(name string, txPower int8) error
	SetBeacon(p Payload) error
	// Start advertises until replaced when timeout is zero.
	Start(timeout time.Duration) error
}

// Identity is the transmitter identity; it does not change between broadcasts.
type Identity struct {
	Name           string
	ManufacturerID uint16
	UUID           [16]byte
	TXPower        int8
}

type Options struct {
	Identity     Identity
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Result describes what went on air.
type Result struct {
	Payload Payload
	Clamped bool
}

type Encoder struct {
	adv          Advertiser
	identity     Identity
	startTimeout time.Duration
	logger       *slog.Logger
}

func NewEncoder(adv Advertiser, opts Options) (*Encoder, error) {
	if adv == nil {
		return nil, errors.New("beacon: nil advertiser")
	}
	if opts.StartTimeout < 0 {
		return nil, fmt.Errorf("beacon: start timeout must not be negative, got %v", opts.StartTimeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		adv:          adv,
		identity:     opts.Identity,
		startTimeout: opts.StartTimeout,
		logger:       logger,
	}, nil
}

func (e *Encoder) Identity() Identity { return e.identity }

// TurnOn enables the radio and leaves it with no advertisement on air.
func (e *Encoder) TurnOn() error {
	if err := e.adv.Enable(); err != nil {
		return fmt.Errorf("beacon: enable radio: %w", err)
	}
	if err := e.adv.Clear(); err != nil {
		return fmt.Errorf("beacon: clear advertisement: %w", err)
	}
	if err := e.adv.SetFields(e.identity.Name, e.identity.TXPower); err != nil {
		return fmt.Errorf("beacon: set fields: %w", err)
	}
	e.logger.Info("beacon: transmitter on",
		"name", e.identity.Name,
		"manufacturer_id", "0x"+utils.Hex4(e.identity.ManufacturerID),
		"tx_power", e.identity.TXPower,
	)
	return nil
}

// Encode maps ozone to major and temperature to minor. Out-of-range values
// are clamped; the payload is always usable and the error, if any, matches
// ErrOutOfRangeMeasurement.
func (e *Encoder) Encode(m types.Measurement, measuredPower int8) (Payload, error) {
	major, majorErr := clamp16("ozone_ppm", m.OzonePPM)
	minor, minorErr := clamp16("temperature_c", m.TemperatureC)
	p := Payload{
		ManufacturerID: e.identity.ManufacturerID,
		UUID:           e.identity.UUID,
		Major:          major,
		Minor:          minor,
		MeasuredPower:  measuredPower,
	}
	return p, errors.Join(majorErr, minorErr)
}

// Broadcast replaces the advertisement on air with one carrying m.
// Clamping is reported in Result; the returned error is a radio failure.
func (e *Encoder) Broadcast(m types.Measurement, measuredPower int8) (Result, error) {
	p, rangeErr := e.Encode(m, measuredPower)
	res := Result{Payload: p, Clamped: rangeErr != nil}
	if rangeErr != nil {
		e.logger.Warn("beacon: measurement clamped", "error", rangeErr, "measurement", m.String())
	}

	if err := e.adv.Clear(); err != nil {
		return res, fmt.Errorf("beacon: clear advertisement: %w", err)
	}
	if err := e.adv.SetFields(e.identity.Name, e.identity.TXPower); err != nil {
		return res, fmt.Errorf("beacon: set fields: %w", err)
	}
	if err := e.adv.SetBeacon(p); err != nil {
		return res, fmt.Errorf("beacon: set payload: %w", err)
	}
	if err := e.adv.Start(e.startTimeout); err != nil {
		return res, fmt.Errorf("beacon: start advertising: %w", err)
	}

	e.logger.Debug("beacon: advertising",
		"major", p.Major,
		"minor", p.Minor,
		"measured_power", p.MeasuredPower,
		"data", utils.BytesToHex(p.ManufacturerData()),
	)
	return res, nil
}

func clamp16(field string, v int) (int16, error) {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16, &RangeError{Field: field, Value: v, Clamped: math.MaxInt16}
	case v < math.MinInt16:
		return math.MinInt16, &RangeError{Field: field, Value: v, Clamped: math.MinInt16}
	}
	return int16(v), nil
}

// Package calibration converts front-end voltages into ozone (PPM) and
// temperature (°C) readings.
//
// Two coefficient sets exist across the sensor's revisions and neither is
// authoritative, so both are kept and chosen by Mode:
//
//	ModeUncalibrated: ozone = 50 - |raw|,       temperature = vTemp + 20
//	ModeCalibrated:   ozone = |raw| * X + Y,     temperature = vTemp * 10
//
// where raw = (vGas - vRef) / slope. Both temperature formulas are pending
// calibration against a reference thermometer.
package calibration

import (
	"errors"
	"fmt"
	"math"
)

// DefaultTIAGain is the transimpedance gain of the analog front-end (kΩ).
const DefaultTIAGain = 499

// UncalibratedBaselinePPM is the ozone reading for vGas == vRef in ModeUncalibrated.
const UncalibratedBaselinePPM = 50

// ErrInvalidCalibration is returned when coefficients would make the ozone
// formula divide by zero or flip sign.
var ErrInvalidCalibration = errors.New("invalid calibration")

type Mode int

const (
	ModeUncalibrated Mode = iota
	ModeCalibrated
)

func (m Mode) String() string {
	switch m {
	case ModeUncalibrated:
		return "uncalibrated"
	case ModeCalibrated:
		return "calibrated"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Linear is the optional X/Y correction applied to the raw ozone deviation.
type Linear struct {
	X float64
	Y float64
}

// Coefficients is immutable once built by NewCoefficients.
type Coefficients struct {
	sensitivityCode float64
	tiaGain         float64
	slope           float64
	linear          *Linear
}

// NewCoefficients derives the slope (sensitivityCode * tiaGain * 1e-6) and
// selects ModeCalibrated when linear is non-nil.
func NewCoefficients(sensitivityCode, tiaGain float64, linear *Linear) (Coefficients, error) {
	slope := sensitivityCode * tiaGain * 1e-6
	if math.IsNaN(slope) || math.IsInf(slope, 0) || slope <= 0 {
		return Coefficients{}, fmt.Errorf("%w: slope %g (sensitivity code %g, tia gain %g) must be positive",
			ErrInvalidCalibration, slope, sensitivityCode, tiaGain)
	}
	c := Coefficients{
		sensitivityCode: sensitivityCode,
		tiaGain:         tiaGain,
		slope:           slope,
	}
	if linear != nil {
		if math.IsNaN(linear.X) || math.IsNaN(linear.Y) || math.IsInf(linear.X, 0) || math.IsInf(linear.Y, 0) {
			return Coefficients{}, fmt.Errorf("%w: linear correction x=%g y=%g", ErrInvalidCalibration, linear.X, linear.Y)
		}
		l := *linear
		c.linear = &l
	}
	return c, nil
}

func (c Coefficients) Mode() Mode {
	if c.linear != nil {
		return ModeCalibrated
	}
	return ModeUncalibrated
}

func (c Coefficients) Slope() float64 { return c.slope }

func (c Coefficients) SensitivityCode() float64 { return c.sensitivityCode }

func (c Coefficients) TIAGain() float64 { return c.tiaGain }

// Linear returns the X/Y correction and whether one is configured.
func (c Coefficients) Linear() (Linear, bool) {
	if c.linear == nil {
		return Linear{}, false
	}
	return *c.linear, true
}

// OzonePPM only looks at the magnitude of the deviation from the reference
// electrode: the sensor polarity is not calibrated.
func OzonePPM(vGas, vRef float64, c Coefficients) int {
	raw := math.Abs((vGas - vRef) / c.slope)
	if c.linear != nil {
		// float64() forbids fusing into an FMA
		return truncate(float64(raw*c.linear.X) + c.linear.Y)
	}
	return truncate(UncalibratedBaselinePPM - raw)
}

func TemperatureC(vTemp float64, c Coefficients) int {
	if c.linear != nil {
		return truncate(vTemp * 10)
	}
	return truncate(vTemp + 20)
}

// truncate rounds toward zero; out-of-range values saturate at the int32
// bounds instead of relying on the platform's float-to-int conversion.
// Readings are saturated twice: here to int32, then by the beacon encoder
// to int16, so a value of math.MaxInt32 or math.MinInt32 means "at least".
func truncate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Trunc(v))
}

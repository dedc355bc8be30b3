package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"howsair-beacon/internal/alert"
	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/calibration"
	"howsair-beacon/internal/sensor"
)

// Device holds the per-unit tables that never change at runtime.
type Device struct {
	Sensor SensorConfig `yaml:"sensor"`
	ADC    ADCConfig    `yaml:"adc"`
	Beacon BeaconConfig `yaml:"beacon"`
	Alert  AlertConfig  `yaml:"alert"`
}

type SensorConfig struct {
	GasPin          int     `yaml:"gas_pin"`
	RefPin          int     `yaml:"ref_pin"`
	TempPin         int     `yaml:"temp_pin"`
	SensitivityCode float64 `yaml:"sensitivity_code"`
	TIAGain         float64 `yaml:"tia_gain"`
	// Calibration selects the calibrated formulas when present.
	Calibration *LinearConfig `yaml:"calibration,omitempty"`
}

type LinearConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type ADCConfig struct {
	ReferenceVoltage float64 `yaml:"reference_voltage"`
	FullScale        int     `yaml:"full_scale"`
}

type BeaconConfig struct {
	Name           string        `yaml:"name"`
	ManufacturerID uint16        `yaml:"manufacturer_id"`
	UUID           string        `yaml:"uuid"`
	TXPower        int8          `yaml:"tx_power"`
	MeasuredPower  int8          `yaml:"measured_power"`
	StartTimeout   time.Duration `yaml:"start_timeout"`
}

type AlertConfig struct {
	// ThresholdPPM of zero disables the ozone alarm.
	ThresholdPPM  int          `yaml:"threshold_ppm"`
	HysteresisPPM int          `yaml:"hysteresis_ppm"`
	Notes         []NoteConfig `yaml:"notes"`
}

type NoteConfig struct {
	FrequencyHz int           `yaml:"frequency_hz"`
	Duration    time.Duration `yaml:"duration"`
}

// DefaultDevice returns the GTI-3A prototype tables.
func DefaultDevice() Device {
	melody := alert.DefaultMelody()
	notes := make([]NoteConfig, len(melody))
	for i, n := range melody {
		notes[i] = NoteConfig{FrequencyHz: int(n.Frequency / physic.Hertz), Duration: n.Duration}
	}
	return Device{
		Sensor: SensorConfig{
			GasPin:          0,
			RefPin:          1,
			TempPin:         2,
			SensitivityCode: 41.96,
			TIAGain:         calibration.DefaultTIAGain,
		},
		ADC: ADCConfig{
			ReferenceVoltage: 3.3,
			FullScale:        4096,
		},
		Beacon: BeaconConfig{
			Name:           "GTI-3A",
			ManufacturerID: beacon.AppleCompanyID,
			UUID:           "MANU-EPSG-GTI-3A",
			TXPower:        4,
			MeasuredPower:  73,
		},
		Alert: AlertConfig{
			HysteresisPPM: 5,
			Notes:         notes,
		},
	}
}

// LoadDevice overlays a YAML file on DefaultDevice. A missing file yields
// the defaults.
func LoadDevice(path string) (Device, error) {
	d := DefaultDevice()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return d, nil
		}
		return Device{}, fmt.Errorf("read device config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Device{}, fmt.Errorf("parse device config %s: %w", path, err)
	}
	d.ensureDefaults()
	return d, nil
}

func (d *Device) ensureDefaults() {
	def := DefaultDevice()
	if d.Sensor.TIAGain == 0 {
		d.Sensor.TIAGain = def.Sensor.TIAGain
	}
	if d.ADC.ReferenceVoltage == 0 {
		d.ADC.ReferenceVoltage = def.ADC.ReferenceVoltage
	}
	if d.ADC.FullScale == 0 {
		d.ADC.FullScale = def.ADC.FullScale
	}
	if d.Beacon.UUID == "" {
		d.Beacon.UUID = def.Beacon.UUID
	}
	if d.Beacon.ManufacturerID == 0 {
		d.Beacon.ManufacturerID = def.Beacon.ManufacturerID
	}
	if len(d.Alert.Notes) == 0 {
		d.Alert.Notes = def.Alert.Notes
	}
}

// Validate checks everything the pipeline constructors would reject, so a
// bad file fails at startup.
func (d Device) Validate() error {
	if _, err := d.Coefficients(); err != nil {
		return err
	}
	if d.ADC.ReferenceVoltage <= 0 {
		return fmt.Errorf("adc.reference_voltage must be positive, got %g", d.ADC.ReferenceVoltage)
	}
	if d.ADC.FullScale <= 0 {
		return fmt.Errorf("adc.full_scale must be positive, got %d", d.ADC.FullScale)
	}
	s := d.Sensor
	if s.GasPin == s.RefPin || s.GasPin == s.TempPin || s.RefPin == s.TempPin {
		return fmt.Errorf("sensor pins must be distinct, got gas=%d ref=%d temp=%d", s.GasPin, s.RefPin, s.TempPin)
	}
	if _, err := d.Identity(); err != nil {
		return err
	}
	if d.Beacon.StartTimeout < 0 {
		return fmt.Errorf("beacon.start_timeout must not be negative, got %v", d.Beacon.StartTimeout)
	}
	if err := d.Melody().Validate(); err != nil {
		return fmt.Errorf("alert.notes: %w", err)
	}
	if d.Alert.ThresholdPPM < 0 {
		return fmt.Errorf("alert.threshold_ppm must not be negative, got %d", d.Alert.ThresholdPPM)
	}
	if d.Alert.HysteresisPPM < 0 {
		return fmt.Errorf("alert.hysteresis_ppm must not be negative, got %d", d.Alert.HysteresisPPM)
	}
	return nil
}

func (d Device) Coefficients() (calibration.Coefficients, error) {
	var linear *calibration.Linear
	if c := d.Sensor.Calibration; c != nil {
		linear = &calibration.Linear{X: c.X, Y: c.Y}
	}
	c, err := calibration.NewCoefficients(d.Sensor.SensitivityCode, d.Sensor.TIAGain, linear)
	if err != nil {
		return calibration.Coefficients{}, fmt.Errorf("sensor: %w", err)
	}
	return c, nil
}

func (d Device) Pins() sensor.Pins {
	return sensor.Pins{Gas: d.Sensor.GasPin, Ref: d.Sensor.RefPin, Temp: d.Sensor.TempPin}
}

func (d Device) ADCParams() sensor.ADC {
	return sensor.ADC{ReferenceVoltage: d.ADC.ReferenceVoltage, FullScale: d.ADC.FullScale}
}

func (d Device) Identity() (beacon.Identity, error) {
	id, err := beacon.ParseUUID(d.Beacon.UUID)
	if err != nil {
		return beacon.Identity{}, fmt.Errorf("beacon.uuid: %w", err)
	}
	return beacon.Identity{
		Name:           d.Beacon.Name,
		ManufacturerID: d.Beacon.ManufacturerID,
		UUID:           id,
		TXPower:        d.Beacon.TXPower,
	}, nil
}

func (d Device) Melody() alert.Melody {
	m := make(alert.Melody, len(d.Alert.Notes))
	for i, n := range d.Alert.Notes {
		m[i] = alert.Note{Frequency: physic.Frequency(n.FrequencyHz) * physic.Hertz, Duration: n.Duration}
	}
	return m
}

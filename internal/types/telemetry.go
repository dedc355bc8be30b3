package types

import "time"

// Telemetry is the JSON copy of a broadcast cycle published off-device.
type Telemetry struct {
	BeaconID     string    `json:"beacon_id"`
	Timestamp    time.Time `json:"timestamp"`
	OzonePPM     int       `json:"ozone_ppm"`
	TemperatureC int       `json:"temperature_c"`
	Major        int16     `json:"major"`
	Minor        int16     `json:"minor"`
	Clamped      bool      `json:"clamped,omitempty"`
	Sequence     uint32    `json:"sequence"`
}

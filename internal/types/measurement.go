package types

import "fmt"

// Measurement is one calibrated sample of the ozone and temperature channels.
type Measurement struct {
	OzonePPM     int
	TemperatureC int
}

func (m Measurement) String() string {
	return fmt.Sprintf("O3=%dppm T=%d°C", m.OzonePPM, m.TemperatureC)
}

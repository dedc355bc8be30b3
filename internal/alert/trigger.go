package alert

import (
	"context"
	"fmt"
	"log/slog"

	"howsair-beacon/internal/telemetry"
)

// ThresholdTrigger plays the melody while ozone stays at or above
// ThresholdPPM and stops it once ozone falls below ThresholdPPM-HysteresisPPM.
type ThresholdTrigger struct {
	seq          *Sequencer
	thresholdPPM int
	hysteresis   int
	logger       *slog.Logger
}

func NewThresholdTrigger(seq *Sequencer, thresholdPPM, hysteresisPPM int, logger *slog.Logger) (*ThresholdTrigger, error) {
	if seq == nil {
		return nil, fmt.Errorf("alert: nil sequencer")
	}
	if hysteresisPPM < 0 {
		return nil, fmt.Errorf("alert: hysteresis must not be negative, got %d", hysteresisPPM)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdTrigger{seq: seq, thresholdPPM: thresholdPPM, hysteresis: hysteresisPPM, logger: logger}, nil
}

var _ telemetry.Sink = (*ThresholdTrigger)(nil)

func (t *ThresholdTrigger) Observe(_ context.Context, rec telemetry.Record) error {
	ozone := rec.Measurement.OzonePPM
	switch {
	case !t.seq.IsActive() && ozone >= t.thresholdPPM:
		t.logger.Warn("alert: ozone above threshold", "ozone_ppm", ozone, "threshold_ppm", t.thresholdPPM)
		return t.seq.Start()
	case t.seq.IsActive() && ozone < t.thresholdPPM-t.hysteresis:
		t.logger.Info("alert: ozone back below threshold", "ozone_ppm", ozone, "threshold_ppm", t.thresholdPPM)
		return t.seq.Stop()
	}
	return nil
}

// Command scan prints the measurements advertised by nearby beacons that
// share this deployment's UUID.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"howsair-beacon/internal/config"
	"howsair-beacon/internal/logging"
	"howsair-beacon/internal/scan"
	"howsair-beacon/internal/utils"
)

var version = "dev"
var appName = "howsair-scan"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	identity, err := cfg.Device.Identity()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener := scan.NewListener(scan.Options{
		Adapter: strings.TrimSpace(os.Getenv("SCAN_ADAPTER")),
		Filter:  scan.Filter{ManufacturerID: identity.ManufacturerID, UUID: identity.UUID},
		Logger:  logger,
	})

	err = listener.Run(ctx, func(s scan.Sighting) {
		slog.Info("beacon",
			"addr", s.Address,
			"name", s.LocalName,
			"rssi", s.RSSI,
			"ozone_ppm", s.Measurement.OzonePPM,
			"temperature_c", s.Measurement.TemperatureC,
			"measured_power", s.MeasuredPower,
			"uuid", utils.PrintableID(s.Payload.UUID),
		)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scan failed", "err", err)
		os.Exit(1)
	}
}

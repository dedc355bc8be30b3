// Package journal keeps a SQLite record of every broadcast that went on air.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"howsair-beacon/internal/telemetry"
	"howsair-beacon/internal/types"
)

const timeLayout = time.RFC3339Nano

type Options struct {
	// Path is a file path, a file: URI or ":memory:".
	Path     string
	BeaconID string
	// LogSQL logs every statement at debug level.
	LogSQL bool
	Logger *slog.Logger
}

type Journal struct {
	db       *sql.DB
	beaconID string
	logger   *slog.Logger
}

// Open opens the database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Journal, error) {
	if opts.Path == "" {
		return nil, errors.New("journal: empty path")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db, err := openDB(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db, opts.Logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &Journal{db: db, beaconID: opts.BeaconID, logger: opts.Logger}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Ping(ctx context.Context) error {
	var ok int
	if err := j.db.QueryRowContext(ctx, "SELECT 1").Scan(&ok); err != nil {
		return fmt.Errorf("journal ping: %w", err)
	}
	return nil
}

// Observe implements telemetry.Sink.
func (j *Journal) Observe(ctx context.Context, rec telemetry.Record) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO broadcasts
			(beacon_id, sequence, recorded_at, ozone_ppm, temperature_c, major, minor, clamped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.beaconID,
		int64(rec.Sequence),
		rec.Time.UTC().Format(timeLayout),
		rec.Measurement.OzonePPM,
		rec.Measurement.TemperatureC,
		rec.Payload.Major,
		rec.Payload.Minor,
		rec.Clamped,
	)
	if err != nil {
		return fmt.Errorf("journal insert seq %d: %w", rec.Sequence, err)
	}
	return nil
}

// Recent returns up to limit broadcasts, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]types.Telemetry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT beacon_id, sequence, recorded_at, ozone_ppm, temperature_c, major, minor, clamped
		FROM broadcasts
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []types.Telemetry
	for rows.Next() {
		var (
			t        types.Telemetry
			seq      int64
			recorded string
		)
		if err := rows.Scan(&t.BeaconID, &seq, &recorded, &t.OzonePPM, &t.TemperatureC, &t.Major, &t.Minor, &t.Clamped); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		t.Sequence = uint32(seq)
		t.Timestamp, err = time.Parse(timeLayout, recorded)
		if err != nil {
			return nil, fmt.Errorf("journal recorded_at %q: %w", recorded, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of journaled broadcasts.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM broadcasts").Scan(&n); err != nil {
		return 0, fmt.Errorf("journal count: %w", err)
	}
	return n, nil
}

package journal

import (
	"context"
	"errors"
	"log/slog"

	"howsair-beacon/internal/telemetry"
)

var ErrQueueFull = errors.New("journal writer queue full")

const DefaultQueueSize = 32

// Writer is a telemetry.Sink that inserts records from its own goroutine.
// Observe never blocks; records are dropped when the queue is full.
type Writer struct {
	j      *Journal
	queue  chan telemetry.Record
	logger *slog.Logger
}

func NewWriter(j *Journal, queueSize int, logger *slog.Logger) (*Writer, error) {
	if j == nil {
		return nil, errors.New("journal writer: nil journal")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{j: j, queue: make(chan telemetry.Record, queueSize), logger: logger}, nil
}

func (w *Writer) Observe(_ context.Context, rec telemetry.Record) error {
	select {
	case w.queue <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run inserts queued records until ctx is done, then flushes what is
// already queued.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return
		case rec := <-w.queue:
			w.insert(ctx, rec)
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	for {
		select {
		case rec := <-w.queue:
			w.insert(ctx, rec)
		default:
			return
		}
	}
}

func (w *Writer) insert(ctx context.Context, rec telemetry.Record) {
	if err := w.j.Observe(ctx, rec); err != nil {
		w.logger.Warn("journal insert failed", "sequence", rec.Sequence, "error", err)
	}
}

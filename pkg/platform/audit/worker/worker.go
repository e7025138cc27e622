// Package worker drains buffered telemetry events into a sink in the
// background.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/audit/buffer"
	"credreg/pkg/platform/circuit"
)

// DropCounter receives the number of events given up on.
type DropCounter interface {
	IncrementTelemetryDropped()
}

// Worker consumes events from a ring buffer and writes them to a sink in
// batches. A batch is retried a bounded number of times; while the circuit
// breaker is open, batches are dropped without touching the sink.
type Worker struct {
	buf     *buffer.RingBuffer
	sink    audit.Sink
	breaker *circuit.Breaker
	logger  *slog.Logger
	drops   DropCounter

	batchSize     int
	flushInterval time.Duration
	maxAttempts   int
	retryBackoff  time.Duration
	writeTimeout  time.Duration
}

// Config bounds batching and retries.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	WriteTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

func NewWorker(buf *buffer.RingBuffer, sink audit.Sink, breaker *circuit.Breaker, logger *slog.Logger, drops DropCounter, cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		buf:           buf,
		sink:          sink,
		breaker:       breaker,
		logger:        logger,
		drops:         drops,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxAttempts:   cfg.MaxAttempts,
		retryBackoff:  cfg.RetryBackoff,
		writeTimeout:  cfg.WriteTimeout,
	}
}

// Run drains the buffer until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.buf.Ready():
			w.Drain(ctx)
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain writes everything currently buffered.
func (w *Worker) Drain(ctx context.Context) {
	for {
		batch := w.buf.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		w.deliver(ctx, batch)
	}
}

func (w *Worker) deliver(ctx context.Context, batch []audit.Event) {
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if !w.breaker.Allow() {
			w.drop(ctx, batch, "circuit open")
			return
		}
		err := w.write(ctx, batch)
		if err == nil {
			if _, change := w.breaker.RecordSuccess(); change.Closed {
				w.logger.InfoContext(ctx, "telemetry sink recovered", "breaker", w.breaker.Name())
			}
			return
		}
		if _, change := w.breaker.RecordFailure(); change.Opened {
			w.logger.WarnContext(ctx, "telemetry sink unhealthy, circuit opened",
				"breaker", w.breaker.Name(),
				"error", err,
			)
		}
		if attempt == w.maxAttempts || ctx.Err() != nil {
			w.drop(ctx, batch, err.Error())
			return
		}
		select {
		case <-ctx.Done():
			w.drop(ctx, batch, ctx.Err().Error())
			return
		case <-time.After(w.retryBackoff * time.Duration(attempt)):
		}
	}
}

func (w *Worker) write(ctx context.Context, batch []audit.Event) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()
	return w.sink.Write(writeCtx, batch)
}

func (w *Worker) drop(ctx context.Context, batch []audit.Event, reason string) {
	w.logger.WarnContext(ctx, "telemetry events dropped",
		"count", len(batch),
		"reason", reason,
	)
	if w.drops != nil {
		for range batch {
			w.drops.IncrementTelemetryDropped()
		}
	}
}

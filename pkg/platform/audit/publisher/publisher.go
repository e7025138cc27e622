// Package publisher is the fire-and-forget entry point for telemetry events.
//
// Emit stamps the event and puts it in a bounded ring buffer; a background
// worker delivers batches to the configured sink. Emit never blocks and never
// fails, so telemetry can be called from issuance and verification paths
// without affecting their results.
package publisher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/audit/buffer"
	"credreg/pkg/platform/audit/worker"
	"credreg/pkg/platform/circuit"
)

// Publisher buffers events and delivers them asynchronously.
type Publisher struct {
	buf    *buffer.RingBuffer
	worker *worker.Worker
	logger *slog.Logger
	drops  worker.DropCounter
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

type options struct {
	bufferSize int
	workerCfg  worker.Config
	logger     *slog.Logger
	drops      worker.DropCounter
	breaker    *circuit.Breaker
	now        func() time.Time
}

// Option configures the Publisher.
type Option func(*options)

// WithBufferSize bounds the number of undelivered events kept in memory.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// WithBatchSize sets the maximum events per sink write.
func WithBatchSize(n int) Option {
	return func(o *options) { o.workerCfg.BatchSize = n }
}

// WithFlushInterval sets how often the worker drains when idle.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.workerCfg.FlushInterval = d }
}

// WithRetry sets the attempts per batch and the base backoff between them.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *options) {
		o.workerCfg.MaxAttempts = attempts
		o.workerCfg.RetryBackoff = backoff
	}
}

// WithLogger sets a logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDropCounter reports dropped events, typically to Prometheus.
func WithDropCounter(c worker.DropCounter) Option {
	return func(o *options) { o.drops = c }
}

// WithBreaker overrides the sink circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(o *options) { o.breaker = b }
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New starts a publisher that delivers to sink. Call Close to flush and stop.
func New(sink audit.Sink, opts ...Option) *Publisher {
	o := options{
		bufferSize: 10000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.breaker == nil {
		o.breaker = circuit.New("telemetry-sink",
			circuit.WithFailureThreshold(5),
			circuit.WithCooldown(30*time.Second),
		)
	}

	buf := buffer.NewRingBuffer(o.bufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		buf:    buf,
		worker: worker.NewWorker(buf, sink, o.breaker, o.logger, o.drops, o.workerCfg),
		logger: o.logger,
		drops:  o.drops,
		now:    o.now,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_ = p.worker.Run(ctx)
	}()
	return p
}

// Emit queues an event for delivery. It never blocks.
func (p *Publisher) Emit(event audit.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if p.buf.Enqueue(event) && p.drops != nil {
		p.drops.IncrementTelemetryDropped()
	}
}

// Dropped returns the number of events evicted from a full buffer.
func (p *Publisher) Dropped() int64 {
	return p.buf.Dropped()
}

// Close stops the worker and makes a final delivery attempt for buffered
// events, bounded by ctx.
func (p *Publisher) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		select {
		case <-p.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		p.worker.Drain(ctx)
		err = ctx.Err()
	})
	return err
}

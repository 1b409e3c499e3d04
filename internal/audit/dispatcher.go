package audit

import (
	"context"
	"sync"
	"time"

	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/monitoring"
	"github.com/medrex/rxledger/pkg/types"
)

// Recorder receives dispatch metrics
type Recorder interface {
	RecordAuditEvent(eventType string)
	RecordAuditDelivery(sink string, success bool)
	RecordAuditDropped(n int)
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	// MaxAttempts bounds writes of one batch to one sink
	MaxAttempts int
	// RetryBackoff is the wait before the second attempt; it doubles after
	// each further failure
	RetryBackoff time.Duration
	Logger       *logger.Logger
	Metrics      Recorder
	Tracing      *monitoring.TracingManager
}

// Dispatcher fans committed audit events out to sinks on a background
// worker. Publish never blocks the ledger; batches that do not fit in the
// buffer are dropped and counted. A failed write is retried up to
// MaxAttempts before the batch is given up for that sink.
type Dispatcher struct {
	sinks   []Sink
	queue   chan []types.AuditEvent
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *logger.Logger
	metrics Recorder
	tracing *monitoring.TracingManager

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewDispatcher creates a dispatcher for sinks. Call Start before
// publishing and Close on shutdown.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Tracing == nil {
		cfg.Tracing = monitoring.NewNoopTracingManager()
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan []types.AuditEvent, cfg.BufferSize),
		timeout: cfg.WriteTimeout,
		retries: cfg.MaxAttempts,
		backoff: cfg.RetryBackoff,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracing: cfg.Tracing,
		done:    make(chan struct{}),
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

// Publish enqueues a committed batch. It implements ledger.Publisher.
func (d *Dispatcher) Publish(events []types.AuditEvent) {
	if len(events) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.metrics != nil {
		for _, e := range events {
			d.metrics.RecordAuditEvent(string(e.Name))
		}
	}

	if d.closed {
		d.drop(events, "dispatcher closed")
		return
	}

	select {
	case d.queue <- events:
	default:
		d.drop(events, "dispatch buffer full")
	}
}

func (d *Dispatcher) drop(events []types.AuditEvent, reason string) {
	if d.metrics != nil {
		d.metrics.RecordAuditDropped(len(events))
	}
	d.logger.WithComponent("audit").WithFields(map[string]interface{}{
		"reason":         reason,
		"events":         len(events),
		"first_sequence": events[0].Sequence,
	}).Warn("Audit events dropped")
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for batch := range d.queue {
		d.deliver(batch)
	}
}

func (d *Dispatcher) deliver(batch []types.AuditEvent) {
	for _, sink := range d.sinks {
		err := d.deliverTo(sink, batch)
		if err != nil {
			d.logger.WithComponent("audit").WithError(err).WithFields(map[string]interface{}{
				"sink":           sink.Name(),
				"events":         len(batch),
				"first_sequence": batch[0].Sequence,
				"attempts":       d.retries,
			}).Error("Failed to deliver audit events")
		}
		if d.metrics != nil {
			d.metrics.RecordAuditDelivery(sink.Name(), err == nil)
		}
	}
}

// deliverTo writes batch to sink, retrying with exponential backoff
func (d *Dispatcher) deliverTo(sink Sink, batch []types.AuditEvent) error {
	backoff := d.backoff
	var err error
	for attempt := 1; attempt <= d.retries; attempt++ {
		if attempt > 1 {
			time.Sleep(backoff)
			backoff *= 2
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		ctx, span := d.tracing.StartSinkSpan(ctx, sink.Name(), len(batch))
		err = sink.Write(ctx, batch)
		if err != nil {
			d.tracing.RecordError(span, err)
			d.logger.WithComponent("audit").WithError(err).WithFields(map[string]interface{}{
				"sink":    sink.Name(),
				"attempt": attempt,
			}).Debug("Audit sink write failed")
		}
		span.End()
		cancel()

		if err == nil {
			return nil
		}
	}
	return err
}

// Close stops accepting events and waits for queued batches to drain or
// for ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

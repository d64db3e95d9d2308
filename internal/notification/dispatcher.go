package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kycflow_notifications_sent_total",
		Help: "Notifications delivered to the sink",
	})
	notificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kycflow_notifications_failed_total",
		Help: "Notifications lost because the sink returned an error",
	})
	notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kycflow_notifications_dropped_total",
		Help: "Notifications dropped because the buffer was full",
	})
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
	drainTimeout         = 5 * time.Second
)

// Dispatcher buffers notifications and hands them to a Sink from a single
// background goroutine started by Run.
type Dispatcher struct {
	sink          Sink
	buffer        *RingBuffer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	wake          chan struct{}
}

type Option func(*Dispatcher)

func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		d.buffer = NewRingBuffer(n)
	}
}

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithFlushInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.flushInterval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:          sink,
		buffer:        NewRingBuffer(0),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default(),
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify enqueues n without blocking.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	if d.buffer.Enqueue(n) {
		notificationsDropped.Inc()
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers buffered notifications until ctx is cancelled, then makes one
// bounded attempt to drain what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			d.flush(drainCtx)
			cancel()
			return nil
		case <-d.wake:
			d.flush(ctx)
		case <-ticker.C:
			d.flush(ctx)
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	for {
		batch := d.buffer.DequeueBatch(d.batchSize)
		if len(batch) == 0 {
			return
		}
		if err := d.sink.Send(ctx, batch); err != nil {
			notificationsFailed.Add(float64(len(batch)))
			d.logger.WarnContext(ctx, "notification delivery failed",
				"error", err,
				"batch_size", len(batch),
			)
			continue
		}
		notificationsSent.Add(float64(len(batch)))
	}
}

// Package notifier fans broadcast events out to sinks without blocking jobs.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 10 * time.Second
)

// Dispatcher implements deps.Notifier with a bounded queue drained by one goroutine
type Dispatcher struct {
	sinks          []deps.Sink
	queue          chan entities.Event
	publishTimeout time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started sync.Once
}

// Config holds dispatcher settings
type Config struct {
	QueueSize      int
	PublishTimeout time.Duration
}

// NewDispatcher creates a dispatcher, Start must be called before events are delivered
func NewDispatcher(sinks []deps.Sink, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Dispatcher{
		sinks:          sinks,
		queue:          make(chan entities.Event, cfg.QueueSize),
		publishTimeout: cfg.PublishTimeout,
		metrics:        m,
		logger:         logger.With().Str("component", "notifier").Logger(),
		done:           make(chan struct{}),
	}
}

// Start begins draining the queue
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		go d.run()
		d.logger.Info().Int("sinks", len(d.sinks)).Msg("notifier started")
	})
}

// Notify enqueues event, it is dropped when the queue is full or the dispatcher is closed
func (d *Dispatcher) Notify(event entities.Event) {
	if len(d.sinks) == 0 {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- event:
	default:
		d.metrics.RecordEventDropped()
		d.logger.Warn().
			Str("type", string(event.Type)).
			Int64("account_id", event.AccountID).
			Msg("notification queue full, event dropped")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.publish(event)
	}
}

func (d *Dispatcher) publish(event entities.Event) {
	for _, sink := range d.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.metrics.RecordEvent(sink.Name(), "panic")
					d.logger.Error().Interface("panic", r).Str("sink", sink.Name()).Msg("sink panicked")
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
			defer cancel()

			if err := sink.Publish(ctx, event); err != nil {
				d.metrics.RecordEvent(sink.Name(), "error")
				d.logger.Warn().
					Err(err).
					Str("sink", sink.Name()).
					Str("type", string(event.Type)).
					Msg("failed to publish event")
				return
			}
			d.metrics.RecordEvent(sink.Name(), "ok")
		}()
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	// Never started, nothing drains the queue
	d.Start()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn().Int("pending", len(d.queue)).Msg("notifier closed before queue drained")
		return ctx.Err()
	}
}

var _ deps.Notifier = (*Dispatcher)(nil)

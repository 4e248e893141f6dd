package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// maxConsecutiveFailures marks the sink unhealthy until a delivery succeeds again
const maxConsecutiveFailures = 10

// ErrSinkClosed is returned when publishing after Close
var ErrSinkClosed = errors.New("kafka event sink is closed")

// EventSink publishes broadcast events to a Kafka topic
type EventSink struct {
	producer sarama.AsyncProducer
	topic    string
	logger   zerolog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	mu     sync.RWMutex
	closed bool

	failuresMu sync.Mutex
	failures   int
}

// SinkConfig holds configuration for the event sink
type SinkConfig struct {
	Brokers    []string
	Topic      string
	MaxRetries int
	Logger     zerolog.Logger
}

// NewEventSink creates an async producer for broadcast events
//
// Events are keyed by account so that the events of one job stay ordered
// within a partition.
func NewEventSink(cfg SinkConfig) (*EventSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = cfg.MaxRetries
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.ClientID = "broadcast-service-events"
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cfg.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka event sink initialized")

	return newEventSink(producer, cfg.Topic, cfg.Logger), nil
}

func newEventSink(producer sarama.AsyncProducer, topic string, logger zerolog.Logger) *EventSink {
	s := &EventSink{
		producer: producer,
		topic:    topic,
		logger:   logger.With().Str("component", "kafka_sink").Logger(),
	}
	s.wg.Add(2)
	go s.handleSuccesses()
	go s.handleErrors()
	return s
}

// Name identifies the sink in metrics
func (s *EventSink) Name() string {
	return "kafka"
}

// Publish queues an event, delivery errors are reported asynchronously
func (s *EventSink) Publish(ctx context.Context, event entities.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(event.AccountID, 10)),
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.At,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	// Close must not shut the input while a send is pending
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.producer.Input() <- msg:
		s.logger.Debug().
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Int64("account_id", event.AccountID).
			Msg("event queued for kafka")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while queueing event: %w", ctx.Err())
	}
}

func (s *EventSink) handleSuccesses() {
	defer s.wg.Done()

	for msg := range s.producer.Successes() {
		s.failuresMu.Lock()
		s.failures = 0
		s.failuresMu.Unlock()

		s.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("event delivered to kafka")
	}
}

func (s *EventSink) handleErrors() {
	defer s.wg.Done()

	for producerErr := range s.producer.Errors() {
		s.failuresMu.Lock()
		s.failures++
		s.failuresMu.Unlock()

		ev := s.logger.Error().Err(producerErr.Err)
		if producerErr.Msg != nil {
			ev = ev.Str("topic", producerErr.Msg.Topic).Interface("key", producerErr.Msg.Key)
		}
		ev.Msg("failed to deliver event to kafka")
	}
}

// IsHealthy reports whether the sink is open and delivering
func (s *EventSink) IsHealthy() bool {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false
	}

	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()
	return s.failures < maxConsecutiveFailures
}

// Close flushes pending events and stops the producer, it is idempotent
func (s *EventSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// Handlers drain the remaining results until the producer closes its channels
		s.producer.AsyncClose()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("timeout flushing kafka events: %w", ctx.Err())
		}

		if s.closeErr != nil {
			s.logger.Error().Err(s.closeErr).Msg("Kafka event sink closed with errors")
		} else {
			s.logger.Info().Msg("Kafka event sink closed")
		}
	})
	return s.closeErr
}

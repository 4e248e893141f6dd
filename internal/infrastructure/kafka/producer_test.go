package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

func mockConfig() *sarama.Config {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

func TestNewEventSink_Validation(t *testing.T) {
	_, err := NewEventSink(SinkConfig{Topic: "broadcast.events", Logger: zerolog.Nop()})
	assert.EqualError(t, err, "no kafka brokers specified")

	_, err = NewEventSink(SinkConfig{Brokers: []string{"localhost:9092"}, Logger: zerolog.Nop()})
	assert.EqualError(t, err, "kafka topic is required")
}

func TestEventSink_PublishKeysByAccount(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mockConfig())

	event := entities.Event{
		ID:        "evt-1",
		Type:      entities.EventStarted,
		UserID:    7,
		AccountID: 42,
		At:        time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded entities.Event
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded.ID != event.ID || decoded.Type != event.Type || decoded.UserID != event.UserID {
			return errors.New("unexpected payload")
		}
		return nil
	})

	sink := newEventSink(producer, "broadcast.events", zerolog.Nop())
	require.NoError(t, sink.Publish(context.Background(), event))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
	assert.Equal(t, "kafka", sink.Name())
}

func TestEventSink_PublishAfterClose(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mockConfig())
	sink := newEventSink(producer, "broadcast.events", zerolog.Nop())

	require.NoError(t, sink.Close(context.Background()))
	require.NoError(t, sink.Close(context.Background()))

	err := sink.Publish(context.Background(), entities.Event{AccountID: 1})
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.False(t, sink.IsHealthy())
}

func TestEventSink_UnhealthyAfterRepeatedFailures(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mockConfig())
	for i := 0; i < maxConsecutiveFailures; i++ {
		producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	}

	sink := newEventSink(producer, "broadcast.events", zerolog.Nop())
	assert.True(t, sink.IsHealthy())

	for i := 0; i < maxConsecutiveFailures; i++ {
		require.NoError(t, sink.Publish(context.Background(), entities.Event{AccountID: int64(i)}))
	}

	assert.Eventually(t, func() bool { return !sink.IsHealthy() }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
}

func TestEventSink_SuccessRestoresHealth(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mockConfig())
	for i := 0; i < maxConsecutiveFailures; i++ {
		producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	}
	producer.ExpectInputAndSucceed()

	sink := newEventSink(producer, "broadcast.events", zerolog.Nop())
	for i := 0; i < maxConsecutiveFailures; i++ {
		require.NoError(t, sink.Publish(context.Background(), entities.Event{AccountID: 1}))
	}
	assert.Eventually(t, func() bool { return !sink.IsHealthy() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sink.Publish(context.Background(), entities.Event{AccountID: 1}))
	assert.Eventually(t, sink.IsHealthy, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
}

package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

// Module provides the Kafka event sink and command consumer for fx DI
var Module = fx.Module("kafka",
	fx.Provide(NewEventSinkFx),
	fx.Invoke(registerCommandConsumer),
)

// SinkOut contributes the event sink to the notifier and health groups, both empty when Kafka is disabled
type SinkOut struct {
	fx.Out

	Sinks     []deps.Sink               `group:"broadcast_sinks,flatten"`
	Reporters []httputil.HealthReporter `group:"health,flatten"`
}

// NewEventSinkFx creates the Kafka event sink when brokers are configured
func NewEventSinkFx(lc fx.Lifecycle, kafkaCfg *config.KafkaConfig, logger zerolog.Logger) (SinkOut, error) {
	if !kafkaCfg.Enabled() {
		logger.Info().Msg("Kafka brokers not configured, event sink disabled")
		return SinkOut{}, nil
	}

	sink, err := NewEventSink(SinkConfig{
		Brokers: kafkaCfg.Brokers,
		Topic:   kafkaCfg.TopicEvents,
		Logger:  logger,
	})
	if err != nil {
		return SinkOut{}, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sink.Close(ctx)
		},
	})

	return SinkOut{
		Sinks:     []deps.Sink{sink},
		Reporters: []httputil.HealthReporter{sink},
	}, nil
}

// registerCommandConsumer creates the command consumer and hooks it into the lifecycle
func registerCommandConsumer(
	lc fx.Lifecycle,
	kafkaCfg *config.KafkaConfig,
	handler deps.CommandHandler,
	logger zerolog.Logger,
) error {
	if !kafkaCfg.Enabled() || kafkaCfg.TopicCommands == "" {
		return nil
	}

	consumer, err := NewCommandConsumer(
		kafkaCfg.Brokers,
		kafkaCfg.GroupID,
		[]string{kafkaCfg.TopicCommands},
		handler,
		logger.With().Str("component", "kafka-consumer").Logger(),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			consumer.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			return consumer.Close()
		},
	})

	return nil
}

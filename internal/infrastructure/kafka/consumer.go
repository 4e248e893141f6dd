package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

const maxRetries = 3

// CommandConsumer feeds broadcast commands from a consumer group to the handler
type CommandConsumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       deps.CommandHandler
	logger        zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommandConsumer creates a consumer group for broadcast commands
func NewCommandConsumer(
	brokers []string,
	groupID string,
	topics []string,
	handler deps.CommandHandler,
	logger zerolog.Logger,
) (*CommandConsumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create Kafka consumer group")
		return nil, err
	}

	logger.Info().
		Str("group_id", groupID).
		Strs("topics", topics).
		Msg("Kafka consumer group successfully initialized")

	return newCommandConsumer(consumerGroup, topics, handler, logger), nil
}

func newCommandConsumer(group sarama.ConsumerGroup, topics []string, handler deps.CommandHandler, logger zerolog.Logger) *CommandConsumer {
	return &CommandConsumer{
		consumerGroup: group,
		topics:        topics,
		handler:       handler,
		logger:        logger,
	}
}

// Start begins consuming messages in a goroutine
func (c *CommandConsumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			if ctx.Err() != nil {
				c.logger.Info().Msg("consumer context canceled, stopping consumer group")
				return
			}

			if err := c.consumerGroup.Consume(ctx, c.topics, c); err != nil {
				c.logger.Error().Err(err).Msg("error from consumer group")
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for err := range c.consumerGroup.Errors() {
			c.logger.Error().Err(err).Msg("Kafka consumer group error")
		}
	}()

	c.logger.Info().
		Strs("topics", c.topics).
		Msg("Kafka consumer group started")
}

// Close stops consuming and shuts the consumer group down
func (c *CommandConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}

	c.logger.Info().Msg("closing Kafka consumer group...")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error().Err(err).Msg("failed to close Kafka consumer group")
		return err
	}
	c.wg.Wait()

	c.logger.Info().Msg("Kafka consumer group successfully closed")
	return nil
}

// Setup is called at the beginning of a new session
func (c *CommandConsumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Info().
		Str("member_id", session.MemberID()).
		Msg("consumer group session setup completed")
	return nil
}

// Cleanup is called at the end of a session
func (c *CommandConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	c.logger.Info().
		Str("member_id", session.MemberID()).
		Msg("consumer group session cleanup completed")
	return nil
}

// ConsumeClaim processes messages from a partition
func (c *CommandConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		c.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received message from Kafka")

		if err := c.processMessage(session.Context(), msg); err != nil {
			c.logger.Error().
				Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("all retry attempts failed, skipping message")
		}

		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *CommandConsumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var cmd entities.Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		c.logger.Error().
			Err(err).
			Str("topic", msg.Topic).
			Msg("failed to unmarshal broadcast command")
		return nil // Don't retry unmarshal errors
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = c.handler.HandleCommand(ctx, cmd)
		if lastErr == nil || ctx.Err() != nil {
			return lastErr
		}

		c.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", maxRetries).
			Str("request_id", cmd.RequestID).
			Msg("handler failed to process command, retrying")
	}
	return lastErr
}

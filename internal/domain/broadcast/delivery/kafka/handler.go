package kafka

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
)

// CommandHandler applies start and stop commands received from Kafka
type CommandHandler struct {
	scheduler deps.Scheduler
	logger    zerolog.Logger
}

// NewCommandHandler creates a new broadcast command handler
func NewCommandHandler(scheduler deps.Scheduler, logger zerolog.Logger) deps.CommandHandler {
	return &CommandHandler{
		scheduler: scheduler,
		logger:    logger.With().Str("component", "broadcast_commands").Logger(),
	}
}

// HandleCommand starts or stops the job, rejected commands are logged and dropped
func (h *CommandHandler) HandleCommand(ctx context.Context, cmd entities.Command) error {
	log := h.logger.With().
		Str("request_id", cmd.RequestID).
		Str("action", string(cmd.Action)).
		Int64("user_id", cmd.UserID).
		Int64("account_id", cmd.AccountID).
		Logger()

	if cmd.UserID <= 0 || cmd.AccountID <= 0 {
		log.Warn().Msg("Dropping command with invalid ids")
		return nil
	}

	switch cmd.Action {
	case entities.CommandStart:
		err := h.scheduler.Start(ctx, cmd.UserID, cmd.AccountID)
		if err == nil {
			log.Info().Msg("Broadcast started by command")
			return nil
		}
		if code := pkgerrors.CodeOf(err); code != "" {
			// Business rejections are final, a retry would be rejected again
			log.Warn().Err(err).Str("code", code).Msg("Start command rejected")
			return nil
		}
		return fmt.Errorf("failed to start broadcast for account %d: %w", cmd.AccountID, err)

	case entities.CommandStop:
		h.scheduler.Stop(ctx, cmd.UserID, cmd.AccountID)
		log.Info().Msg("Broadcast stop requested by command")
		return nil

	default:
		log.Warn().Msg("Dropping command with unknown action")
		return nil
	}
}

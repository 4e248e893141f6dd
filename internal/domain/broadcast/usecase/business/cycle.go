package business

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	accdeps "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/governor"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/registry"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/selector"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

var errSendPanic = errors.New("send panicked")

// iterate runs one loop step: a window or cap wait, or a full cycle followed by the interval sleep
func (s *Scheduler) iterate(j *job) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("broadcast iteration panicked")
			s.metrics.RecordCycle(string(entities.OutcomeFailed), 0, 0)
			s.sleep(j, s.cfg.Interval)
		}
	}()

	settings, err := s.settings.Get(s.runCtx, j.key.AccountID)
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to load broadcast settings")
		s.sleep(j, s.cfg.Interval)
		return
	}
	s.applyDefaults(settings)

	now := s.clock.Now().In(s.cfg.Location)

	if wait := windowWait(settings, now); wait > 0 {
		j.logger.Debug().Dur("wait", wait).Msg("outside broadcast window")
		s.sleep(j, wait)
		return
	}

	day := utils.DayKey(now, s.cfg.Location)
	sent := settings.SentOn(day)
	j.update(func(j *job) { j.dailySent = sent })
	if sent >= settings.DailyCap {
		wait := utils.UntilMinuteOfDay(now, 0)
		j.logger.Info().Int("daily_sent", sent).Dur("wait", wait).Msg("daily cap reached")
		s.sleep(j, wait)
		return
	}

	if err := s.registry.Refresh(s.runCtx, j.key); err != nil {
		if errors.Is(err, registry.ErrLeaseLost) {
			j.logger.Error().Err(err).Msg("job lease taken over")
			j.requestStop(ReasonLeaseLost)
			return
		}
		j.logger.Warn().Err(err).Msg("failed to refresh job lease")
	}

	stats := s.runCycle(j, settings, day, sent)
	s.record(j, stats)

	if stats.Outcome == entities.OutcomeRevoked {
		return
	}
	s.sleep(j, settings.Interval)
}

// runCycle selects a message and sends it to every active destination within the daily budget
func (s *Scheduler) runCycle(j *job, settings *entities.Settings, day string, sent int) *entities.CycleStats {
	var cycle int
	j.update(func(j *job) {
		j.cycle++
		cycle = j.cycle
	})

	stats := &entities.CycleStats{
		UserID:    j.key.UserID,
		AccountID: j.key.AccountID,
		Cycle:     cycle,
		Source:    entities.SourceNone,
		StartedAt: s.clock.Now(),
	}
	finish := func(outcome entities.CycleOutcome) *entities.CycleStats {
		stats.Outcome = outcome
		stats.FinishedAt = s.clock.Now()
		return stats
	}

	dests, err := s.directory.ActiveGroups(s.runCtx, j.key.AccountID)
	if err != nil {
		return finish(s.cycleFailure(j, "failed to load groups", err))
	}
	if len(dests) == 0 {
		j.logger.Info().Msg("no groups to broadcast to")
		return finish(entities.OutcomeNoGroups)
	}

	content, err := s.content.Load(s.runCtx, j.key.AccountID)
	if err != nil {
		return finish(s.cycleFailure(j, "failed to load messages", err))
	}

	decision := selector.Select(settings, content, j.rng)
	stats.Source = decision.Source
	if decision.Skip() {
		j.logger.Info().Msg("nothing to send")
		return finish(entities.OutcomeNothing)
	}
	s.saveSelection(j, decision)

	msg := decision.Message
	if decision.Source == entities.SourceForward {
		msg, err = s.latestSaved(j)
		if err != nil {
			return finish(s.cycleFailure(j, "failed to read saved messages", err))
		}
		if msg.Empty() {
			j.logger.Info().Msg("saved messages are empty")
			return finish(entities.OutcomeNothing)
		}
	}

	budget := settings.DailyCap - sent
	gov := s.governors.For(j.key.AccountID)

	for i, dest := range dests {
		remaining := len(dests) - i
		if j.stopping() || stats.Sent >= budget {
			stats.Skipped += remaining
			break
		}

		if i > 0 {
			if err := s.clock.Sleep(j.waitCtx, s.pacing(j, settings)); err != nil {
				stats.Skipped += remaining
				break
			}
		}

		err := s.send(j, gov, dest, *msg)
		switch {
		case err == nil:
			stats.Sent++
			s.directory.ReportSuccess(s.runCtx, dest)
		case errors.Is(err, errSendPanic):
			stats.Skipped++
		case errors.Is(err, context.Canceled):
			stats.Skipped += remaining
		case domain.IsSessionRevoked(err):
			s.sessions.DetectRevocation(s.runCtx, j.key.AccountID, err)
			j.requestStop(ReasonSessionRevoked)
			stats.Failed++
			stats.Skipped += remaining - 1
			return finish(entities.OutcomeRevoked)
		default:
			stats.Failed++
			kind := domain.KindOf(err)
			s.metrics.RecordSendFailure(kind.String())
			if kind == domain.KindDestination {
				s.directory.ReportFailure(s.runCtx, dest, err)
			}
			j.logger.Warn().
				Err(err).
				Int64("group_id", dest.ID).
				Str("title", dest.Title).
				Msg("failed to send to group")
		}
		if errors.Is(err, context.Canceled) {
			break
		}
	}

	if stats.Sent > 0 {
		total, err := s.settings.IncrementDailySent(s.runCtx, j.key.AccountID, day, stats.Sent, settings.DailyCap)
		if err != nil {
			j.logger.Error().Err(err).Msg("failed to update daily counter")
		} else {
			j.update(func(j *job) { j.dailySent = total })
		}
	}

	return finish(entities.OutcomeCompleted)
}

// send delivers msg to one destination through the account governor.
// Retry waits end on stop, the send itself is bounded by the send timeout only.
func (s *Scheduler) send(j *job, gov *governor.Governor, dest *entities.Destination, msg domain.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Int64("group_id", dest.ID).
				Msg("send panicked")
			err = fmt.Errorf("%w: %v", errSendPanic, r)
		}
	}()

	outcome, err := gov.Execute(j.waitCtx, func(context.Context) error {
		sendCtx, cancel := context.WithTimeout(s.runCtx, s.cfg.SendTimeout)
		defer cancel()
		return s.sessions.WithClient(sendCtx, j.key.AccountID, func(ctx context.Context, client domain.ProtocolClient) error {
			return client.SendMessage(ctx, dest.Peer, msg)
		})
	}, governor.Options{
		MaxRetries: s.cfg.MaxRetries,
		Buffer:     s.cfg.RetryBuffer,
	})
	if err != nil {
		return err
	}
	if !outcome.Succeeded {
		return outcome.Err
	}
	return nil
}

func (s *Scheduler) latestSaved(j *job) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(s.runCtx, s.cfg.SendTimeout)
	defer cancel()

	var msg *domain.Message
	err := s.sessions.WithClient(ctx, j.key.AccountID, func(ctx context.Context, client domain.ProtocolClient) error {
		var err error
		msg, err = client.LatestSavedMessage(ctx)
		return err
	})
	return msg, err
}

func (s *Scheduler) saveSelection(j *job, decision entities.Decision) {
	switch decision.Source {
	case entities.SourcePool:
		if err := s.settings.SavePoolCursor(s.runCtx, j.key.AccountID, decision.NextPoolCursor); err != nil {
			j.logger.Warn().Err(err).Msg("failed to save pool cursor")
		}
	case entities.SourceAB:
		if err := s.settings.SaveLastVariant(s.runCtx, j.key.AccountID, decision.Variant); err != nil {
			j.logger.Warn().Err(err).Msg("failed to save last variant")
		}
	}
}

func (s *Scheduler) cycleFailure(j *job, msg string, err error) entities.CycleOutcome {
	if domain.IsSessionRevoked(err) {
		s.sessions.DetectRevocation(s.runCtx, j.key.AccountID, err)
		j.requestStop(ReasonSessionRevoked)
		return entities.OutcomeRevoked
	}
	j.logger.Error().Err(err).Msg(msg)
	return entities.OutcomeFailed
}

// record persists and publishes the cycle summary
func (s *Scheduler) record(j *job, stats *entities.CycleStats) {
	j.update(func(j *job) { j.lastCycleAt = stats.FinishedAt })
	s.metrics.RecordCycle(string(stats.Outcome), stats.Sent, stats.Duration().Seconds())

	if err := s.cycles.Save(s.runCtx, stats); err != nil {
		j.logger.Warn().Err(err).Msg("failed to save cycle stats")
	}

	j.logger.Info().
		Int("cycle", stats.Cycle).
		Str("source", string(stats.Source)).
		Str("outcome", string(stats.Outcome)).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Dur("duration", stats.Duration()).
		Msg("broadcast cycle finished")

	if stats.Outcome == entities.OutcomeCompleted || stats.Outcome == entities.OutcomeRevoked {
		s.notifier.Notify(entities.Event{
			Type:      entities.EventCycleSummary,
			UserID:    j.key.UserID,
			AccountID: j.key.AccountID,
			Stats:     stats,
			At:        stats.FinishedAt,
		})
	}
}

// pacing draws the delay before the next destination from [min, max]
func (s *Scheduler) pacing(j *job, settings *entities.Settings) time.Duration {
	spread := settings.GroupDelayMax - settings.GroupDelayMin
	if spread <= 0 {
		return settings.GroupDelayMin
	}
	return settings.GroupDelayMin + time.Duration(j.rng.Int63n(int64(spread)+1))
}

func (s *Scheduler) applyDefaults(settings *entities.Settings) {
	if settings.Interval <= 0 {
		settings.Interval = s.cfg.Interval
	}
	if settings.GroupDelayMin <= 0 {
		settings.GroupDelayMin = s.cfg.GroupDelayMin
	}
	if settings.GroupDelayMax <= 0 {
		settings.GroupDelayMax = s.cfg.GroupDelayMax
	}
	if settings.GroupDelayMax < settings.GroupDelayMin {
		settings.GroupDelayMax = settings.GroupDelayMin
	}
	if settings.DailyCap <= 0 {
		settings.DailyCap = s.cfg.DailyCap
	}
}

// windowWait returns how long to wait until quiet hours end or the schedule opens, 0 when sending is allowed
func windowWait(settings *entities.Settings, now time.Time) time.Duration {
	minute := utils.MinuteOfDay(now)
	if settings.QuietHours.Contains(minute) {
		return utils.UntilMinuteOfDay(now, settings.QuietHours.End)
	}
	if settings.Schedule.Enabled() && !settings.Schedule.Contains(minute) {
		return utils.UntilMinuteOfDay(now, settings.Schedule.Start)
	}
	return 0
}

var _ accdeps.LifecycleListener = (*Scheduler)(nil)

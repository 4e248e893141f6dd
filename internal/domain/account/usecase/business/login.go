package business

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	accerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// BeginLogin requests a verification code, replacing any login the user had in flight
func (m *SessionManager) BeginLogin(ctx context.Context, userID int64, phone string) (*entities.LoginResult, error) {
	phone = utils.NormalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		m.metrics.RecordLoginStep("phone", "invalid_input")
		return nil, accerrors.ErrInvalidPhone
	}

	unlock := m.lockUser(userID)
	defer unlock()

	log := m.logger.With().Int64("user_id", userID).Str("phone", utils.MaskPhoneNumber(phone)).Logger()

	remote, err := m.gateway.SendCode(ctx, phone)
	if err != nil {
		m.metrics.RecordLoginStep("phone", domain.KindOf(err).String())
		log.Warn().Err(err).Msg("failed to request verification code")
		return nil, mapRemoteError(err)
	}

	now := m.clock.Now()
	m.logins.Put(&entities.AuthSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Phone:        phone,
		CreatedAt:    now,
		LastActivity: now,
		Remote:       remote,
	})

	m.metrics.RecordLoginStep("phone", "ok")
	log.Info().Msg("verification code requested")
	return &entities.LoginResult{Step: entities.StepCodeSent}, nil
}

// SubmitCode verifies the code of the pending login
func (m *SessionManager) SubmitCode(ctx context.Context, userID int64, code string) (*entities.LoginResult, error) {
	unlock := m.lockUser(userID)
	defer unlock()

	session, ok := m.logins.Get(userID)
	if !ok {
		return nil, accerrors.ErrNoPendingAuth
	}
	m.touch(session)

	if session.PasswordRequired {
		return nil, accerrors.ErrPasswordExpected
	}

	code = normalizeCode(code)
	if !m.validCode(code) {
		m.metrics.RecordLoginStep("code", "invalid_input")
		return nil, accerrors.ErrInvalidCodeFormat
	}

	profile, err := session.Remote.SignIn(ctx, code)
	switch domain.KindOf(err) {
	case domain.KindUnknown:
		if err == nil {
			m.metrics.RecordLoginStep("code", "ok")
			return m.finalize(ctx, session, profile)
		}
	case domain.KindPasswordRequired:
		session.PasswordRequired = true
		m.touch(session)
		m.metrics.RecordLoginStep("code", "password_required")
		return &entities.LoginResult{Step: entities.StepPasswordRequired}, nil
	case domain.KindInvalidCode, domain.KindFloodWait, domain.KindPeerFlood, domain.KindNetwork:
		// Re-enterable, the user may submit again
		m.touch(session)
		m.metrics.RecordLoginStep("code", domain.KindOf(err).String())
		return nil, mapRemoteError(err)
	}

	m.metrics.RecordLoginStep("code", domain.KindOf(err).String())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	m.logins.Delete(userID)
	if domain.KindOf(err) == domain.KindCodeExpired {
		return nil, accerrors.ErrCodeExpired
	}
	m.logger.Warn().Err(err).Int64("user_id", userID).Msg("sign in failed")
	return nil, mapRemoteError(err)
}

// SubmitPassword verifies the 2FA password of the pending login
func (m *SessionManager) SubmitPassword(ctx context.Context, userID int64, password string) (*entities.LoginResult, error) {
	if password == "" {
		return nil, accerrors.ErrEmptyPassword
	}

	unlock := m.lockUser(userID)
	defer unlock()

	session, ok := m.logins.Get(userID)
	if !ok {
		return nil, accerrors.ErrNoPendingAuth
	}
	m.touch(session)

	if !session.PasswordRequired {
		return nil, accerrors.ErrCodeExpected
	}

	now := m.clock.Now()
	if remaining := session.CooldownRemaining(now); remaining > 0 {
		m.metrics.RecordLoginStep("password", "cooldown")
		return nil, accerrors.Cooldown(remaining)
	}
	if session.FailedAttempts >= m.cfg.MaxPasswordAttempts {
		// Cooldown elapsed
		session.FailedAttempts = 0
	}

	profile, err := session.Remote.CheckPassword(ctx, password)
	if err == nil {
		m.metrics.RecordLoginStep("password", "ok")
		return m.finalize(ctx, session, profile)
	}

	m.metrics.RecordLoginStep("password", domain.KindOf(err).String())
	switch domain.KindOf(err) {
	case domain.KindInvalidPassword:
		session.FailedAttempts++
		if session.FailedAttempts >= m.cfg.MaxPasswordAttempts {
			session.CooldownUntil = now.Add(m.cfg.PasswordCooldown)
			m.logger.Warn().Int64("user_id", userID).Msg("password attempts exhausted, cooldown started")
			return nil, accerrors.Cooldown(m.cfg.PasswordCooldown)
		}
		return nil, accerrors.IncorrectPassword(m.cfg.MaxPasswordAttempts - session.FailedAttempts)
	case domain.KindFloodWait, domain.KindPeerFlood, domain.KindNetwork:
		return nil, mapRemoteError(err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	m.logins.Delete(userID)
	m.logger.Warn().Err(err).Int64("user_id", userID).Msg("password check failed")
	return nil, mapRemoteError(err)
}

// CancelLogin discards the pending login, it is a no-op when none exists
func (m *SessionManager) CancelLogin(ctx context.Context, userID int64) {
	unlock := m.lockUser(userID)
	defer unlock()

	if _, ok := m.logins.Get(userID); ok {
		m.logins.Delete(userID)
		m.logger.Info().Int64("user_id", userID).Msg("login cancelled")
	}
}

// LoginState returns the login state machine position of a user
func (m *SessionManager) LoginState(userID int64) entities.LoginState {
	// Login steps mutate the session under the same lock
	unlock := m.lockUser(userID)
	defer unlock()

	session, ok := m.logins.Get(userID)
	if !ok {
		return entities.StateIdle
	}
	return session.State(m.clock.Now())
}

// finalize persists the authorized session and links the account
func (m *SessionManager) finalize(ctx context.Context, session *entities.AuthSession, profile *domain.Profile) (*entities.LoginResult, error) {
	log := m.logger.With().Int64("user_id", session.UserID).Str("phone", utils.MaskPhoneNumber(session.Phone)).Logger()

	data, err := session.Remote.SessionData(ctx)
	if err != nil {
		m.logins.Delete(session.UserID)
		return nil, fmt.Errorf("failed to export session: %w", err)
	}

	existing, err := m.accounts.FindByPhone(ctx, session.Phone)
	switch {
	case err == nil && existing.UserID != session.UserID:
		m.logins.Delete(session.UserID)
		return nil, accerrors.ErrLinkedElsewhere
	case err != nil && !errors.Is(err, accerrors.ErrAccountNotFound):
		return nil, err
	}

	displayName := ""
	if profile != nil {
		displayName = profile.DisplayName()
	}

	account, err := m.accounts.Upsert(ctx, &entities.Account{
		UserID:      session.UserID,
		Phone:       session.Phone,
		DisplayName: displayName,
		IsProtected: m.cfg.ProtectedPhone != "" && session.Phone == m.cfg.ProtectedPhone,
	})
	if err != nil {
		return nil, err
	}

	if err := m.vault.Store(ctx, account.ID, data); err != nil {
		// Without a session the account cannot connect, keep it re-linkable
		if revokeErr := m.accounts.SetRevoked(ctx, account.ID, true); revokeErr != nil {
			log.Error().Err(revokeErr).Msg("failed to mark account without session")
		}
		return nil, err
	}

	// A re-link replaces the credential, the old connection must not be reused
	m.dropConnection(account.ID)
	m.connection(account.ID)

	if _, err := m.ActiveAccount(ctx, session.UserID); errors.Is(err, accerrors.ErrAccountNotFound) {
		if err := m.accounts.SetActive(ctx, session.UserID, account.ID); err != nil {
			log.Error().Err(err).Msg("failed to activate first account")
		} else {
			account.IsActive = true
		}
	}

	m.logins.Delete(session.UserID)
	m.metrics.RecordAccountLinked()
	m.refreshGauges()

	log.Info().Int64("account_id", account.ID).Msg("account linked")
	return &entities.LoginResult{Step: entities.StepLinked, Account: account}, nil
}

func (m *SessionManager) touch(session *entities.AuthSession) {
	session.LastActivity = m.clock.Now()
	m.logins.Touch(session.UserID)
}

// validCode checks a fixed-length numeric code
func (m *SessionManager) validCode(code string) bool {
	if len(code) != m.cfg.CodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// normalizeCode drops separators users type to keep the code from being recognized in chats
func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\n', '.':
			return -1
		}
		return r
	}, code)
}

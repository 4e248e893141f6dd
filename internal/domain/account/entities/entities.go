package entities

import (
	"context"
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// Account is a linked user account the service may act on behalf of
type Account struct {
	ID          int64
	UserID      int64
	Phone       string
	DisplayName string
	IsActive    bool
	IsProtected bool
	Revoked     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LoginState is the per-user login state machine position
type LoginState string

const (
	StateIdle             LoginState = "idle"
	StateAwaitingCode     LoginState = "awaiting_code"
	StateAwaitingPassword LoginState = "awaiting_password"
	StateCooldownLocked   LoginState = "cooldown_locked"
)

// LoginStep is the observable outcome of a successful login call
type LoginStep string

const (
	StepCodeSent         LoginStep = "code_sent"
	StepPasswordRequired LoginStep = "password_required"
	StepLinked           LoginStep = "linked"
)

// LoginResult is returned by every login operation that did not fail
type LoginResult struct {
	Step    LoginStep
	Account *Account
}

// RemoteLogin is a login in progress on the protocol side
type RemoteLogin interface {
	// SignIn submits the code, a KindPasswordRequired error means 2FA is enabled
	SignIn(ctx context.Context, code string) (*domain.Profile, error)
	CheckPassword(ctx context.Context, password string) (*domain.Profile, error)
	// SessionData exports the authorized session to be persisted
	SessionData(ctx context.Context) ([]byte, error)
	Close()
}

// AuthSession is the transient login state of one user
type AuthSession struct {
	ID               string
	UserID           int64
	Phone            string
	PasswordRequired bool
	FailedAttempts   int
	CooldownUntil    time.Time
	CreatedAt        time.Time
	LastActivity     time.Time

	Remote RemoteLogin
}

// State derives the state machine position at now
func (s *AuthSession) State(now time.Time) LoginState {
	if s == nil {
		return StateIdle
	}
	if now.Before(s.CooldownUntil) {
		return StateCooldownLocked
	}
	if s.PasswordRequired {
		return StateAwaitingPassword
	}
	return StateAwaitingCode
}

// CooldownRemaining returns how long password submissions stay locked
func (s *AuthSession) CooldownRemaining(now time.Time) time.Duration {
	if s == nil || !now.Before(s.CooldownUntil) {
		return 0
	}
	return s.CooldownUntil.Sub(now)
}

package errors

import (
	"time"

	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
)

var (
	ErrInvalidPhone      = pkgerrors.WithCode(pkgerrors.CodeInvalidInput, pkgerrors.NewValidationError("invalid phone number"))
	ErrInvalidCodeFormat = pkgerrors.WithCode(pkgerrors.CodeInvalidInput, pkgerrors.NewValidationError("invalid verification code format"))
	ErrEmptyPassword     = pkgerrors.WithCode(pkgerrors.CodeInvalidInput, pkgerrors.NewValidationError("password is required"))
	ErrNoPendingAuth     = pkgerrors.WithCode(pkgerrors.CodeNoPendingAuth, pkgerrors.NewNotFoundError("no pending authentication"))
	ErrCodeExpired       = pkgerrors.WithCode(pkgerrors.CodeCodeExpired, pkgerrors.NewValidationError("verification code expired, start over"))
	ErrIncorrectCode     = pkgerrors.WithCode(pkgerrors.CodeAuthFailed, pkgerrors.NewUnauthorizedError("incorrect verification code"))
	ErrPasswordExpected  = pkgerrors.WithCode(pkgerrors.CodePasswordRequired, pkgerrors.NewConflictError("2fa password expected, not a code"))
	ErrCodeExpected      = pkgerrors.WithCode(pkgerrors.CodeInvalidState, pkgerrors.NewConflictError("verification code expected, not a password"))
	ErrAccountNotFound   = pkgerrors.WithCode(pkgerrors.CodeNoAccount, pkgerrors.NewNotFoundError("account not found"))
	ErrNotOwned          = pkgerrors.WithCode(pkgerrors.CodeNotOwned, pkgerrors.NewPermissionError("account is not owned by user"))
	ErrProtectedAccount  = pkgerrors.WithCode(pkgerrors.CodeProtected, pkgerrors.NewPermissionError("protected account cannot be deleted"))
	ErrSessionRevoked    = pkgerrors.WithCode(pkgerrors.CodeSessionRevoked, pkgerrors.NewUnauthorizedError("session revoked, link the account again"))
	ErrConnection        = pkgerrors.NewServiceUnavailableError("failed to connect to telegram")
	ErrLinkedElsewhere   = pkgerrors.WithCode(pkgerrors.CodeNotOwned, pkgerrors.NewConflictError("phone is linked by another user"))
)

// IncorrectPassword reports a wrong 2FA password with the attempts left before cooldown
func IncorrectPassword(attemptsLeft int) error {
	return pkgerrors.WithCode(pkgerrors.CodeAuthFailed,
		pkgerrors.NewUnauthorizedErrorf("incorrect password, %d attempts left", attemptsLeft))
}

// Cooldown reports a password lock with its remaining duration
func Cooldown(remaining time.Duration) error {
	return pkgerrors.WithCode(pkgerrors.CodeCooldown,
		pkgerrors.NewTooManyRequestsErrorf(remaining, "too many incorrect passwords, retry in %s", remaining.Round(time.Second)))
}

// RateLimited reports a remote flood-wait surfaced to the caller
func RateLimited(retryAfter time.Duration) error {
	return pkgerrors.WithCode(pkgerrors.CodeRateLimited,
		pkgerrors.NewTooManyRequestsErrorf(retryAfter, "rate limited by telegram, retry in %s", retryAfter.Round(time.Second)))
}

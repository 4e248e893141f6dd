package errors

import (
	"time"

	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
)

var (
	ErrAlreadyRunning = pkgerrors.WithCode(pkgerrors.CodeAlreadyRunning, pkgerrors.NewConflictError("broadcast is already running for this account"))
	ErrTagsRequired   = pkgerrors.WithCode(pkgerrors.CodeTagsRequired, pkgerrors.NewPermissionError("account profile lacks the required tags"))
	ErrNoAccount      = pkgerrors.WithCode(pkgerrors.CodeNoAccount, pkgerrors.NewNotFoundError("account not found"))
	ErrSessionRevoked = pkgerrors.WithCode(pkgerrors.CodeSessionRevoked, pkgerrors.NewUnauthorizedError("session revoked, link the account again"))
)

// RateLimited reports a flood-wait that outlived the governor retries
func RateLimited(retryAfter time.Duration) error {
	return pkgerrors.WithCode(pkgerrors.CodeRateLimited,
		pkgerrors.NewTooManyRequestsErrorf(retryAfter, "rate limited by telegram, retry in %s", retryAfter.Round(time.Second)))
}

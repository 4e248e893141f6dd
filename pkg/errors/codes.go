package errors

import "errors"

// Machine-checkable result codes surfaced to callers
const (
	CodeAlreadyRunning   = "ALREADY_RUNNING"
	CodeTagsRequired     = "TAGS_REQUIRED"
	CodeNoAccount        = "NO_ACCOUNT"
	CodeSessionRevoked   = "SESSION_REVOKED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeNoPendingAuth    = "NO_PENDING_AUTH"
	CodeCodeExpired      = "CODE_EXPIRED"
	CodePasswordRequired = "PASSWORD_REQUIRED"
	CodeInvalidState     = "INVALID_STATE"
	CodeCooldown         = "COOLDOWN"
	CodeNotOwned         = "NOT_OWNED"
	CodeProtected        = "PROTECTED_ACCOUNT"
)

// CodedError attaches a result code to an error
type CodedError struct {
	code string
	err  error
}

// WithCode wraps err with a result code
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{code: code, err: err}
}

func (e *CodedError) Error() string {
	return e.err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.err
}

// Code returns the attached result code
func (e *CodedError) Code() string {
	return e.code
}

// CodeOf returns the outermost result code of err, or an empty string
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return ""
}

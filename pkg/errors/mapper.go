package errors

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const internalMessage = "internal server error"

// Mapper turns service errors into HTTP status codes and client-safe messages
type Mapper struct {
	logger zerolog.Logger
}

// NewMapper creates a new error mapper
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger.With().Str("component", "error_mapper").Logger()}
}

// MapErrorToHTTP returns the status of the innermost classified error
//
// Unclassified and internal errors are logged and their text is hidden from
// the client.
func (m *Mapper) MapErrorToHTTP(err error) (int, string) {
	if err == nil {
		return fasthttp.StatusOK, ""
	}

	var classified statusError
	if !errors.As(err, &classified) {
		m.logger.Error().Err(err).Str("code", CodeOf(err)).Msg("unclassified error")
		return fasthttp.StatusInternalServerError, internalMessage
	}

	status := classified.status()
	if status >= fasthttp.StatusInternalServerError && status != fasthttp.StatusServiceUnavailable {
		m.logger.Error().Err(err).Msg("internal error")
		return status, internalMessage
	}
	return status, classified.Error()
}

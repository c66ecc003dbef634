package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"iptvprofit/internal/core"
	"iptvprofit/internal/log"
	"iptvprofit/internal/services"
)

// sanitizeInput trims s and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case core.IsValidation(err), errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text shown to users for err. Internal details stay
// in the logs.
func publicMessage(err error) string {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, errInvalidID):
		return "invalid id"
	case errors.Is(err, core.ErrNotFound):
		return "record not found"
	case statusFor(err) == http.StatusServiceUnavailable:
		return "the ledger is temporarily unavailable, please retry"
	default:
		return "internal error"
	}
}

// logServerError logs a failure the client cannot fix, classified by type.
func logServerError(r *http.Request, msg, op string, err error) {
	ctx := r.Context()
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, msg, err, log.ComponentHTTP, op,
		log.NewFields().WithErrorType(services.Outcome(err)))
}

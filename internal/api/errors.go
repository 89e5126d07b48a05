package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/ddpm/internal/diffusion"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps engine and request errors to an HTTP status and an error
// type string.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, diffusion.ErrConfiguration),
		errors.Is(err, diffusion.ErrShapeMismatch):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, diffusion.ErrContractViolation):
		return http.StatusUnprocessableEntity, "unsupported_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

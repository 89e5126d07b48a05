package diffusion

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ddpm/internal/schedule"
)

var (
	// ErrConfiguration covers bad schedule parameters, unknown modes and
	// timesteps outside [0, T).
	ErrConfiguration = schedule.ErrConfiguration
	// ErrShapeMismatch covers sample, prediction, timestep and label shapes
	// that cannot be broadcast together.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrContractViolation covers denoisers that break their declared
	// contract: wrong output shape or a parameterization other than the one
	// the caller asked for.
	ErrContractViolation = errors.New("contract violation")
)

type engineError struct {
	kind error
	msg  string
}

func (e engineError) Error() string { return e.kind.Error() + ": " + e.msg }

func (e engineError) Unwrap() error { return e.kind }

func configErrorf(format string, args ...any) error {
	return engineError{kind: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

func shapeErrorf(format string, args ...any) error {
	return engineError{kind: ErrShapeMismatch, msg: fmt.Sprintf(format, args...)}
}

func contractErrorf(format string, args ...any) error {
	return engineError{kind: ErrContractViolation, msg: fmt.Sprintf(format, args...)}
}

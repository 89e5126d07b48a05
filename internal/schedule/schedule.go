// Package schedule builds the fixed DDPM variance schedule.
//
// A Schedule holds β_t, α_t = 1-β_t and ᾱ_t = Π_{s≤t} α_s for t in [0, T).
// It is immutable after construction and safe for concurrent readers.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ErrConfiguration is wrapped by every error caused by invalid schedule
// parameters or out-of-range timesteps.
var ErrConfiguration = errors.New("configuration error")

// Mode selects how β is interpolated between β_min and β_max.
type Mode string

const (
	Linear    Mode = "linear"
	Quadratic Mode = "quad"
)

// ParseMode accepts "linear", "quad" and "quadratic".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear":
		return Linear, nil
	case "quad", "quadratic":
		return Quadratic, nil
	default:
		return "", fmt.Errorf("%w: unknown schedule mode %q", ErrConfiguration, s)
	}
}

type Schedule struct {
	mode          Mode
	betaMin       float64
	betaMax       float64
	betas         []float64
	alphas        []float64
	alphasCumprod []float64
	timesteps     []int
}

// New builds a schedule of T steps.
func New(T int, betaMin, betaMax float64, mode Mode) (*Schedule, error) {
	if T <= 0 {
		return nil, fmt.Errorf("%w: timestep count must be positive, got %d", ErrConfiguration, T)
	}
	if !(betaMin > 0 && betaMin < betaMax && betaMax < 1) {
		return nil, fmt.Errorf("%w: need 0 < beta_min < beta_max < 1, got beta_min=%g beta_max=%g",
			ErrConfiguration, betaMin, betaMax)
	}

	betas := make([]float64, T)
	switch mode {
	case Linear:
		span(betas, betaMin, betaMax)
	case Quadratic:
		span(betas, math.Sqrt(betaMin), math.Sqrt(betaMax))
		floats.Mul(betas, betas)
	default:
		return nil, fmt.Errorf("%w: unknown schedule mode %q", ErrConfiguration, mode)
	}

	alphas := make([]float64, T)
	for i, b := range betas {
		alphas[i] = 1 - b
	}
	cumprod := floats.CumProd(make([]float64, T), alphas)

	timesteps := make([]int, T)
	for i := range timesteps {
		timesteps[i] = T - 1 - i
	}

	return &Schedule{
		mode:          mode,
		betaMin:       betaMin,
		betaMax:       betaMax,
		betas:         betas,
		alphas:        alphas,
		alphasCumprod: cumprod,
		timesteps:     timesteps,
	}, nil
}

// span is floats.Span that also accepts a single element (β_min).
func span(dst []float64, lo, hi float64) {
	if len(dst) == 1 {
		dst[0] = lo
		return
	}
	floats.Span(dst, lo, hi)
}

func (s *Schedule) Len() int            { return len(s.betas) }
func (s *Schedule) Mode() Mode          { return s.mode }
func (s *Schedule) BetaMin() float64    { return s.betaMin }
func (s *Schedule) BetaMax() float64    { return s.betaMax }
func (s *Schedule) Beta(t int) float64  { return s.betas[t] }
func (s *Schedule) Alpha(t int) float64 { return s.alphas[t] }

// AlphaBar returns ᾱ_t. AlphaBar(-1) is 1: the "previous state" of t=0 is
// clean data.
func (s *Schedule) AlphaBar(t int) float64 {
	if t < 0 {
		return 1
	}
	return s.alphasCumprod[t]
}

// Betas returns a copy of β.
func (s *Schedule) Betas() []float64 { return append([]float64(nil), s.betas...) }

// Alphas returns a copy of α.
func (s *Schedule) Alphas() []float64 { return append([]float64(nil), s.alphas...) }

// AlphasCumprod returns a copy of ᾱ.
func (s *Schedule) AlphasCumprod() []float64 { return append([]float64(nil), s.alphasCumprod...) }

// Timesteps returns the reverse-loop order [T-1, ..., 0].
func (s *Schedule) Timesteps() []int { return append([]int(nil), s.timesteps...) }

// Check returns an error wrapping ErrConfiguration unless 0 <= t < T.
func (s *Schedule) Check(t int) error {
	if t < 0 || t >= len(s.betas) {
		return fmt.Errorf("%w: timestep %d outside [0, %d)", ErrConfiguration, t, len(s.betas))
	}
	return nil
}

// Gather returns f(t_i) for every timestep, used to build per-example
// coefficients that broadcast over the non-batch dimensions of a sample.
func Gather(ts []int, f func(int) float64) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = f(t)
	}
	return out
}

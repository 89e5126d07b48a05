package denoiser

import (
	"fmt"

	"github.com/samcharles93/ddpm/internal/diffusion"
	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// Parametric is a denoiser whose weights can be saved and restored.
type Parametric interface {
	diffusion.Denoiser
	Kind() string
	Dims() int
	Parameters() map[string]*tensor.Tensor
	SetParameters(map[string]*tensor.Tensor) error
}

// New builds an untrained denoiser of the given kind.
func New(kind string, sched *schedule.Schedule, target diffusion.Parameterization, dims int) (Parametric, error) {
	switch kind {
	case KindGaussian:
		return NewGaussian(sched, target, dims)
	default:
		return nil, fmt.Errorf("%w: unknown denoiser kind %q", diffusion.ErrConfiguration, kind)
	}
}

var _ Parametric = (*Gaussian)(nil)

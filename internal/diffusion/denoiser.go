package diffusion

import (
	"context"

	"github.com/samcharles93/ddpm/internal/tensor"
)

// Denoiser is the learned reverse-process function. Predict must return a
// tensor with the same shape as xt holding the quantity named by Target.
//
// labels is nil for unconditional models. For class-conditional models it
// has one entry per batch row and label 0 is the null condition used by
// classifier-free guidance.
type Denoiser interface {
	Target() Parameterization
	Predict(ctx context.Context, xt *tensor.Tensor, t Timesteps, labels []int) (*tensor.Tensor, error)
}

// PredictFunc is the function form of Denoiser.Predict.
type PredictFunc func(ctx context.Context, xt *tensor.Tensor, t Timesteps, labels []int) (*tensor.Tensor, error)

type funcDenoiser struct {
	target Parameterization
	fn     PredictFunc
}

// NewFunc wraps fn as a Denoiser that declares the given target.
func NewFunc(target Parameterization, fn PredictFunc) Denoiser {
	return funcDenoiser{target: target, fn: fn}
}

func (d funcDenoiser) Target() Parameterization { return d.target }

func (d funcDenoiser) Predict(ctx context.Context, xt *tensor.Tensor, t Timesteps, labels []int) (*tensor.Tensor, error) {
	return d.fn(ctx, xt, t, labels)
}

package diffusion

import (
	"context"

	"github.com/samcharles93/ddpm/internal/tensor"
)

// LossResult is one evaluation of a training objective. The tensors let an
// external optimizer backpropagate through the denoiser.
type LossResult struct {
	// Value is the mean squared error between Prediction and Target.
	Value      float64
	Prediction *tensor.Tensor
	Target     *tensor.Tensor
	Noisy      *tensor.Tensor
	Noise      *tensor.Tensor
	Timesteps  []int
}

// Gradient returns ∂Value/∂Prediction = 2(Prediction-Target)/N.
func (r *LossResult) Gradient() *tensor.Tensor {
	return tensor.Scale(2/float64(r.Prediction.Len()), tensor.Sub(r.Prediction, r.Target))
}

// Loss evaluates the objective matching the engine's parameterization.
func (e *Engine) Loss(ctx context.Context, x0 *tensor.Tensor, labels []int) (*LossResult, error) {
	return e.loss(ctx, e.cfg.Parameterization, x0, labels)
}

// LossEps is the simplified noise-matching objective: t ~ U[0, T),
// ‖ε - ε̂(x_t, t)‖².
func (e *Engine) LossEps(ctx context.Context, x0 *tensor.Tensor, labels []int) (*LossResult, error) {
	return e.loss(ctx, Eps, x0, labels)
}

// LossMu matches the denoiser's output to the true posterior mean
// μ(x_t, x_0), t ~ U[1, T).
func (e *Engine) LossMu(ctx context.Context, x0 *tensor.Tensor, labels []int) (*LossResult, error) {
	return e.loss(ctx, Mu, x0, labels)
}

// LossX0 matches the denoiser's output to x_0, t ~ U[1, T).
func (e *Engine) LossX0(ctx context.Context, x0 *tensor.Tensor, labels []int) (*LossResult, error) {
	return e.loss(ctx, X0, x0, labels)
}

func (e *Engine) loss(ctx context.Context, p Parameterization, x0 *tensor.Tensor, labels []int) (*LossResult, error) {
	if err := e.checkTarget(p); err != nil {
		return nil, err
	}
	if err := checkSample(x0); err != nil {
		return nil, err
	}
	if err := checkLabels(labels, x0.Batch()); err != nil {
		return nil, err
	}
	lo := p.MinTrainTimestep()
	T := e.sched.Len()
	if lo >= T {
		return nil, configErrorf("%s objective needs at least %d timesteps, schedule has %d", p, lo+1, T)
	}
	ts := make([]int, x0.Batch())
	for i := range ts {
		ts[i] = lo + e.rng.Intn(T-lo)
	}
	noise := tensor.RandnLike(e.rng, x0)
	return e.lossAt(ctx, p, x0, ts, noise, labels)
}

// lossAt evaluates objective p at fixed timesteps and noise.
func (e *Engine) lossAt(ctx context.Context, p Parameterization, x0 *tensor.Tensor, ts []int, noise *tensor.Tensor, labels []int) (*LossResult, error) {
	xt := e.addNoise(x0, ts, noise)
	pred, err := e.call(ctx, xt, PerExample(ts...), labels)
	if err != nil {
		return nil, err
	}

	var target *tensor.Tensor
	switch p {
	case Eps:
		target = noise
	case Mu:
		wxt := make([]float64, len(ts))
		wx0 := make([]float64, len(ts))
		for i, t := range ts {
			wxt[i], wx0[i] = PosteriorCoefficients(e.sched, t)
		}
		target = tensor.Combine(wxt, xt, wx0, x0)
	case X0:
		target = x0
	default:
		return nil, configErrorf("unknown parameterization %d", int(p))
	}

	return &LossResult{
		Value:      tensor.MSE(pred, target),
		Prediction: pred,
		Target:     target,
		Noisy:      xt,
		Noise:      noise,
		Timesteps:  ts,
	}, nil
}

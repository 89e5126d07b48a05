package diffusion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/samcharles93/ddpm/internal/logger"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// DDIMPair is one DDIM transition τ_i -> τ_{i-1}. Prev is -1 for the final
// transition to clean data.
type DDIMPair struct {
	T    int
	Prev int
}

// DDIMTimesteps selects n timesteps with stride T/n in descending order,
// each paired with its predecessor in the subsequence.
func (e *Engine) DDIMTimesteps(n int) ([]DDIMPair, error) {
	T := e.sched.Len()
	if n <= 0 || n > T {
		return nil, configErrorf("num inference steps must be in [1, %d], got %d", T, n)
	}
	stride := T / n
	pairs := make([]DDIMPair, n)
	for i := range pairs {
		t := (n - 1 - i) * stride
		prev := t - stride
		if i == n-1 {
			prev = -1
		}
		pairs[i] = DDIMPair{T: t, Prev: prev}
	}
	return pairs, nil
}

// DDIMStep performs x_{τ_i} -> x_{τ_{i-1}} from a noise prediction:
//
//	x̂0  = (x_t - √(1-ᾱ_t)·ε̂) / √ᾱ_t
//	σ²  = η²·(1-ᾱ_prev)/(1-ᾱ_t)·β_t
//	out = √ᾱ_prev·x̂0 + √(1-ᾱ_prev-σ²)·ε̂ + σ·z
//
// tPrev = -1 means the previous state is clean data: ᾱ_prev = 1 and no noise
// is added. eta=0 is deterministic, eta=1 matches DDPM stochasticity.
func (e *Engine) DDIMStep(xt *tensor.Tensor, t, tPrev int, epsHat *tensor.Tensor, eta float64) (*tensor.Tensor, error) {
	if _, err := e.timesteps(xt, Scalar(t)); err != nil {
		return nil, err
	}
	if tPrev < -1 || tPrev >= t {
		return nil, configErrorf("previous timestep %d must be in [-1, %d)", tPrev, t)
	}
	if err := checkEta(eta); err != nil {
		return nil, err
	}
	if err := checkLike("eps prediction", xt, epsHat); err != nil {
		return nil, err
	}
	if err := e.checkTarget(Eps); err != nil {
		return nil, err
	}

	sigma2, dir, err := e.ddimNoise(t, tPrev, eta)
	if err != nil {
		return nil, err
	}
	barPrev := e.sched.AlphaBar(tPrev)
	x0Hat := predictX0(xt, e.sched.AlphaBar(t), epsHat)
	out := tensor.AddScaled(tensor.Scale(math.Sqrt(barPrev), x0Hat), math.Sqrt(dir), epsHat)
	if tPrev >= 0 {
		out = tensor.AddScaled(out, math.Sqrt(sigma2), tensor.RandnLike(e.rng, xt))
	}
	return out, nil
}

func checkEta(eta float64) error {
	if eta < 0 || math.IsNaN(eta) || math.IsInf(eta, 0) {
		return configErrorf("eta must be a non-negative number, got %g", eta)
	}
	return nil
}

// ddimNoise returns σ² and the weight 1-ᾱ_prev-σ² of the ε direction for the
// step t -> tPrev. eta above 1 is allowed until the direction weight turns
// negative.
func (e *Engine) ddimNoise(t, tPrev int, eta float64) (sigma2, dir float64, err error) {
	barT := e.sched.AlphaBar(t)
	barPrev := e.sched.AlphaBar(tPrev)
	if tPrev >= 0 {
		sigma2 = eta * eta * (1 - barPrev) / (1 - barT) * e.sched.Beta(t)
	}
	dir = 1 - barPrev - sigma2
	if dir < 0 {
		if dir > -1e-12 {
			return sigma2, 0, nil
		}
		return 0, 0, configErrorf("eta %g too large for step t=%d -> %d", eta, t, tPrev)
	}
	return sigma2, dir, nil
}

func predictX0(xt *tensor.Tensor, barT float64, epsHat *tensor.Tensor) *tensor.Tensor {
	return tensor.Scale(1/math.Sqrt(barT), tensor.AddScaled(xt, -math.Sqrt(1-barT), epsHat))
}

// DDIMSampleLoop runs DDIM sampling over n strided timesteps. The denoiser
// must predict ε.
func (e *Engine) DDIMSampleLoop(ctx context.Context, shape []int, n int, eta float64, opts SampleOptions) (*Result, error) {
	if err := e.checkTarget(Eps); err != nil {
		return nil, err
	}
	pairs, err := e.DDIMTimesteps(n)
	if err != nil {
		return nil, err
	}
	if err := checkEta(eta); err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		if _, _, err := e.ddimNoise(pair.T, pair.Prev, eta); err != nil {
			return nil, err
		}
	}
	x, err := e.initialNoise(shape, opts)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("sampler", "ddim", "eta", eta)

	res := &Result{}
	if opts.ReturnTrajectory {
		res.Trajectory = append(make([]*tensor.Tensor, 0, n+1), x)
	}
	start := time.Now()
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eps, calls, err := e.predict(ctx, x, Scalar(pair.T), opts)
		res.Evaluations += calls
		if err != nil {
			return nil, fmt.Errorf("ddim step t=%d: %w", pair.T, err)
		}
		x, err = e.DDIMStep(x, pair.T, pair.Prev, eps, eta)
		if err != nil {
			return nil, fmt.Errorf("ddim step t=%d: %w", pair.T, err)
		}
		if opts.ReturnTrajectory {
			res.Trajectory = append(res.Trajectory, x)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(pairs))
		}
	}
	log.Debug("sampling finished", "steps", len(pairs), "evaluations", res.Evaluations, "elapsed", time.Since(start))
	res.Sample = x
	return res, nil
}

package diffusion

import (
	"math"

	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// PosteriorCoefficients returns the weights of the DDPM posterior mean
//
//	μ(x_t, x_0) = wxt·x_t + wx0·x_0
//	wxt = √α_t (1-ᾱ_{t-1}) / (1-ᾱ_t)
//	wx0 = √ᾱ_{t-1} β_t / (1-ᾱ_t)
//
// with ᾱ_{-1} = 1, so at t=0 the mean collapses onto x_0.
func PosteriorCoefficients(s *schedule.Schedule, t int) (wxt, wx0 float64) {
	barT := s.AlphaBar(t)
	barPrev := s.AlphaBar(t - 1)
	wxt = math.Sqrt(s.Alpha(t)) * (1 - barPrev) / (1 - barT)
	wx0 = math.Sqrt(barPrev) * s.Beta(t) / (1 - barT)
	return wxt, wx0
}

// StepVariance is the variance of the noise injected by an ancestral step
// at t: the true posterior variance (1-ᾱ_{t-1})/(1-ᾱ_t)·β_t, or β_t.
// The two choices give measurably different sample statistics.
func StepVariance(s *schedule.Schedule, t int, truePosterior bool) float64 {
	if truePosterior {
		return (1 - s.AlphaBar(t-1)) / (1 - s.AlphaBar(t)) * s.Beta(t)
	}
	return s.Beta(t)
}

// StepEps performs one ancestral step x_t -> x_{t-1} from a noise
// prediction.
func (e *Engine) StepEps(xt *tensor.Tensor, t Timesteps, epsHat *tensor.Tensor, truePosteriorVariance bool) (*tensor.Tensor, error) {
	return e.Step(Eps, xt, t, epsHat, truePosteriorVariance)
}

// StepMu performs one ancestral step from a posterior-mean prediction.
func (e *Engine) StepMu(xt *tensor.Tensor, t Timesteps, muHat *tensor.Tensor, truePosteriorVariance bool) (*tensor.Tensor, error) {
	return e.Step(Mu, xt, t, muHat, truePosteriorVariance)
}

// StepX0 performs one ancestral step from a clean-sample prediction.
func (e *Engine) StepX0(xt *tensor.Tensor, t Timesteps, x0Hat *tensor.Tensor, truePosteriorVariance bool) (*tensor.Tensor, error) {
	return e.Step(X0, xt, t, x0Hat, truePosteriorVariance)
}

// Step performs one ancestral step interpreting pred according to p, which
// must be the denoiser's declared target.
//
// Noise is injected only into batch entries whose timestep is positive; a
// scalar timestep is treated as a uniform per-example vector so both cases
// go through the same masked combination.
func (e *Engine) Step(p Parameterization, xt *tensor.Tensor, t Timesteps, pred *tensor.Tensor, truePosteriorVariance bool) (*tensor.Tensor, error) {
	ts, err := e.timesteps(xt, t)
	if err != nil {
		return nil, err
	}
	if err := checkLike(p.String()+" prediction", xt, pred); err != nil {
		return nil, err
	}
	if err := e.checkTarget(p); err != nil {
		return nil, err
	}
	mean, err := e.posteriorMean(p, xt, ts, pred)
	if err != nil {
		return nil, err
	}
	return e.injectNoise(mean, ts, truePosteriorVariance), nil
}

func (e *Engine) posteriorMean(p Parameterization, xt *tensor.Tensor, ts []int, pred *tensor.Tensor) (*tensor.Tensor, error) {
	switch p {
	case Eps:
		wx := schedule.Gather(ts, func(t int) float64 { return 1 / math.Sqrt(e.sched.Alpha(t)) })
		we := schedule.Gather(ts, func(t int) float64 {
			coef := (1 - e.sched.Alpha(t)) / math.Sqrt(1-e.sched.AlphaBar(t))
			return -coef / math.Sqrt(e.sched.Alpha(t))
		})
		return tensor.Combine(wx, xt, we, pred), nil
	case Mu:
		return pred.Clone(), nil
	case X0:
		wxt := make([]float64, len(ts))
		wx0 := make([]float64, len(ts))
		for i, t := range ts {
			wxt[i], wx0[i] = PosteriorCoefficients(e.sched, t)
		}
		return tensor.Combine(wxt, xt, wx0, pred), nil
	default:
		return nil, configErrorf("unknown parameterization %d", int(p))
	}
}

// injectNoise adds σ_t·z to every row with t>0 and leaves rows with t==0
// untouched. z is always drawn for the whole batch.
func (e *Engine) injectNoise(mean *tensor.Tensor, ts []int, truePosteriorVariance bool) *tensor.Tensor {
	sigma := schedule.Gather(ts, func(t int) float64 {
		if t == 0 {
			return 0
		}
		return math.Sqrt(StepVariance(e.sched, t, truePosteriorVariance))
	})
	z := tensor.RandnLike(e.rng, mean)
	return tensor.AddScaledRows(mean, sigma, z)
}

package diffusion

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/ddpm/internal/logger"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// SampleOptions configures a reverse sampling loop.
type SampleOptions struct {
	// TruePosteriorVariance selects σ²_t = (1-ᾱ_{t-1})/(1-ᾱ_t)·β_t instead
	// of σ²_t = β_t for ancestral steps. Ignored by DDIM, whose noise is set
	// by eta.
	TruePosteriorVariance bool
	// ReturnTrajectory keeps every intermediate state in Result.Trajectory.
	ReturnTrajectory bool
	// Labels holds one class label per batch row for conditional models.
	Labels []int
	// GuidanceScale enables classifier-free guidance when greater than 1:
	// pred = (1+w)·pred(x, t, labels) - w·pred(x, t, null).
	GuidanceScale float64
	// Progress, if set, is called after every step.
	Progress func(step, total int)
}

// Result is the output of a sampling loop.
type Result struct {
	Sample *tensor.Tensor
	// Trajectory starts with the initial noise and ends with Sample. It is
	// nil unless SampleOptions.ReturnTrajectory was set.
	Trajectory []*tensor.Tensor
	// Evaluations counts denoiser invocations.
	Evaluations int
}

// AncestralTimesteps returns the timesteps visited by SampleLoop for p:
// T-1..0 for ε, T-1..1 for μ and x0.
func (e *Engine) AncestralTimesteps(p Parameterization) []int {
	ts := e.sched.Timesteps()
	if p.SkipsFinalStep() {
		ts = ts[:len(ts)-1]
	}
	return ts
}

// SampleLoop runs DDPM ancestral sampling from x_T ~ N(0, I) of the given
// shape. p must match the denoiser's declared target.
func (e *Engine) SampleLoop(ctx context.Context, shape []int, p Parameterization, opts SampleOptions) (*Result, error) {
	if err := e.checkTarget(p); err != nil {
		return nil, err
	}
	x, err := e.initialNoise(shape, opts)
	if err != nil {
		return nil, err
	}
	steps := e.AncestralTimesteps(p)
	log := logger.FromContext(ctx).With("sampler", "ddpm", "parameterization", p.String())

	res := &Result{}
	if opts.ReturnTrajectory {
		res.Trajectory = append(make([]*tensor.Tensor, 0, len(steps)+1), x)
	}
	start := time.Now()
	for i, t := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pred, n, err := e.predict(ctx, x, Scalar(t), opts)
		res.Evaluations += n
		if err != nil {
			return nil, fmt.Errorf("step t=%d: %w", t, err)
		}
		x, err = e.Step(p, x, Scalar(t), pred, opts.TruePosteriorVariance)
		if err != nil {
			return nil, fmt.Errorf("step t=%d: %w", t, err)
		}
		if opts.ReturnTrajectory {
			res.Trajectory = append(res.Trajectory, x)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(steps))
		}
	}
	log.Debug("sampling finished", "steps", len(steps), "evaluations", res.Evaluations, "elapsed", time.Since(start))
	res.Sample = x
	return res, nil
}

// Denoise runs the denoiser on xt and applies the matching ancestral step.
func (e *Engine) Denoise(ctx context.Context, xt *tensor.Tensor, t Timesteps, opts SampleOptions) (*tensor.Tensor, error) {
	if _, err := e.timesteps(xt, t); err != nil {
		return nil, err
	}
	if err := checkConditioning(opts, xt.Batch()); err != nil {
		return nil, err
	}
	pred, _, err := e.predict(ctx, xt, t, opts)
	if err != nil {
		return nil, err
	}
	return e.Step(e.den.Target(), xt, t, pred, opts.TruePosteriorVariance)
}

func (e *Engine) checkTarget(p Parameterization) error {
	if got := e.den.Target(); got != p {
		return contractErrorf("denoiser predicts %s, cannot drive a %s sampler", got, p)
	}
	return nil
}

func checkConditioning(opts SampleOptions, batch int) error {
	if err := checkLabels(opts.Labels, batch); err != nil {
		return err
	}
	if opts.GuidanceScale > 1 && opts.Labels == nil {
		return shapeErrorf("classifier-free guidance needs one class label per batch row")
	}
	return nil
}

func (e *Engine) initialNoise(shape []int, opts SampleOptions) (*tensor.Tensor, error) {
	if len(shape) == 0 {
		return nil, shapeErrorf("empty sample shape")
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, shapeErrorf("sample shape %v has a non-positive dimension", shape)
		}
	}
	if err := checkConditioning(opts, shape[0]); err != nil {
		return nil, err
	}
	return tensor.Randn(e.rng, shape...), nil
}

// predict evaluates the denoiser, blending conditional and null-label
// predictions when guidance is enabled. It returns the number of denoiser
// calls made.
func (e *Engine) predict(ctx context.Context, x *tensor.Tensor, t Timesteps, opts SampleOptions) (*tensor.Tensor, int, error) {
	if opts.GuidanceScale <= 1 {
		pred, err := e.call(ctx, x, t, opts.Labels)
		return pred, 1, err
	}
	w := opts.GuidanceScale
	null, err := e.call(ctx, x, t, make([]int, x.Batch()))
	if err != nil {
		return nil, 1, err
	}
	cond, err := e.call(ctx, x, t, opts.Labels)
	if err != nil {
		return nil, 2, err
	}
	return tensor.AddScaled(tensor.Scale(1+w, cond), -w, null), 2, nil
}

func (e *Engine) call(ctx context.Context, x *tensor.Tensor, t Timesteps, labels []int) (*tensor.Tensor, error) {
	out, err := e.den.Predict(ctx, x, t, labels)
	if err != nil {
		return nil, err
	}
	if out == nil || !out.SameShape(x) {
		var got []int
		if out != nil {
			got = out.Shape
		}
		return nil, contractErrorf("denoiser returned shape %v for input shape %v", got, x.Shape)
	}
	return out, nil
}

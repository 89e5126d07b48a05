// Package diffusion implements the DDPM/DDIM diffusion process: forward
// corruption, ancestral and DDIM reverse sampling under the ε, μ and x0
// parameterizations, and the matching training objectives.
//
// An Engine owns an immutable schedule, a Denoiser and a seeded random
// source. It is not safe for concurrent use; call Fork to obtain an engine
// per goroutine. Forks share the schedule and the denoiser.
package diffusion

import (
	"math/rand"
	"time"

	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

type Engine struct {
	cfg   Config
	sched *schedule.Schedule
	den   Denoiser
	rng   *rand.Rand
}

type Option func(*Engine)

// WithSeed seeds the engine's random source.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand makes the engine draw from rng.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// New validates cfg, builds its schedule and binds den. The denoiser's
// declared target must equal cfg.Parameterization.
func New(cfg Config, den Denoiser, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	if den == nil {
		return nil, contractErrorf("nil denoiser")
	}
	if den.Target() != cfg.Parameterization {
		return nil, contractErrorf("denoiser predicts %s but engine is configured for %s", den.Target(), cfg.Parameterization)
	}
	e := &Engine{cfg: cfg, sched: sched, den: den}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e, nil
}

// Fork returns an engine sharing e's schedule and denoiser with its own
// random source seeded by seed.
func (e *Engine) Fork(seed int64) *Engine {
	return &Engine{
		cfg:   e.cfg,
		sched: e.sched,
		den:   e.den,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (e *Engine) Config() Config                     { return e.cfg }
func (e *Engine) Schedule() *schedule.Schedule       { return e.sched }
func (e *Engine) Denoiser() Denoiser                 { return e.den }
func (e *Engine) Parameterization() Parameterization { return e.cfg.Parameterization }

// timesteps broadcasts t to x's batch and range-checks every entry.
func (e *Engine) timesteps(x *tensor.Tensor, t Timesteps) ([]int, error) {
	if err := checkSample(x); err != nil {
		return nil, err
	}
	ts, err := t.Expand(x.Batch())
	if err != nil {
		return nil, err
	}
	for _, v := range ts {
		if err := e.sched.Check(v); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func checkSample(x *tensor.Tensor) error {
	if x == nil {
		return shapeErrorf("nil sample")
	}
	if len(x.Shape) == 0 || x.Shape[0] == 0 {
		return shapeErrorf("sample needs a non-empty batch dimension, got shape %v", x.Shape)
	}
	return nil
}

func checkLike(name string, x, y *tensor.Tensor) error {
	if y == nil {
		return shapeErrorf("nil %s", name)
	}
	if !x.SameShape(y) {
		return shapeErrorf("%s shape %v does not match sample shape %v", name, y.Shape, x.Shape)
	}
	return nil
}

func checkLabels(labels []int, batch int) error {
	if labels != nil && len(labels) != batch {
		return shapeErrorf("%d class labels for batch of %d", len(labels), batch)
	}
	return nil
}

package diffusion

import (
	"math"

	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// AddNoise samples x_t ~ q(x_t | x_0):
//
//	x_t = √ᾱ_t · x0 + √(1-ᾱ_t) · noise
//
// If noise is nil a standard normal tensor is drawn. The noise actually used
// is returned alongside x_t since it is the ε regression target.
func (e *Engine) AddNoise(x0 *tensor.Tensor, t Timesteps, noise *tensor.Tensor) (xt, used *tensor.Tensor, err error) {
	ts, err := e.timesteps(x0, t)
	if err != nil {
		return nil, nil, err
	}
	if noise == nil {
		noise = tensor.RandnLike(e.rng, x0)
	} else if err := checkLike("noise", x0, noise); err != nil {
		return nil, nil, err
	}
	return e.addNoise(x0, ts, noise), noise, nil
}

func (e *Engine) addNoise(x0 *tensor.Tensor, ts []int, noise *tensor.Tensor) *tensor.Tensor {
	signal := schedule.Gather(ts, func(t int) float64 { return math.Sqrt(e.sched.AlphaBar(t)) })
	scale := schedule.Gather(ts, func(t int) float64 { return math.Sqrt(1 - e.sched.AlphaBar(t)) })
	return tensor.Combine(signal, x0, scale, noise)
}

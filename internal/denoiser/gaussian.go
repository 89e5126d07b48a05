// Package denoiser provides reference denoisers with closed-form optimal
// predictions, used to drive the samplers without a trained network.
package denoiser

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/ddpm/internal/diffusion"
	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// KindGaussian is the checkpoint kind written for Gaussian.
const KindGaussian = "gaussian"

// Gaussian is the Bayes-optimal denoiser for data whose coordinates are
// independent N(mean[d], std[d]²). Class labels are ignored.
//
// Given x_t, the posterior over x_0 is Gaussian with
//
//	E[x_0 | x_t] = m + √ᾱ s² / (ᾱ s² + 1 - ᾱ) · (x_t - √ᾱ m)
//
// and the ε and μ predictions follow linearly from it.
type Gaussian struct {
	sched  *schedule.Schedule
	target diffusion.Parameterization
	mean   []float64
	std    []float64
}

// NewGaussian returns a standard-normal oracle over dims coordinates.
func NewGaussian(sched *schedule.Schedule, target diffusion.Parameterization, dims int) (*Gaussian, error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: nil schedule", diffusion.ErrConfiguration)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: need at least one dimension, got %d", diffusion.ErrConfiguration, dims)
	}
	g := &Gaussian{sched: sched, target: target, mean: make([]float64, dims), std: make([]float64, dims)}
	for i := range g.std {
		g.std[i] = 1
	}
	return g, nil
}

func (g *Gaussian) Target() diffusion.Parameterization { return g.target }

func (g *Gaussian) Kind() string { return KindGaussian }

func (g *Gaussian) Dims() int { return len(g.mean) }

// Mean and Std return copies of the per-coordinate parameters.
func (g *Gaussian) Mean() []float64 { return append([]float64(nil), g.mean...) }
func (g *Gaussian) Std() []float64  { return append([]float64(nil), g.std...) }

// Fit sets the parameters to the per-coordinate population moments of x0,
// an [N, D] batch with D equal to Dims.
func (g *Gaussian) Fit(x0 *tensor.Tensor) error {
	if x0 == nil || len(x0.Shape) == 0 || x0.Batch() == 0 {
		return fmt.Errorf("%w: fit needs a non-empty batch", diffusion.ErrShapeMismatch)
	}
	if x0.RowSize() != g.Dims() {
		return fmt.Errorf("%w: fit data has %d coordinates, denoiser has %d", diffusion.ErrShapeMismatch, x0.RowSize(), g.Dims())
	}
	col := make([]float64, x0.Batch())
	for d := range g.mean {
		for i := range col {
			col[i] = x0.Row(i)[d]
		}
		m, v := stat.PopMeanVariance(col, nil)
		g.mean[d] = m
		g.std[d] = math.Sqrt(v)
	}
	return nil
}

// Predict returns the posterior expectation of the target quantity.
func (g *Gaussian) Predict(_ context.Context, xt *tensor.Tensor, t diffusion.Timesteps, _ []int) (*tensor.Tensor, error) {
	if xt.RowSize() != g.Dims() {
		return nil, fmt.Errorf("%w: input has %d coordinates, denoiser has %d", diffusion.ErrShapeMismatch, xt.RowSize(), g.Dims())
	}
	ts, err := t.Expand(xt.Batch())
	if err != nil {
		return nil, err
	}
	out := tensor.ZerosLike(xt)
	for i, ti := range ts {
		if err := g.sched.Check(ti); err != nil {
			return nil, err
		}
		bar := g.sched.AlphaBar(ti)
		sb := math.Sqrt(bar)
		wxt, wx0 := diffusion.PosteriorCoefficients(g.sched, ti)
		x, dst := xt.Row(i), out.Row(i)
		for d, v := range x {
			s2 := g.std[d] * g.std[d]
			x0 := g.mean[d] + sb*s2/(bar*s2+1-bar)*(v-sb*g.mean[d])
			switch g.target {
			case diffusion.Eps:
				dst[d] = (v - sb*x0) / math.Sqrt(1-bar)
			case diffusion.Mu:
				dst[d] = wxt*v + wx0*x0
			default:
				dst[d] = x0
			}
		}
	}
	return out, nil
}

// Parameters exposes the weights by name for checkpointing.
func (g *Gaussian) Parameters() map[string]*tensor.Tensor {
	mean, _ := tensor.FromData(g.Mean(), len(g.mean))
	std, _ := tensor.FromData(g.Std(), len(g.std))
	return map[string]*tensor.Tensor{"mean": mean, "std": std}
}

// SetParameters replaces the weights. Both tensors must be present and
// match Dims; std must be non-negative.
func (g *Gaussian) SetParameters(params map[string]*tensor.Tensor) error {
	mean, ok := params["mean"]
	if !ok {
		return fmt.Errorf("gaussian denoiser: missing parameter %q", "mean")
	}
	std, ok := params["std"]
	if !ok {
		return fmt.Errorf("gaussian denoiser: missing parameter %q", "std")
	}
	if mean.Len() != g.Dims() || std.Len() != g.Dims() {
		return fmt.Errorf("%w: parameters have %d/%d values, denoiser has %d dims", diffusion.ErrShapeMismatch, mean.Len(), std.Len(), g.Dims())
	}
	for _, s := range std.Data {
		if s < 0 || math.IsNaN(s) {
			return fmt.Errorf("gaussian denoiser: invalid std %g", s)
		}
	}
	copy(g.mean, mean.Data)
	copy(g.std, std.Data)
	return nil
}

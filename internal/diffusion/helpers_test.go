package diffusion

import (
	"context"
	"math/rand"
	"testing"

	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

func testConfig(T int, p Parameterization) Config {
	return Config{
		Timesteps:        T,
		BetaMin:          1e-4,
		BetaMax:          0.02,
		Mode:             schedule.Linear,
		Parameterization: p,
	}
}

func newTestEngine(t *testing.T, T int, den Denoiser, seed int64) *Engine {
	t.Helper()
	e, err := New(testConfig(T, den.Target()), den, WithSeed(seed))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// zeroDenoiser predicts zeros for any input.
func zeroDenoiser(p Parameterization) Denoiser {
	return NewFunc(p, func(_ context.Context, xt *tensor.Tensor, _ Timesteps, _ []int) (*tensor.Tensor, error) {
		return tensor.ZerosLike(xt), nil
	})
}

// countingDenoiser records every timestep it is called with.
type countingDenoiser struct {
	target Parameterization
	calls  []int
}

func (d *countingDenoiser) Target() Parameterization { return d.target }

func (d *countingDenoiser) Predict(_ context.Context, xt *tensor.Tensor, t Timesteps, _ []int) (*tensor.Tensor, error) {
	d.calls = append(d.calls, t.Values()[0])
	return tensor.ZerosLike(xt), nil
}

func randTensor(seed int64, shape ...int) *tensor.Tensor {
	return tensor.Randn(rand.New(rand.NewSource(seed)), shape...)
}

func sameData(a, b *tensor.Tensor) bool {
	if !a.SameShape(b) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

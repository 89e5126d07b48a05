package diffusion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/ddpm/internal/tensor"
)

// oracle returns a denoiser that knows the clean batch and predicts the
// exact target of parameterization p.
func oracle(s *Engine, p Parameterization, x0 *tensor.Tensor) Denoiser {
	return NewFunc(p, func(_ context.Context, xt *tensor.Tensor, t Timesteps, _ []int) (*tensor.Tensor, error) {
		ts, err := t.Expand(xt.Batch())
		if err != nil {
			return nil, err
		}
		sched := s.Schedule()
		switch p {
		case Eps:
			a := make([]float64, len(ts))
			b := make([]float64, len(ts))
			for i, ti := range ts {
				a[i] = 1 / math.Sqrt(1-sched.AlphaBar(ti))
				b[i] = -math.Sqrt(sched.AlphaBar(ti)) * a[i]
			}
			return tensor.Combine(a, xt, b, x0), nil
		case Mu:
			wxt := make([]float64, len(ts))
			wx0 := make([]float64, len(ts))
			for i, ti := range ts {
				wxt[i], wx0[i] = PosteriorCoefficients(sched, ti)
			}
			return tensor.Combine(wxt, xt, wx0, x0), nil
		default:
			return x0.Clone(), nil
		}
	})
}

func TestPerfectPredictorHasZeroLoss(t *testing.T) {
	t.Parallel()
	x0 := randTensor(8, 16, 2)
	for _, p := range []Parameterization{Eps, Mu, X0} {
		base := newTestEngine(t, 1000, zeroDenoiser(p), 1)
		e := newTestEngine(t, 1000, oracle(base, p, x0), 42)
		res, err := e.Loss(context.Background(), x0, nil)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if res.Value > 1e-16 {
			t.Errorf("%s: perfect predictor loss %g", p, res.Value)
		}
	}
}

func TestLossTimestepRanges(t *testing.T) {
	t.Parallel()
	x0 := randTensor(8, 512, 1)
	for _, p := range []Parameterization{Eps, Mu, X0} {
		e := newTestEngine(t, 4, zeroDenoiser(p), 3)
		res, err := e.Loss(context.Background(), x0, nil)
		if err != nil {
			t.Fatal(err)
		}
		seen := map[int]bool{}
		for _, ti := range res.Timesteps {
			if ti < p.MinTrainTimestep() || ti >= 4 {
				t.Fatalf("%s: timestep %d out of range", p, ti)
			}
			seen[ti] = true
		}
		if want := 4 - p.MinTrainTimestep(); len(seen) != want {
			t.Errorf("%s: drew %d distinct timesteps, want %d", p, len(seen), want)
		}
	}
}

func TestLossTargets(t *testing.T) {
	t.Parallel()
	x0 := randTensor(8, 6, 3)
	noise := randTensor(9, 6, 3)
	ts := []int{1, 5, 20, 60, 80, 99}
	for _, p := range []Parameterization{Eps, Mu, X0} {
		e := newTestEngine(t, 100, zeroDenoiser(p), 3)
		res, err := e.lossAt(context.Background(), p, x0, ts, noise, nil)
		if err != nil {
			t.Fatal(err)
		}
		var want *tensor.Tensor
		switch p {
		case Eps:
			want = noise
		case X0:
			want = x0
		case Mu:
			want = e.muTarget(x0, noise, ts)
		}
		if !tensor.AllClose(res.Target, want, 1e-12) {
			t.Errorf("%s: unexpected target", p)
		}
		if math.Abs(res.Value-tensor.MSE(tensor.ZerosLike(want), want)) > 1e-12 {
			t.Errorf("%s: loss %g is not the MSE of a zero prediction", p, res.Value)
		}
		grad := res.Gradient()
		for i, g := range grad.Data {
			if math.Abs(g-(-2*want.Data[i]/float64(want.Len()))) > 1e-12 {
				t.Fatalf("%s: gradient[%d]=%g", p, i, g)
			}
		}
	}
}

// muTarget recomputes the μ target from scratch.
func (e *Engine) muTarget(x0, noise *tensor.Tensor, ts []int) *tensor.Tensor {
	out := tensor.ZerosLike(x0)
	s := e.Schedule()
	for i, ti := range ts {
		bar, barPrev := s.AlphaBar(ti), s.AlphaBar(ti-1)
		for j := range out.Row(i) {
			xt := math.Sqrt(bar)*x0.Row(i)[j] + math.Sqrt(1-bar)*noise.Row(i)[j]
			out.Row(i)[j] = math.Sqrt(s.Alpha(ti))*(1-barPrev)/(1-bar)*xt +
				math.Sqrt(barPrev)*s.Beta(ti)/(1-bar)*x0.Row(i)[j]
		}
	}
	return out
}

func TestLossValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEngine(t, 10, zeroDenoiser(Eps), 1)
	if _, err := e.LossMu(ctx, tensor.New(2, 2), nil); !errors.Is(err, ErrContractViolation) {
		t.Errorf("mu loss on eps denoiser: got %v", err)
	}
	if _, err := e.LossEps(ctx, tensor.New(2, 2), []int{1}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("label count: got %v", err)
	}
	if _, err := e.LossEps(ctx, nil, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("nil x0: got %v", err)
	}

	one, err := New(Config{Timesteps: 1, BetaMin: 1e-4, BetaMax: 0.02, Mode: "linear", Parameterization: X0}, zeroDenoiser(X0), WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := one.LossX0(ctx, tensor.New(2, 2), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("x0 loss with T=1: got %v", err)
	}
}

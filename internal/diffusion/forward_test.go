package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/ddpm/internal/tensor"
)

func TestAddNoiseZeroNoiseIsScaledSignal(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, 1000, zeroDenoiser(Eps), 1)
	x0 := randTensor(3, 5, 3)
	ts := []int{0, 10, 250, 500, 999}
	xt, used, err := e.AddNoise(x0, PerExample(ts...), tensor.ZerosLike(x0))
	if err != nil {
		t.Fatalf("AddNoise: %v", err)
	}
	if !sameData(used, tensor.ZerosLike(x0)) {
		t.Fatal("returned noise is not the noise passed in")
	}
	for i, ti := range ts {
		scale := math.Sqrt(e.Schedule().AlphaBar(ti))
		for j, v := range xt.Row(i) {
			if v != scale*x0.Row(i)[j] {
				t.Fatalf("row %d col %d: got %v want %v", i, j, v, scale*x0.Row(i)[j])
			}
		}
	}
}

func TestAddNoiseMidScheduleScenario(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, 1000, zeroDenoiser(Eps), 1)

	// ᾱ_500 computed independently of the schedule package.
	bar := 1.0
	for s := 0; s <= 500; s++ {
		bar *= 1 - (1e-4 + float64(s)*(0.02-1e-4)/999)
	}
	want := math.Sqrt(1 - bar)

	x0 := tensor.New(4, 2)
	xt, _, err := e.AddNoise(x0, PerExample(500, 500, 500, 500), tensor.Full(1, 4, 2))
	if err != nil {
		t.Fatalf("AddNoise: %v", err)
	}
	for i, v := range xt.Data {
		if math.Abs(v-want) > 1e-12 {
			t.Fatalf("element %d: got %.15f want %.15f", i, v, want)
		}
	}

	scalar, _, err := e.AddNoise(x0, Scalar(500), tensor.Full(1, 4, 2))
	if err != nil {
		t.Fatalf("AddNoise scalar: %v", err)
	}
	if !sameData(scalar, xt) {
		t.Fatal("scalar and per-example timesteps disagree")
	}
}

func TestAddNoiseBroadcastsOverTrailingDims(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, 100, zeroDenoiser(Eps), 1)
	x0 := tensor.Full(1, 2, 3, 4, 4)
	xt, _, err := e.AddNoise(x0, PerExample(0, 99), tensor.ZerosLike(x0))
	if err != nil {
		t.Fatal(err)
	}
	for i, ti := range []int{0, 99} {
		want := math.Sqrt(e.Schedule().AlphaBar(ti))
		for _, v := range xt.Row(i) {
			if v != want {
				t.Fatalf("row %d: got %v want %v", i, v, want)
			}
		}
	}
}

func TestAddNoiseDrawsNoiseWhenUnset(t *testing.T) {
	t.Parallel()
	x0 := tensor.New(3, 2)
	a, na, err := newTestEngine(t, 100, zeroDenoiser(Eps), 9).AddNoise(x0, Scalar(50), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, nb, err := newTestEngine(t, 100, zeroDenoiser(Eps), 9).AddNoise(x0, Scalar(50), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sameData(a, b) || !sameData(na, nb) {
		t.Fatal("same seed produced different noise")
	}
	if tensor.MSE(na, tensor.ZerosLike(na)) == 0 {
		t.Fatal("expected non-zero noise")
	}
}

func TestAddNoiseValidation(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, 100, zeroDenoiser(Eps), 1)
	x0 := tensor.New(2, 2)
	cases := []struct {
		name  string
		t     Timesteps
		noise *tensor.Tensor
		want  error
	}{
		{"t equals T", Scalar(100), nil, ErrConfiguration},
		{"negative t", PerExample(-1, 3), nil, ErrConfiguration},
		{"wrong timestep count", PerExample(1, 2, 3), nil, ErrShapeMismatch},
		{"wrong noise shape", Scalar(1), tensor.New(2, 3), ErrShapeMismatch},
	}
	for _, tc := range cases {
		if _, _, err := e.AddNoise(x0, tc.t, tc.noise); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

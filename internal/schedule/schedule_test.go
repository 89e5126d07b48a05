package schedule

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestScheduleMonotone(t *testing.T) {
	t.Parallel()
	cases := []struct {
		T        int
		min, max float64
		mode     Mode
	}{
		{1000, 1e-4, 0.02, Linear},
		{1000, 1e-4, 0.02, Quadratic},
		{10, 1e-4, 0.02, Linear},
		{50, 1e-3, 0.5, Quadratic},
		{2, 0.1, 0.2, Linear},
	}
	for _, tc := range cases {
		s, err := New(tc.T, tc.min, tc.max, tc.mode)
		if err != nil {
			t.Fatalf("New(%d, %g, %g, %s): %v", tc.T, tc.min, tc.max, tc.mode, err)
		}
		if s.Len() != tc.T {
			t.Fatalf("len: got %d want %d", s.Len(), tc.T)
		}
		betas, alphas, bars := s.Betas(), s.Alphas(), s.AlphasCumprod()
		for i := range betas {
			if betas[i] <= 0 || betas[i] >= 1 {
				t.Fatalf("%s T=%d: beta[%d]=%g out of (0,1)", tc.mode, tc.T, i, betas[i])
			}
			if math.Abs(alphas[i]-(1-betas[i])) > 1e-15 {
				t.Fatalf("alpha[%d] != 1-beta[%d]", i, i)
			}
			if i == 0 {
				continue
			}
			if betas[i] < betas[i-1] {
				t.Fatalf("%s T=%d: beta not non-decreasing at %d", tc.mode, tc.T, i)
			}
			if bars[i] >= bars[i-1] {
				t.Fatalf("%s T=%d: alpha bar not strictly decreasing at %d", tc.mode, tc.T, i)
			}
		}
		if math.Abs(bars[0]-(1-tc.min)) > 1e-12 {
			t.Fatalf("alpha bar[0]: got %g want %g", bars[0], 1-tc.min)
		}
		if math.Abs(betas[tc.T-1]-tc.max) > 1e-12 {
			t.Fatalf("last beta: got %g want %g", betas[tc.T-1], tc.max)
		}
	}
}

func TestAlphaBarVanishesForLongSchedules(t *testing.T) {
	t.Parallel()
	prev := 1.0
	for _, T := range []int{100, 1000, 10000} {
		s, err := New(T, 1e-4, 0.02, Linear)
		if err != nil {
			t.Fatal(err)
		}
		last := s.AlphaBar(T - 1)
		if last >= prev {
			t.Fatalf("T=%d: alpha bar end %g did not shrink (prev %g)", T, last, prev)
		}
		prev = last
	}
	if prev > 1e-10 {
		t.Fatalf("alpha bar end for T=10000 is %g, expected ~0", prev)
	}
}

func TestSmallScheduleExact(t *testing.T) {
	t.Parallel()
	s, err := New(10, 1e-4, 0.02, Linear)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(s.AlphasCumprod()); got != 10 {
		t.Fatalf("alpha bar entries: got %d want 10", got)
	}
	want := []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	if diff := cmp.Diff(want, s.Timesteps()); diff != "" {
		t.Fatalf("timesteps (-want +got):\n%s", diff)
	}

	betas := make([]float64, 10)
	for i := range betas {
		betas[i] = 1e-4 + float64(i)*(0.02-1e-4)/9
	}
	if diff := cmp.Diff(betas, s.Betas(), cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Fatalf("betas (-want +got):\n%s", diff)
	}
}

func TestQuadraticInterpolatesSqrtBeta(t *testing.T) {
	t.Parallel()
	s, err := New(5, 1e-4, 0.04, Quadratic)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range s.Betas() {
		want := 0.01 + float64(i)*(0.2-0.01)/4
		if math.Abs(math.Sqrt(b)-want) > 1e-12 {
			t.Fatalf("sqrt(beta[%d]): got %g want %g", i, math.Sqrt(b), want)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		T        int
		min, max float64
		mode     Mode
	}{
		{"zero steps", 0, 1e-4, 0.02, Linear},
		{"negative steps", -5, 1e-4, 0.02, Linear},
		{"inverted range", 10, 0.02, 1e-4, Linear},
		{"zero beta", 10, 0, 0.02, Linear},
		{"beta max one", 10, 1e-4, 1, Linear},
		{"unknown mode", 10, 1e-4, 0.02, Mode("cosine")},
	}
	for _, tc := range cases {
		_, err := New(tc.T, tc.min, tc.max, tc.mode)
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", tc.name, err)
		}
	}
}

func TestCheckAndAlphaBarSentinel(t *testing.T) {
	t.Parallel()
	s, err := New(10, 1e-4, 0.02, Linear)
	if err != nil {
		t.Fatal(err)
	}
	for _, ts := range []int{-1, 10, 11} {
		if !errors.Is(s.Check(ts), ErrConfiguration) {
			t.Errorf("Check(%d): expected ErrConfiguration", ts)
		}
	}
	if err := s.Check(0); err != nil {
		t.Errorf("Check(0): %v", err)
	}
	if s.AlphaBar(-1) != 1 {
		t.Fatalf("AlphaBar(-1): got %g want 1", s.AlphaBar(-1))
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Mode{"linear": Linear, "quad": Quadratic, "Quadratic": Quadratic} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("sigmoid"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

package diffusion

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	bad := []Config{
		{Timesteps: 0, BetaMin: 1e-4, BetaMax: 0.02, Mode: "linear"},
		{Timesteps: 10, BetaMin: 0.5, BetaMax: 0.02, Mode: "linear"},
		{Timesteps: 10, BetaMin: 1e-4, BetaMax: 0.02, Mode: "cosine"},
		{Timesteps: 10, BetaMin: 1e-4, BetaMax: 0.02, Mode: "linear", Parameterization: 7},
	}
	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Errorf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	in := DefaultConfig()
	in.Parameterization = Mu
	in.Mode = "quad"
	b, err := yaml.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Config
	if err := yaml.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if out != in {
		t.Fatalf("round trip: got %+v want %+v", out, in)
	}
}

func TestParseParameterization(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Parameterization{"eps": Eps, "noise": Eps, "MU": Mu, "mean": Mu, "x0": X0} {
		got, err := ParseParameterization(in)
		if err != nil || got != want {
			t.Errorf("ParseParameterization(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseParameterization("v"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

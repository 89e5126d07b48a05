package diffusion

import (
	"fmt"
	"strings"
)

// Parameterization names the quantity a denoiser predicts.
type Parameterization int

const (
	// Eps predicts the injected noise ε.
	Eps Parameterization = iota
	// Mu predicts the posterior mean μ(x_t, x_0).
	Mu
	// X0 predicts the clean sample.
	X0
)

func (p Parameterization) String() string {
	switch p {
	case Eps:
		return "eps"
	case Mu:
		return "mu"
	case X0:
		return "x0"
	default:
		return fmt.Sprintf("Parameterization(%d)", int(p))
	}
}

// ParseParameterization accepts eps/epsilon/noise, mu/mean and x0/sample.
func ParseParameterization(s string) (Parameterization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eps", "epsilon", "noise":
		return Eps, nil
	case "mu", "mean":
		return Mu, nil
	case "x0", "sample":
		return X0, nil
	default:
		return 0, configErrorf("unknown parameterization %q", s)
	}
}

// SkipsFinalStep reports whether the ancestral loop for p stops at t=1.
// The μ and x0 loops never evaluate the t=0 posterior; the ε loop does.
func (p Parameterization) SkipsFinalStep() bool {
	return p == Mu || p == X0
}

// MinTrainTimestep is the smallest timestep drawn by the training loss.
// μ and x0 objectives need t-1 to exist.
func (p Parameterization) MinTrainTimestep() int {
	if p.SkipsFinalStep() {
		return 1
	}
	return 0
}

func (p Parameterization) MarshalText() ([]byte, error) {
	if p < Eps || p > X0 {
		return nil, configErrorf("unknown parameterization %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Parameterization) UnmarshalText(b []byte) error {
	v, err := ParseParameterization(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

package diffusion

import (
	"github.com/samcharles93/ddpm/internal/schedule"
)

// Config is the serializable description of an engine: everything needed to
// rebuild the schedule plus the parameterization the denoiser was trained
// for.
type Config struct {
	Timesteps        int              `yaml:"timesteps" json:"timesteps"`
	BetaMin          float64          `yaml:"beta_min" json:"beta_min"`
	BetaMax          float64          `yaml:"beta_max" json:"beta_max"`
	Mode             schedule.Mode    `yaml:"mode" json:"mode"`
	Parameterization Parameterization `yaml:"parameterization" json:"parameterization"`
}

// DefaultConfig is the DDPM paper setup: 1000 linear steps from 1e-4 to 0.02
// with an ε-predicting denoiser.
func DefaultConfig() Config {
	return Config{
		Timesteps:        1000,
		BetaMin:          1e-4,
		BetaMax:          0.02,
		Mode:             schedule.Linear,
		Parameterization: Eps,
	}
}

// Validate reports the first configuration problem, if any.
func (c Config) Validate() error {
	_, err := c.Schedule()
	if err != nil {
		return err
	}
	if c.Parameterization < Eps || c.Parameterization > X0 {
		return configErrorf("unknown parameterization %d", int(c.Parameterization))
	}
	return nil
}

// Schedule builds the variance schedule described by c.
func (c Config) Schedule() (*schedule.Schedule, error) {
	return schedule.New(c.Timesteps, c.BetaMin, c.BetaMax, c.Mode)
}

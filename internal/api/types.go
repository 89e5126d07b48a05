package api

import "github.com/samcharles93/ddpm/internal/diffusion"

// SampleRequest is the body of POST /v1/samples.
type SampleRequest struct {
	Batch                 int      `json:"batch"`
	Dims                  int      `json:"dims,omitempty"`
	Method                string   `json:"method,omitempty"`
	Steps                 int      `json:"steps,omitempty"`
	Eta                   float64  `json:"eta,omitempty"`
	Seed                  *int64   `json:"seed,omitempty"`
	TruePosteriorVariance bool     `json:"true_posterior_variance,omitempty"`
	ReturnTrajectory      bool     `json:"return_trajectory,omitempty"`
	Labels                []int    `json:"labels,omitempty"`
	GuidanceScale         *float64 `json:"guidance_scale,omitempty"`
}

// SampleResponse is returned by POST /v1/samples and GET /v1/samples/:id.
type SampleResponse struct {
	ID          string        `json:"id"`
	Object      string        `json:"object"`
	CreatedAt   int64         `json:"created_at"`
	Method      string        `json:"method"`
	Steps       int           `json:"steps"`
	Seed        int64         `json:"seed"`
	Evaluations int           `json:"evaluations"`
	Shape       []int         `json:"shape"`
	Samples     [][]float64   `json:"samples"`
	Trajectory  [][][]float64 `json:"trajectory,omitempty"`
}

// InfoResponse describes the engine behind the server.
type InfoResponse struct {
	Object    string           `json:"object"`
	Version   string           `json:"version"`
	Config    diffusion.Config `json:"config"`
	Denoiser  string           `json:"denoiser,omitempty"`
	Dims      int              `json:"dims"`
	RunID     string           `json:"run_id,omitempty"`
	Methods   []string         `json:"methods"`
	MaxBatch  int              `json:"max_batch"`
	DDPMSteps int              `json:"ddpm_steps"`
}

// ScheduleResponse exposes the precomputed schedule arrays.
type ScheduleResponse struct {
	Object        string    `json:"object"`
	Timesteps     int       `json:"timesteps"`
	Mode          string    `json:"mode"`
	Betas         []float64 `json:"betas"`
	Alphas        []float64 `json:"alphas"`
	AlphasCumprod []float64 `json:"alphas_cumprod"`
}

type DeleteSampleResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

package api

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/ddpm/internal/diffusion"
	"github.com/samcharles93/ddpm/internal/logger"
)

const (
	MethodDDPM = "ddpm"
	MethodDDIM = "ddim"

	defaultDDIMSteps = 50
	defaultMaxBatch  = 4096
	// defaultMaxTrajectoryRows bounds batch×(steps+1) for trajectory requests.
	defaultMaxTrajectoryRows = 1 << 16
)

// ServiceConfig describes the engine a SampleService serves.
type ServiceConfig struct {
	// Dims is the per-example width the denoiser expects.
	Dims int
	// MaxBatch caps the batch of a single request.
	MaxBatch int
	// MaxTrajectoryRows caps batch×(steps+1) when a trajectory is returned.
	MaxTrajectoryRows int
	// Kind and RunID are reported by /v1/info.
	Kind  string
	RunID string
}

// SampleService runs sampling requests. Each request gets its own fork of
// the template engine, so requests may run concurrently as long as the
// denoiser's Predict is safe for concurrent use.
type SampleService struct {
	engine *diffusion.Engine
	cfg    ServiceConfig

	mu    sync.Mutex
	seeds *rand.Rand
}

func NewSampleService(engine *diffusion.Engine, cfg ServiceConfig) *SampleService {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.MaxTrajectoryRows <= 0 {
		cfg.MaxTrajectoryRows = defaultMaxTrajectoryRows
	}
	return &SampleService{
		engine: engine,
		cfg:    cfg,
		seeds:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SampleService) nextSeed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeds.Int63()
}

// Methods lists the samplers the engine's parameterization supports.
func (s *SampleService) Methods() []string {
	if s.engine.Parameterization() == diffusion.Eps {
		return []string{MethodDDPM, MethodDDIM}
	}
	return []string{MethodDDPM}
}

// Sample validates req and draws a batch.
func (s *SampleService) Sample(ctx context.Context, req *SampleRequest) (*SampleResponse, error) {
	if req.Batch <= 0 {
		return nil, newInvalidRequest("batch must be positive")
	}
	if req.Batch > s.cfg.MaxBatch {
		return nil, newInvalidRequest(fmt.Sprintf("batch %d exceeds the limit of %d", req.Batch, s.cfg.MaxBatch))
	}
	dims := req.Dims
	if dims == 0 {
		dims = s.cfg.Dims
	}
	if dims != s.cfg.Dims {
		return nil, newInvalidRequest(fmt.Sprintf("dims %d does not match the denoiser's %d", dims, s.cfg.Dims))
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = MethodDDPM
	}
	seed := s.nextSeed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	opts := diffusion.SampleOptions{
		TruePosteriorVariance: req.TruePosteriorVariance,
		ReturnTrajectory:      req.ReturnTrajectory,
		Labels:                req.Labels,
	}
	if req.GuidanceScale != nil {
		opts.GuidanceScale = *req.GuidanceScale
	}

	e := s.engine.Fork(seed)
	shape := []int{req.Batch, dims}
	log := logger.FromContext(ctx).With("method", method, "batch", req.Batch, "seed", seed)
	start := time.Now()

	var steps int
	switch method {
	case MethodDDPM:
		if req.Steps != 0 || req.Eta != 0 {
			return nil, newInvalidRequest("steps and eta apply to ddim only")
		}
		steps = len(e.AncestralTimesteps(e.Parameterization()))
	case MethodDDIM:
		steps = req.Steps
		if steps == 0 {
			steps = min(defaultDDIMSteps, e.Schedule().Len())
		}
	default:
		return nil, newInvalidRequest(fmt.Sprintf("unknown method %q (want ddpm or ddim)", req.Method))
	}
	if req.ReturnTrajectory {
		if rows := req.Batch * (steps + 1); rows > s.cfg.MaxTrajectoryRows {
			return nil, newInvalidRequest(fmt.Sprintf("trajectory of %d rows exceeds the limit of %d; lower batch or steps", rows, s.cfg.MaxTrajectoryRows))
		}
	}

	var (
		res *diffusion.Result
		err error
	)
	if method == MethodDDIM {
		res, err = e.DDIMSampleLoop(ctx, shape, steps, req.Eta, opts)
	} else {
		res, err = e.SampleLoop(ctx, shape, e.Parameterization(), opts)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("sampled", "steps", steps, "evaluations", res.Evaluations, "took", time.Since(start))

	resp := &SampleResponse{
		ID:          "smp_" + uuid.NewString(),
		Object:      "sample",
		Method:      method,
		Steps:       steps,
		Seed:        seed,
		Evaluations: res.Evaluations,
		Shape:       shape,
		Samples:     res.Sample.Rows(),
	}
	if req.ReturnTrajectory {
		resp.Trajectory = make([][][]float64, len(res.Trajectory))
		for i, x := range res.Trajectory {
			resp.Trajectory[i] = x.Rows()
		}
	}
	return resp, nil
}

// Package checkpoint persists an engine configuration together with the
// weights of its denoiser in a single safetensors file.
package checkpoint

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samcharles93/ddpm/internal/denoiser"
	"github.com/samcharles93/ddpm/internal/diffusion"
	"github.com/samcharles93/ddpm/internal/safetensors"
	"github.com/samcharles93/ddpm/internal/schedule"
	"github.com/samcharles93/ddpm/internal/tensor"
)

// Format is stored under the "format" metadata key.
const Format = "ddpm/1"

const (
	keyFormat  = "format"
	keyConfig  = "config"
	keyKind    = "denoiser"
	keyDims    = "dims"
	keyRunID   = "run_id"
	keyCreated = "created"
)

var ErrFormat = errors.New("checkpoint: unsupported file")

// Checkpoint is the decoded content of a checkpoint file.
type Checkpoint struct {
	RunID   uuid.UUID
	Created time.Time
	Config  diffusion.Config
	Kind    string
	Dims    int
	Params  map[string]*tensor.Tensor
}

// Factory builds an untrained denoiser; denoiser.New is the default.
type Factory func(kind string, sched *schedule.Schedule, target diffusion.Parameterization, dims int) (denoiser.Parametric, error)

type options struct {
	dtype string
	runID uuid.UUID
	now   func() time.Time
}

type Option func(*options)

// WithDType selects the on-disk precision: F32 (default), F16, BF16 or F64.
func WithDType(dtype string) Option {
	return func(o *options) { o.dtype = dtype }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id uuid.UUID) Option {
	return func(o *options) { o.runID = id }
}

// Save writes cfg and den's parameters to path and returns the run ID.
func Save(path string, cfg diffusion.Config, den denoiser.Parametric, opts ...Option) (uuid.UUID, error) {
	o := options{dtype: safetensors.F32, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if safetensors.DTypeSize(o.dtype) == 0 {
		return uuid.Nil, fmt.Errorf("%w: unsupported checkpoint dtype %q", diffusion.ErrConfiguration, o.dtype)
	}
	if err := cfg.Validate(); err != nil {
		return uuid.Nil, err
	}
	if den.Target() != cfg.Parameterization {
		return uuid.Nil, fmt.Errorf("%w: denoiser predicts %s, config says %s", diffusion.ErrContractViolation, den.Target(), cfg.Parameterization)
	}
	if o.runID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return uuid.Nil, err
		}
		o.runID = id
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode config: %w", err)
	}
	meta := map[string]string{
		keyFormat:  Format,
		keyConfig:  string(cfgJSON),
		keyKind:    den.Kind(),
		keyDims:    strconv.Itoa(den.Dims()),
		keyRunID:   o.runID.String(),
		keyCreated: o.now().UTC().Format(time.RFC3339),
	}

	params := den.Parameters()
	tensors := make([]safetensors.Tensor, 0, len(params))
	for name, p := range params {
		tensors = append(tensors, safetensors.Tensor{Name: name, DType: o.dtype, Shape: p.Shape, Data: p.Data})
	}
	if err := safetensors.WriteFile(path, tensors, meta); err != nil {
		return uuid.Nil, fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return o.runID, nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Checkpoint, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	meta := f.Metadata
	if meta[keyFormat] != Format {
		return nil, fmt.Errorf("%w: %s has format %q, want %q", ErrFormat, path, meta[keyFormat], Format)
	}
	ck := &Checkpoint{Kind: meta[keyKind], Params: make(map[string]*tensor.Tensor, len(f.Tensors))}
	if err := json.Unmarshal([]byte(meta[keyConfig]), &ck.Config); err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrFormat, err)
	}
	if ck.Dims, err = strconv.Atoi(meta[keyDims]); err != nil {
		return nil, fmt.Errorf("%w: dims: %v", ErrFormat, err)
	}
	if ck.RunID, err = uuid.Parse(meta[keyRunID]); err != nil {
		return nil, fmt.Errorf("%w: run_id: %v", ErrFormat, err)
	}
	if created := meta[keyCreated]; created != "" {
		if ck.Created, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("%w: created: %v", ErrFormat, err)
		}
	}

	for _, name := range f.Names() {
		data, info, err := f.Float64s(name)
		if err != nil {
			return nil, err
		}
		shape := info.Shape
		if len(shape) == 0 {
			shape = []int{1}
		}
		t, err := tensor.FromData(data, shape...)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		ck.Params[name] = t
	}
	return ck, nil
}

// Restore rebuilds the denoiser with factory (denoiser.New when nil), loads
// the saved weights into it, and returns a ready engine.
func (c *Checkpoint) Restore(factory Factory, opts ...diffusion.Option) (*diffusion.Engine, denoiser.Parametric, error) {
	if factory == nil {
		factory = denoiser.New
	}
	sched, err := c.Config.Schedule()
	if err != nil {
		return nil, nil, err
	}
	den, err := factory(c.Kind, sched, c.Config.Parameterization, c.Dims)
	if err != nil {
		return nil, nil, err
	}
	if err := den.SetParameters(c.Params); err != nil {
		return nil, nil, fmt.Errorf("restore %s weights: %w", c.Kind, err)
	}
	e, err := diffusion.New(c.Config, den, opts...)
	if err != nil {
		return nil, nil, err
	}
	return e, den, nil
}

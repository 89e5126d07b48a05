package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/ddpm/internal/diffusion"
	"github.com/samcharles93/ddpm/internal/logger"
)

type sampleOutput struct {
	Method      string        `json:"method"`
	Seed        int64         `json:"seed"`
	Steps       int           `json:"steps"`
	Evaluations int           `json:"evaluations"`
	Shape       []int         `json:"shape"`
	Samples     [][]float64   `json:"samples"`
	Trajectory  [][][]float64 `json:"trajectory,omitempty"`
}

type sampleParams struct {
	method     string
	batch      int
	workers    int
	steps      int
	eta        float64
	opts       diffusion.SampleOptions
	trajectory bool
}

func sampleCmd() *cli.Command {
	var (
		method        string
		batch         int64
		workers       int64
		steps         int64
		eta           float64
		truePosterior bool
		trajectory    bool
		label         int64
		guidance      float64
		outPath       string
	)

	return &cli.Command{
		Name:  "sample",
		Usage: "Draw samples with the ancestral (ddpm) or ddim sampler",
		Flags: append(engineFlags(),
			&cli.StringFlag{
				Name:        "method",
				Usage:       "sampler (ddpm, ddim)",
				Value:       "ddpm",
				Destination: &method,
			},
			&cli.Int64Flag{
				Name:        "batch",
				Aliases:     []string{"n"},
				Usage:       "number of samples",
				Value:       1000,
				Destination: &batch,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Aliases:     []string{"j"},
				Usage:       "parallel sampling workers (0 = GOMAXPROCS)",
				Destination: &workers,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Usage:       "ddim inference steps",
				Value:       50,
				Destination: &steps,
			},
			&cli.Float64Flag{
				Name:        "eta",
				Usage:       "ddim stochasticity (0 deterministic, 1 ddpm-like)",
				Destination: &eta,
			},
			&cli.BoolFlag{
				Name:        "true-posterior-variance",
				Usage:       "use the posterior variance instead of beta for ddpm steps",
				Destination: &truePosterior,
			},
			&cli.BoolFlag{
				Name:        "trajectory",
				Usage:       "include every intermediate state in the output",
				Destination: &trajectory,
			},
			&cli.Int64Flag{
				Name:        "label",
				Usage:       "class label for every sample (negative = unconditional)",
				Value:       -1,
				Destination: &label,
			},
			&cli.Float64Flag{
				Name:        "guidance-scale",
				Usage:       "classifier-free guidance weight (active above 1)",
				Destination: &guidance,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write samples as JSON to this file instead of stdout",
				Destination: &outPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if fileConfig.Workers != nil && !cmd.IsSet("workers") {
				workers = *fileConfig.Workers
			}
			le, err := buildEngine(ctx, cmd)
			if err != nil {
				return err
			}
			p := sampleParams{
				method:     strings.ToLower(method),
				batch:      int(batch),
				workers:    int(workers),
				steps:      int(steps),
				eta:        eta,
				trajectory: trajectory,
				opts: diffusion.SampleOptions{
					TruePosteriorVariance: truePosterior,
					ReturnTrajectory:      trajectory,
					GuidanceScale:         guidance,
				},
			}
			if label >= 0 {
				p.opts.Labels = make([]int, batch)
				for i := range p.opts.Labels {
					p.opts.Labels[i] = int(label)
				}
			}
			out, err := runSampling(ctx, le, p)
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return writeSamples(w, out)
		},
	}
}

// splitBatch divides n rows among at most workers chunks, largest first.
func splitBatch(n, workers int) []int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)
	if workers <= 0 {
		return nil
	}
	out := make([]int, workers)
	for i := range out {
		out[i] = n / workers
		if i < n%workers {
			out[i]++
		}
	}
	return out
}

// runSampling forks one engine per chunk and samples the chunks
// concurrently. Chunk i uses seed+i so the result depends only on the seed
// and the chunking.
func runSampling(ctx context.Context, le *loadedEngine, p sampleParams) (*sampleOutput, error) {
	if p.batch <= 0 {
		return nil, fmt.Errorf("%w: batch must be positive, got %d", diffusion.ErrShapeMismatch, p.batch)
	}
	if p.method != "ddpm" && p.method != "ddim" {
		return nil, fmt.Errorf("unknown sampler %q (want ddpm or ddim)", p.method)
	}
	dims := le.den.Dims()
	chunks := splitBatch(p.batch, p.workers)
	results := make([]*diffusion.Result, len(chunks))
	log := logger.FromContext(ctx)
	log.Info("sampling", "method", p.method, "batch", p.batch, "workers", len(chunks), "seed", le.seed)

	g, gctx := errgroup.WithContext(ctx)
	offset := 0
	for i, n := range chunks {
		opts := p.opts
		if opts.Labels != nil {
			opts.Labels = opts.Labels[offset : offset+n]
		}
		offset += n
		if i == 0 {
			opts.Progress = progressLogger(log, p.method)
		}
		e := le.engine.Fork(le.seed + int64(i))
		g.Go(func() error {
			var err error
			shape := []int{n, dims}
			switch p.method {
			case "ddim":
				results[i], err = e.DDIMSampleLoop(gctx, shape, p.steps, p.eta, opts)
			default:
				results[i], err = e.SampleLoop(gctx, shape, e.Parameterization(), opts)
			}
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &sampleOutput{
		Method: p.method,
		Seed:   le.seed,
		Shape:  []int{p.batch, dims},
	}
	for _, r := range results {
		out.Samples = append(out.Samples, r.Sample.Rows()...)
		out.Evaluations += r.Evaluations
	}
	out.Steps = results[0].Evaluations
	if p.opts.GuidanceScale > 1 {
		out.Steps /= 2
	}
	if p.trajectory {
		out.Trajectory = make([][][]float64, len(results[0].Trajectory))
		for step := range out.Trajectory {
			for _, r := range results {
				out.Trajectory[step] = append(out.Trajectory[step], r.Trajectory[step].Rows()...)
			}
		}
	}
	logMoments(log, out.Samples)
	return out, nil
}

func progressLogger(log logger.Logger, method string) func(step, total int) {
	next := 0
	return func(step, total int) {
		pct := 100 * step / total
		if pct >= next {
			log.Debug("progress", "method", method, "step", step, "total", total)
			next = pct + 10
		}
	}
}

// logMoments reports per-coordinate sample mean and std.
func logMoments(log logger.Logger, samples [][]float64) {
	if len(samples) == 0 {
		return
	}
	col := make([]float64, len(samples))
	for d := range samples[0] {
		for i, row := range samples {
			col[i] = row[d]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		log.Info("sample moments", "dim", d, "mean", mean, "std", math.Sqrt(variance))
	}
}

func writeSamples(w io.Writer, out *sampleOutput) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// Package dataset generates the 2-D toy distributions used to train and
// evaluate small diffusion models.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/ddpm/internal/tensor"
)

// Scale is the target standard deviation of normalized datasets.
const Scale = 2.0

type generator func(rng *rand.Rand, n int) [][2]float64

var generators = map[string]generator{
	"gaussian_centered": func(rng *rand.Rand, n int) [][2]float64 { return gaussian(rng, n, 0) },
	"gaussian_shift":    func(rng *rand.Rand, n int) [][2]float64 { return gaussian(rng, n, 1.5) },
	"circle":            circles,
	"scurve":            scurve,
	"moon":              moons,
	"swiss_roll":        swissRoll,
	"checkerboard":      checkerboard,
}

// normalized lists the datasets rescaled to zero mean and Scale std.
var normalized = map[string]bool{
	"scurve":       true,
	"moon":         true,
	"swiss_roll":   true,
	"checkerboard": true,
}

// Names returns the known dataset names, sorted.
func Names() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load draws n points of the named dataset as an [n, 2] tensor.
func Load(name string, n int, seed int64) (*tensor.Tensor, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (have %v)", name, Names())
	}
	if n <= 0 {
		return nil, fmt.Errorf("dataset %s: need a positive sample count, got %d", name, n)
	}
	pts := gen(rand.New(rand.NewSource(seed)), n)
	out := tensor.New(n, 2)
	for i, p := range pts {
		out.Data[2*i] = p[0]
		out.Data[2*i+1] = p[1]
	}
	if normalized[name] {
		Normalize(out, Scale)
	}
	return out, nil
}

// Normalize shifts and rescales x in place so that all entries, taken
// together, have zero mean and standard deviation scale.
func Normalize(x *tensor.Tensor, scale float64) {
	mean, variance := stat.PopMeanVariance(x.Data, nil)
	std := math.Sqrt(variance)
	if std == 0 {
		std = 1
	}
	for i, v := range x.Data {
		x.Data[i] = (v - mean) / std * scale
	}
}

func gaussian(rng *rand.Rand, n int, shift float64) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{rng.NormFloat64() + shift, rng.NormFloat64() + shift}
	}
	return out
}

// circles is two concentric rings, the inner one half the radius, scaled
// by 4.
func circles(rng *rand.Rand, n int) [][2]float64 {
	nOut := n / 2
	nIn := n - nOut
	out := make([][2]float64, 0, n)
	for i := 0; i < nOut; i++ {
		theta := 2 * math.Pi * float64(i) / float64(nOut)
		out = append(out, [2]float64{4 * math.Cos(theta), 4 * math.Sin(theta)})
	}
	for i := 0; i < nIn; i++ {
		theta := 2 * math.Pi * float64(i) / float64(nIn)
		out = append(out, [2]float64{2 * math.Cos(theta), 2 * math.Sin(theta)})
	}
	shuffle(rng, out)
	return out
}

// scurve projects the 3-D S curve onto its x/z plane.
func scurve(rng *rand.Rand, n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		t := 3 * math.Pi * (rng.Float64() - 0.5)
		sign := 1.0
		if t < 0 {
			sign = -1
		}
		out[i] = [2]float64{math.Sin(t), sign * (math.Cos(t) - 1)}
	}
	return out
}

func moons(rng *rand.Rand, n int) [][2]float64 {
	nOut := n / 2
	nIn := n - nOut
	out := make([][2]float64, 0, n)
	for i := 0; i < nOut; i++ {
		theta := math.Pi * float64(i) / math.Max(float64(nOut-1), 1)
		out = append(out, [2]float64{math.Cos(theta), math.Sin(theta)})
	}
	for i := 0; i < nIn; i++ {
		theta := math.Pi * float64(i) / math.Max(float64(nIn-1), 1)
		out = append(out, [2]float64{1 - math.Cos(theta), 0.5 - math.Sin(theta)})
	}
	shuffle(rng, out)
	return out
}

// swissRoll samples the rolled sheet with its central patch removed and
// keeps the spiral cross-section (t·cos t, t·sin t).
func swissRoll(rng *rand.Rand, n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		// 3x3 grid of patches over t ∈ [1.5π, 4.5π) and the (projected
		// away) height axis; patch 4 is the hole.
		patch := rng.Intn(8)
		if patch >= 4 {
			patch++
		}
		t := math.Pi*(1.5+float64(patch/3)) + math.Pi*rng.Float64()
		out[i] = [2]float64{t * math.Cos(t), t * math.Sin(t)}
	}
	return out
}

// checkerboard draws uniformly from [-2π, 2π)² and keeps the cells where
// sin x and sin y have opposite signs.
func checkerboard(rng *rand.Rand, n int) [][2]float64 {
	const half = 2 * math.Pi
	out := make([][2]float64, 0, n)
	for len(out) < n {
		x := (2*rng.Float64() - 1) * half
		y := (2*rng.Float64() - 1) * half
		sx, sy := math.Sin(x), math.Sin(y)
		if (sx > 0 && sy > 0) || (sx < 0 && sy < 0) {
			continue
		}
		if x == 0 && y == 0 {
			continue
		}
		out = append(out, [2]float64{x, y})
	}
	return out
}

func shuffle(rng *rand.Rand, pts [][2]float64) {
	rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })
}

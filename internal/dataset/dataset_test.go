package dataset

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/ddpm/internal/tensor"
)

func TestLoadShapesAndDeterminism(t *testing.T) {
	t.Parallel()
	for _, name := range Names() {
		a, err := Load(name, 101, 7)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if a.Shape[0] != 101 || a.Shape[1] != 2 {
			t.Fatalf("%s: shape %v", name, a.Shape)
		}
		b, _ := Load(name, 101, 7)
		if !tensor.AllClose(a, b, 0) {
			t.Errorf("%s: same seed gave different data", name)
		}
		for _, v := range a.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%s: non-finite value", name)
			}
		}
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	if _, err := Load("spiral", 10, 1); err == nil {
		t.Fatal("expected error for unknown dataset")
	}
	if _, err := Load("moon", 0, 1); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}

func TestNormalizedDatasets(t *testing.T) {
	t.Parallel()
	for name := range normalized {
		x, err := Load(name, 2000, 3)
		if err != nil {
			t.Fatal(err)
		}
		mean, variance := stat.PopMeanVariance(x.Data, nil)
		if math.Abs(mean) > 1e-9 || math.Abs(math.Sqrt(variance)-Scale) > 1e-9 {
			t.Errorf("%s: mean %g std %g", name, mean, math.Sqrt(variance))
		}
	}
}

func TestGaussianShift(t *testing.T) {
	t.Parallel()
	x, err := Load("gaussian_shift", 20000, 11)
	if err != nil {
		t.Fatal(err)
	}
	if m := tensor.Mean(x); math.Abs(m-1.5) > 0.05 {
		t.Fatalf("gaussian_shift mean %g, want about 1.5", m)
	}
}

func TestCircleRadii(t *testing.T) {
	t.Parallel()
	x, err := Load("circle", 100, 1)
	if err != nil {
		t.Fatal(err)
	}
	inner, outer := 0, 0
	for _, row := range x.Rows() {
		r := math.Hypot(row[0], row[1])
		switch {
		case math.Abs(r-2) < 1e-9:
			inner++
		case math.Abs(r-4) < 1e-9:
			outer++
		default:
			t.Fatalf("point %v off both rings", row)
		}
	}
	if inner != 50 || outer != 50 {
		t.Fatalf("inner=%d outer=%d", inner, outer)
	}
}

func TestCheckerboardCells(t *testing.T) {
	t.Parallel()
	pts := checkerboard(newRand(5), 500)
	if len(pts) != 500 {
		t.Fatalf("got %d points", len(pts))
	}
	for _, p := range pts {
		if math.Sin(p[0])*math.Sin(p[1]) > 0 {
			t.Fatalf("point %v lies in a same-sign cell", p)
		}
		if math.Abs(p[0]) > 2*math.Pi || math.Abs(p[1]) > 2*math.Pi {
			t.Fatalf("point %v outside the board", p)
		}
	}
}

func TestSwissRollHole(t *testing.T) {
	t.Parallel()
	for _, p := range swissRoll(newRand(9), 1000) {
		r := math.Hypot(p[0], p[1])
		if r < 1.5*math.Pi || r > 4.5*math.Pi {
			t.Fatalf("radius %g outside the roll", r)
		}
	}
}

func TestIteratorCyclesAndReshuffles(t *testing.T) {
	t.Parallel()
	data := tensor.New(10, 1)
	for i := range data.Data {
		data.Data[i] = float64(i)
	}
	it, err := NewIterator(data, 4, 1)
	if err != nil {
		t.Fatal(err)
	}

	var sizes []int
	seen := map[float64]int{}
	var first []float64
	for range 3 {
		b := it.Next()
		sizes = append(sizes, b.Batch())
		for _, v := range b.Data {
			seen[v]++
			first = append(first, v)
		}
	}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Fatalf("batch sizes %v", sizes)
	}
	if len(seen) != 10 {
		t.Fatalf("first epoch covered %d of 10 rows", len(seen))
	}
	if it.Epoch() != 0 {
		t.Fatalf("epoch %d before wrap", it.Epoch())
	}

	var second []float64
	for range 3 {
		second = append(second, it.Next().Data...)
	}
	if it.Epoch() != 1 {
		t.Fatalf("epoch %d after wrap", it.Epoch())
	}
	same := true
	for i := range first {
		if first[i] != second[i] {
			same = false
		}
	}
	if same {
		t.Fatal("second epoch repeated the first permutation")
	}
}

func TestIteratorRejects(t *testing.T) {
	t.Parallel()
	if _, err := NewIterator(nil, 1, 0); err == nil {
		t.Fatal("expected error for nil data")
	}
	if _, err := NewIterator(tensor.New(2, 2), 0, 0); err == nil {
		t.Fatal("expected error for zero batch")
	}
}

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

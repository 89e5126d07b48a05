package dataset

import (
	"fmt"
	"math/rand"

	"github.com/samcharles93/ddpm/internal/tensor"
)

// Iterator yields shuffled mini-batches forever. Each pass over the data is
// a fresh permutation; the last batch of a pass may be short.
type Iterator struct {
	data  *tensor.Tensor
	batch int
	rng   *rand.Rand
	perm  []int
	pos   int
	epoch int
}

// NewIterator batches the rows of data.
func NewIterator(data *tensor.Tensor, batch int, seed int64) (*Iterator, error) {
	if data == nil || len(data.Shape) == 0 || data.Batch() == 0 {
		return nil, fmt.Errorf("dataset iterator needs at least one row")
	}
	if batch <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batch)
	}
	it := &Iterator{data: data, batch: batch, rng: rand.New(rand.NewSource(seed))}
	it.reshuffle()
	return it, nil
}

func (it *Iterator) reshuffle() {
	it.perm = it.rng.Perm(it.data.Batch())
	it.pos = 0
}

// Next returns the next batch as a new tensor.
func (it *Iterator) Next() *tensor.Tensor {
	if it.pos >= len(it.perm) {
		it.reshuffle()
		it.epoch++
	}
	end := min(it.pos+it.batch, len(it.perm))
	shape := append([]int{end - it.pos}, it.data.Shape[1:]...)
	out := tensor.New(shape...)
	for i, idx := range it.perm[it.pos:end] {
		copy(out.Row(i), it.data.Row(idx))
	}
	it.pos = end
	return out
}

// Epoch counts completed passes over the data.
func (it *Iterator) Epoch() int { return it.epoch }

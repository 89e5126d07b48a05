package diffusion

import "slices"

// Timesteps is either one timestep shared by the whole batch or one
// timestep per batch entry.
type Timesteps struct {
	values []int
	scalar bool
}

// Scalar applies t to every batch entry.
func Scalar(t int) Timesteps {
	return Timesteps{values: []int{t}, scalar: true}
}

// PerExample assigns ts[i] to batch entry i.
func PerExample(ts ...int) Timesteps {
	return Timesteps{values: slices.Clone(ts)}
}

// IsScalar reports whether the timestep is shared by the batch.
func (t Timesteps) IsScalar() bool { return t.scalar }

// Values returns a copy of the underlying timesteps.
func (t Timesteps) Values() []int { return slices.Clone(t.values) }

// Expand broadcasts the timesteps to a batch of the given size.
func (t Timesteps) Expand(batch int) ([]int, error) {
	if t.scalar {
		out := make([]int, batch)
		for i := range out {
			out[i] = t.values[0]
		}
		return out, nil
	}
	if len(t.values) != batch {
		return nil, shapeErrorf("%d timesteps for batch of %d", len(t.values), batch)
	}
	return slices.Clone(t.values), nil
}

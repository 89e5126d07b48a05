package tensor

import (
	"gonum.org/v1/gonum/floats"
)

// Add returns a + b element-wise.
func Add(a, b *Tensor) *Tensor {
	mustSameShape(a, b)
	dst := New(a.Shape...)
	floats.AddTo(dst.Data, a.Data, b.Data)
	return dst
}

// Sub returns a - b element-wise.
func Sub(a, b *Tensor) *Tensor {
	mustSameShape(a, b)
	dst := New(a.Shape...)
	floats.SubTo(dst.Data, a.Data, b.Data)
	return dst
}

// Scale returns c * a.
func Scale(c float64, a *Tensor) *Tensor {
	dst := New(a.Shape...)
	floats.ScaleTo(dst.Data, c, a.Data)
	return dst
}

// AddScaled returns a + alpha*b.
func AddScaled(a *Tensor, alpha float64, b *Tensor) *Tensor {
	mustSameShape(a, b)
	dst := New(a.Shape...)
	floats.AddScaledTo(dst.Data, a.Data, alpha, b.Data)
	return dst
}

// ScaleRows multiplies the i-th batch entry of a by coef[i].
func ScaleRows(a *Tensor, coef []float64) *Tensor {
	mustRowCoef(a, coef)
	dst := New(a.Shape...)
	for i, c := range coef {
		floats.ScaleTo(dst.Row(i), c, a.Row(i))
	}
	return dst
}

// AddScaledRows returns a + coef[i]*b for every batch entry i.
func AddScaledRows(a *Tensor, coef []float64, b *Tensor) *Tensor {
	mustSameShape(a, b)
	mustRowCoef(a, coef)
	dst := New(a.Shape...)
	for i, c := range coef {
		floats.AddScaledTo(dst.Row(i), a.Row(i), c, b.Row(i))
	}
	return dst
}

// Combine returns wa[i]*a + wb[i]*b for every batch entry i.
func Combine(wa []float64, a *Tensor, wb []float64, b *Tensor) *Tensor {
	mustSameShape(a, b)
	mustRowCoef(a, wa)
	mustRowCoef(b, wb)
	dst := New(a.Shape...)
	for i := range wa {
		row := dst.Row(i)
		floats.ScaleTo(row, wa[i], a.Row(i))
		floats.AddScaled(row, wb[i], b.Row(i))
	}
	return dst
}

// MSE returns the mean squared difference between a and b.
func MSE(a, b *Tensor) float64 {
	mustSameShape(a, b)
	if a.Len() == 0 {
		return 0
	}
	d := floats.Distance(a.Data, b.Data, 2)
	return d * d / float64(a.Len())
}

// Mean returns the mean of all elements.
func Mean(a *Tensor) float64 {
	if a.Len() == 0 {
		return 0
	}
	return floats.Sum(a.Data) / float64(a.Len())
}

// AllClose reports whether a and b have the same shape and every element
// pair is within tol (absolute or relative).
func AllClose(a, b *Tensor, tol float64) bool {
	if !a.SameShape(b) {
		return false
	}
	return floats.EqualApprox(a.Data, b.Data, tol)
}

func mustSameShape(a, b *Tensor) {
	if !a.SameShape(b) {
		panic("tensor shape mismatch")
	}
}

func mustRowCoef(a *Tensor, coef []float64) {
	if len(coef) != a.Batch() {
		panic("row coefficient count does not match batch size")
	}
}

// Package matstats computes elementary norms of a weight matrix.
package matstats

import (
	"math"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"
)

// Stats holds the norms of one weight matrix. NaN or Inf in the input
// propagates into every field.
type Stats struct {
	FrobeniusNormSq float64
	SpectralNorm    float64
	LogNorm         float64
}

// Compute returns the squared Frobenius norm, the spectral norm and the log
// of the squared Frobenius norm of w. Non-finite input skips the SVD and
// reports sqrt(FrobeniusNormSq) as the spectral norm.
func Compute(w mat.Matrix) Stats {
	s := Frobenius(w)
	if s.Finite() {
		s.SpectralNorm = SpectralNormOf(w)
	} else {
		s.SpectralNorm = math.Sqrt(s.FrobeniusNormSq)
	}
	return s
}

// Frobenius fills the Frobenius-derived fields only. SpectralNorm is NaN.
func Frobenius(w mat.Matrix) Stats {
	fro := FrobeniusNormSq(w)
	return Stats{
		FrobeniusNormSq: fro,
		SpectralNorm:    math.NaN(),
		LogNorm:         math.Log(fro),
	}
}

// Finite reports whether the input had no NaN or Inf entries.
func (s Stats) Finite() bool {
	return !math.IsNaN(s.FrobeniusNormSq) && !math.IsInf(s.FrobeniusNormSq, 0)
}

// FrobeniusNormSq sums the squared entries of w.
func FrobeniusNormSq(w mat.Matrix) float64 {
	if rm, ok := w.(mat.RawMatrixer); ok {
		raw := rm.RawMatrix()
		var sum float64
		for i := 0; i < raw.Rows; i++ {
			row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
			sum += vek.Dot(row, row)
		}
		return sum
	}
	r, c := w.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := w.At(i, j)
			sum += v * v
		}
	}
	return sum
}

// SpectralNormOf returns the largest singular value of w. It returns NaN if
// the decomposition fails.
func SpectralNormOf(w mat.Matrix) float64 {
	var svd mat.SVD
	if !svd.Factorize(w, mat.SVDNone) {
		return math.NaN()
	}
	vals := svd.Values(nil)
	if len(vals) == 0 {
		return 0
	}
	return vals[0]
}

// StableRank is FrobeniusNormSq / SpectralNorm². It is NaN for the zero matrix.
func (s Stats) StableRank() float64 {
	if s.SpectralNorm == 0 {
		return math.NaN()
	}
	return s.FrobeniusNormSq / (s.SpectralNorm * s.SpectralNorm)
}

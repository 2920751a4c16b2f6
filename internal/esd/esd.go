// Package esd computes the empirical spectral density of a weight matrix: the
// eigenvalues of its correlation matrix X = WᵗW/N.
package esd

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// epsilon is the float64 machine epsilon.
const epsilon = 0x1p-52

var (
	ErrEmptyMatrix = errors.New("esd: matrix has a zero-sized axis")
	ErrEigenFailed = errors.New("esd: eigen decomposition did not converge")
)

// Orient returns w with N >= M and the resulting dimensions.
func Orient(w mat.Matrix) (mat.Matrix, int, int) {
	r, c := w.Dims()
	if r < c {
		return w.T(), c, r
	}
	return w, r, c
}

// Eigenvalues returns the min(N,M) eigenvalues of WᵗW/N sorted ascending.
// Values within round-off of zero, N·ε·λmax or below, are floored to zero so
// the null space of a rank-deficient W reads as exact zeros.
func Eigenvalues(w mat.Matrix) ([]float64, error) {
	w, n, m := Orient(w)
	if n == 0 || m == 0 {
		return nil, ErrEmptyMatrix
	}

	var x mat.SymDense
	x.SymOuterK(1/float64(n), w.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(&x, false); !ok {
		return nil, fmt.Errorf("%w: %dx%d", ErrEigenFailed, n, m)
	}
	vals := eig.Values(nil)
	sort.Float64s(vals)
	tol := float64(n) * epsilon * math.Max(vals[len(vals)-1], 0)
	for i, v := range vals {
		if v <= tol {
			vals[i] = 0
		}
	}
	return vals, nil
}

// Trace returns ‖W‖²_F / N, the expected sum of the spectrum.
func Trace(w mat.Matrix) float64 {
	w, n, _ := Orient(w)
	if n == 0 {
		return 0
	}
	fro := mat.Norm(w, 2)
	return fro * fro / float64(n)
}

// MarchenkoPasturEdges returns the bulk edges σ²(1∓√q)² of the spectrum of a
// random N×M matrix with entry variance sigma2 and aspect ratio q = M/N.
func MarchenkoPasturEdges(q, sigma2 float64) (lo, hi float64) {
	s := math.Sqrt(q)
	return sigma2 * (1 - s) * (1 - s), sigma2 * (1 + s) * (1 + s)
}

// NumSpikes counts eigenvalues above the upper Marchenko-Pastur edge. The
// entry variance is estimated from the spectrum mean, which equals σ² for a
// random matrix.
func NumSpikes(spectrum []float64, n, m int) int {
	if len(spectrum) == 0 || n == 0 {
		return 0
	}
	var sum float64
	for _, v := range spectrum {
		sum += v
	}
	sigma2 := sum / float64(len(spectrum))
	_, hi := MarchenkoPasturEdges(float64(m)/float64(n), sigma2)
	i := sort.SearchFloat64s(spectrum, hi)
	for i < len(spectrum) && spectrum[i] <= hi {
		i++
	}
	return len(spectrum) - i
}

// Package powerlaw fits a continuous power law P(x) ∝ x^-alpha to the upper
// tail of an eigenvalue spectrum, choosing xmin by minimum Kolmogorov-Smirnov
// distance.
package powerlaw

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DefaultMinTail is the smallest tail that supports a fit.
const DefaultMinTail = 3

type Status int

const (
	StatusOK Status = iota
	StatusUndefined
	StatusDegenerate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUndefined:
		return "undefined"
	case StatusDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Result is the outcome of a fit. Alpha, Sigma and, when undefined, XMin and
// D are NaN unless Status is StatusOK.
type Result struct {
	Alpha         float64
	XMin          float64
	XMax          float64
	D             float64
	Sigma         float64
	NumTail       int
	NumCandidates int
	Status        Status
}

// Defined reports whether Alpha is usable.
func (r Result) Defined() bool {
	return r.Status == StatusOK && !math.IsNaN(r.Alpha)
}

type fitOptions struct {
	minTail int
}

type Option func(*fitOptions)

// WithMinTail sets the smallest tail size a candidate xmin needs.
func WithMinTail(n int) Option {
	return func(o *fitOptions) {
		if n > 1 {
			o.minTail = n
		}
	}
}

// Fit never fails. Spectra too small to fit come back StatusUndefined and
// spectra of identical values come back StatusDegenerate.
func Fit(spectrum []float64, opts ...Option) Result {
	o := fitOptions{minTail: DefaultMinTail}
	for _, opt := range opts {
		opt(&o)
	}

	res := Result{
		Alpha:  math.NaN(),
		XMin:   math.NaN(),
		XMax:   math.NaN(),
		D:      math.NaN(),
		Sigma:  math.NaN(),
		Status: StatusUndefined,
	}
	if len(spectrum) == 0 {
		return res
	}

	x := make([]float64, len(spectrum))
	copy(x, spectrum)
	sort.Float64s(x)
	res.XMax = x[len(x)-1]

	if x[0] == res.XMax {
		res.XMin = x[0]
		res.D = 0
		res.NumTail = len(x)
		res.Status = StatusDegenerate
		return res
	}

	// suffix[i] = Σ_{j>=i} ln x_j over positive values
	logs := make([]float64, len(x))
	for i, v := range x {
		if v > 0 {
			logs[i] = math.Log(v)
		}
	}
	floats.Reverse(logs)
	suffix := floats.CumSum(make([]float64, len(logs)), logs)
	floats.Reverse(suffix)

	best := math.Inf(1)
	for i := 0; i < len(x); i++ {
		xmin := x[i]
		if xmin <= 0 || xmin == res.XMax || (i > 0 && x[i-1] == xmin) {
			continue
		}
		n := len(x) - i
		if n < o.minTail {
			break
		}
		res.NumCandidates++

		sumLog := suffix[i] - float64(n)*math.Log(xmin)
		alpha := 1 + float64(n)/sumLog
		d := ksDistance(x[i:], xmin, alpha)
		if d < best {
			best = d
			res.Alpha = alpha
			res.XMin = xmin
			res.D = d
			res.NumTail = n
		}
	}

	if res.NumCandidates == 0 || math.IsNaN(res.Alpha) {
		return res
	}
	res.Sigma = (res.Alpha - 1) / math.Sqrt(float64(res.NumTail))
	res.Status = StatusOK
	return res
}

// ksDistance is the Kolmogorov-Smirnov distance between the empirical CDF of
// the sorted tail and the fitted power-law CDF 1 - (x/xmin)^(1-alpha).
func ksDistance(tail []float64, xmin, alpha float64) float64 {
	n := float64(len(tail))
	var d float64
	for i, v := range tail {
		f := 1 - math.Pow(v/xmin, 1-alpha)
		hi := math.Abs(float64(i+1)/n - f)
		lo := math.Abs(f - float64(i)/n)
		d = math.Max(d, math.Max(hi, lo))
	}
	return d
}

package watcher

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

type LayerType int

const (
	LayerUnknown LayerType = iota
	LayerDense
	LayerConv2D
	LayerOther
)

func (t LayerType) String() string {
	switch t {
	case LayerDense:
		return "DENSE"
	case LayerConv2D:
		return "CONV2D"
	case LayerOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// ParseLayerType accepts the names returned by String in any case.
func ParseLayerType(s string) (LayerType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DENSE":
		return LayerDense, nil
	case "CONV2D":
		return LayerConv2D, nil
	case "OTHER":
		return LayerOther, nil
	case "UNKNOWN":
		return LayerUnknown, nil
	default:
		return LayerUnknown, fmt.Errorf("%w: %q", ErrUnknownLayerType, s)
	}
}

// LayerTypeSet is a bitmask of accepted layer types. The zero value accepts
// every type.
type LayerTypeSet uint8

const AllLayers LayerTypeSet = 1<<LayerUnknown | 1<<LayerDense | 1<<LayerConv2D | 1<<LayerOther

func NewLayerTypeSet(types ...LayerType) LayerTypeSet {
	var s LayerTypeSet
	for _, t := range types {
		s |= 1 << t
	}
	return s
}

// ParseLayerTypeSet parses names such as "dense", "conv2d" or "all".
func ParseLayerTypeSet(names []string) (LayerTypeSet, error) {
	var s LayerTypeSet
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), "all") {
			return AllLayers, nil
		}
		t, err := ParseLayerType(n)
		if err != nil {
			return 0, err
		}
		s |= 1 << t
	}
	return s, nil
}

func (s LayerTypeSet) Has(t LayerType) bool {
	if s == 0 {
		return true
	}
	return s&(1<<t) != 0
}

func (s LayerTypeSet) String() string {
	if s == 0 || s == AllLayers {
		return "ALL"
	}
	var parts []string
	for _, t := range []LayerType{LayerDense, LayerConv2D, LayerOther, LayerUnknown} {
		if s&(1<<t) != 0 {
			parts = append(parts, t.String())
		}
	}
	return strings.Join(parts, "|")
}

// Matrix is a row-major weight tensor as handed over by a layer provider.
// Only 2-D shapes can be analyzed.
type Matrix struct {
	Shape []int
	Data  []float64
}

func NewMatrix(rows, cols int, data []float64) *Matrix {
	return &Matrix{Shape: []int{rows, cols}, Data: data}
}

// FromDense copies d into a Matrix.
func FromDense(d *mat.Dense) *Matrix {
	r, c := d.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, d.RawRowView(i)...)
	}
	return NewMatrix(r, c, data)
}

// Validate returns an error wrapping ErrInputShape unless m is a non-empty
// 2-D matrix whose data length matches its shape.
func (m *Matrix) Validate() error {
	if len(m.Shape) != 2 {
		return fmt.Errorf("%w: %d dimensions, want 2", ErrInputShape, len(m.Shape))
	}
	r, c := m.Shape[0], m.Shape[1]
	if r <= 0 || c <= 0 {
		return fmt.Errorf("%w: zero-sized axis in %dx%d", ErrInputShape, r, c)
	}
	if len(m.Data) != r*c {
		return fmt.Errorf("%w: %d values for %dx%d", ErrInputShape, len(m.Data), r, c)
	}
	return nil
}

// Dense wraps the data without copying.
func (m *Matrix) Dense() (*mat.Dense, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return mat.NewDense(m.Shape[0], m.Shape[1], m.Data), nil
}

// LayerDescriptor is one layer as yielded by a provider. Err lets a provider
// report a layer it could not decode without aborting the model.
//
// A provider either sets Weight or defers decoding to Load. Load is called at
// most once, by the worker analyzing the layer, and only if the layer passes
// the type filter. The matrix it returns is dropped when that analysis ends.
type LayerDescriptor struct {
	ID     int
	Name   string
	Type   LayerType
	Weight *Matrix
	Load   func() (*Matrix, error)
	Err    error
}

type Status int

const (
	StatusSkipped Status = iota
	StatusAnalyzed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAnalyzed:
		return "analyzed"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// LayerRecord holds the metrics of one layer. Skipped and failed layers have
// N = M = 0 and zero metrics. Metrics that were not requested are NaN.
type LayerRecord struct {
	ID   int
	Name string
	Type LayerType

	N int
	M int

	Norm          float64
	LogNorm       float64
	SpectralNorm  float64
	StableRank    float64
	Alpha         float64
	AlphaWeighted float64

	XMin      float64
	XMax      float64
	D         float64
	Sigma     float64
	NumTail   int
	NumSpikes int

	HasBeenAnalyzed bool
	Status          Status
	Err             string
}

// AlphaDefined reports whether the layer carries a usable power-law exponent.
func (r LayerRecord) AlphaDefined() bool {
	return r.HasBeenAnalyzed && !math.IsNaN(r.Alpha)
}

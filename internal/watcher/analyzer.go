package watcher

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/esd"
	"github.com/23skdu/longbow-weightwatcher/internal/matstats"
	"github.com/23skdu/longbow-weightwatcher/internal/metrics"
	"github.com/23skdu/longbow-weightwatcher/internal/powerlaw"
	"gonum.org/v1/gonum/mat"
)

// layerMetrics is everything derived from the weight alone, so it can be
// cached by content.
type layerMetrics struct {
	N, M int

	Norm          float64
	LogNorm       float64
	SpectralNorm  float64
	StableRank    float64
	Alpha         float64
	AlphaWeighted float64
	XMin          float64
	XMax          float64
	D             float64
	Sigma         float64
	NumTail       int
	NumSpikes     int

	Err string
}

// Analyzer turns layer descriptors into records. It is safe for concurrent
// use.
type Analyzer struct {
	opts  Options
	cache *metricsCache
}

func NewAnalyzer(opts Options) (*Analyzer, error) {
	a := &Analyzer{opts: opts}
	if opts.CacheSize > 0 {
		c, err := newMetricsCache(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create metrics cache: %w", err)
		}
		a.cache = c
	}
	return a, nil
}

// AnalyzeLayer analyzes one layer without caching.
func AnalyzeLayer(desc LayerDescriptor, opts Options) LayerRecord {
	return (&Analyzer{opts: opts}).Analyze(desc)
}

func (a *Analyzer) Analyze(desc LayerDescriptor) LayerRecord {
	rec := LayerRecord{ID: desc.ID, Name: desc.Name, Type: desc.Type}
	log := a.opts.log()

	if !a.opts.Layers.Has(desc.Type) {
		metrics.RecordLayer(desc.Type.String(), StatusSkipped.String())
		return rec
	}
	if desc.Err != nil {
		rec.Status = StatusFailed
		rec.Err = desc.Err.Error()
		log.Warn("layer failed", "layer", desc.ID, "name", desc.Name, "error", desc.Err)
		metrics.RecordLayer(desc.Type.String(), StatusFailed.String())
		return rec
	}
	weight := desc.Weight
	if weight == nil && desc.Load != nil {
		var err error
		if weight, err = desc.Load(); err != nil {
			rec.Status = StatusFailed
			rec.Err = err.Error()
			log.Warn("layer failed", "layer", desc.ID, "name", desc.Name, "error", err)
			metrics.RecordLayer(desc.Type.String(), StatusFailed.String())
			return rec
		}
	}
	if weight == nil {
		rec.Err = ErrWeightAbsent.Error()
		metrics.RecordLayer(desc.Type.String(), StatusSkipped.String())
		return rec
	}
	w, err := weight.Dense()
	if err != nil {
		rec.Status = StatusFailed
		rec.Err = err.Error()
		log.Warn("layer failed", "layer", desc.ID, "name", desc.Name, "error", err)
		metrics.RecordLayer(desc.Type.String(), StatusFailed.String())
		return rec
	}

	var m layerMetrics
	var hit bool
	if a.cache != nil {
		key := newCacheKey(weight, a.opts)
		if m, hit = a.cache.get(key); !hit {
			m = measure(w, a.opts)
			a.cache.add(key, m)
		}
		metrics.RecordCache(hit)
	} else {
		m = measure(w, a.opts)
	}

	rec.apply(m)
	log.Debug("layer analyzed", "layer", desc.ID, "name", desc.Name, "type", desc.Type.String(),
		"n", m.N, "m", m.M, "alpha", m.Alpha, "cached", hit)
	metrics.RecordLayer(desc.Type.String(), StatusAnalyzed.String())
	return rec
}

func (r *LayerRecord) apply(m layerMetrics) {
	r.N, r.M = m.N, m.M
	r.Norm = m.Norm
	r.LogNorm = m.LogNorm
	r.SpectralNorm = m.SpectralNorm
	r.StableRank = m.StableRank
	r.Alpha = m.Alpha
	r.AlphaWeighted = m.AlphaWeighted
	r.XMin, r.XMax, r.D, r.Sigma = m.XMin, m.XMax, m.D, m.Sigma
	r.NumTail, r.NumSpikes = m.NumTail, m.NumSpikes
	r.Err = m.Err
	r.HasBeenAnalyzed = true
	r.Status = StatusAnalyzed
}

func measure(w *mat.Dense, opts Options) layerMetrics {
	nan := math.NaN()
	oriented, n, mm := esd.Orient(w)
	m := layerMetrics{
		N: n, M: mm,
		SpectralNorm: nan, StableRank: nan,
		Alpha: nan, AlphaWeighted: nan,
		XMin: nan, XMax: nan, D: nan, Sigma: nan,
	}

	var stats matstats.Stats
	if opts.needsSVD() {
		start := time.Now()
		stats = matstats.Compute(oriented)
		metrics.RecordSVD(time.Since(start))
		m.SpectralNorm = stats.SpectralNorm
		m.StableRank = stats.StableRank()
	} else {
		stats = matstats.Frobenius(oriented)
	}
	m.Norm = stats.FrobeniusNormSq
	m.LogNorm = stats.LogNorm
	finite := stats.Finite()

	if !opts.ComputeAlphas {
		return m
	}
	m.AlphaWeighted = 0
	if !finite {
		m.Err = "non-finite weights, power law not fitted"
		return m
	}

	start := time.Now()
	spectrum, err := esd.Eigenvalues(oriented)
	metrics.RecordEigen(time.Since(start))
	if err != nil {
		if !errors.Is(err, esd.ErrEmptyMatrix) {
			m.Err = err.Error()
		}
		return m
	}
	m.NumSpikes = esd.NumSpikes(spectrum, n, mm)

	start = time.Now()
	fit := powerlaw.Fit(spectrum, powerlaw.WithMinTail(opts.minTail()))
	metrics.RecordFit(time.Since(start), fit.Alpha, fit.Defined())

	m.XMin, m.XMax, m.D, m.NumTail = fit.XMin, fit.XMax, fit.D, fit.NumTail
	if fit.Defined() {
		m.Alpha = fit.Alpha
		m.Sigma = fit.Sigma
		m.AlphaWeighted = fit.Alpha * math.Log10(m.SpectralNorm)
	}
	return m
}

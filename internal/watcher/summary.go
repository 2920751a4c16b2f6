package watcher

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary keys, in display order.
const (
	KeyNorm                  = "norm"
	KeyNormCompound          = "norm_compound"
	KeyLogNorm               = "lognorm"
	KeyLogNormCompound       = "lognorm_compound"
	KeySpectralNorm          = "spectralnorm"
	KeySpectralNormCompound  = "spectralnorm_compound"
	KeyStableRank            = "stable_rank"
	KeyStableRankCompound    = "stable_rank_compound"
	KeyAlpha                 = "alpha"
	KeyAlphaCompound         = "alpha_compound"
	KeyAlphaWeighted         = "alpha_weighted"
	KeyAlphaWeightedCompound = "alpha_weighted_compound"
)

var summaryKeys = []string{
	KeyNorm, KeyNormCompound,
	KeyLogNorm, KeyLogNormCompound,
	KeySpectralNorm, KeySpectralNormCompound,
	KeyStableRank, KeyStableRankCompound,
	KeyAlpha, KeyAlphaCompound,
	KeyAlphaWeighted, KeyAlphaWeightedCompound,
}

// Summary is the model-level view of one analysis. A key is absent when no
// analyzed layer contributed a value, which is distinct from a zero mean.
type Summary struct {
	values   map[string]float64
	analyzed int
	skipped  int
	failed   int
	warnings []error
}

// Summarize aggregates records with HasBeenAnalyzed set. The others only
// contribute to the skipped and failed counters, split by Status.
func Summarize(records []LayerRecord, opts Options) Summary {
	s := Summary{values: make(map[string]float64)}

	var norms, lognorms, specs, ranks, alphas, weighted, alphasFloor, weightedFloor []float64
	for _, r := range records {
		if !r.HasBeenAnalyzed {
			if r.Status == StatusFailed {
				s.failed++
			} else {
				s.skipped++
			}
			continue
		}
		s.analyzed++

		norms = appendFinite(norms, r.Norm)
		lognorms = appendFinite(lognorms, r.LogNorm)
		specs = appendFinite(specs, r.SpectralNorm)
		ranks = appendFinite(ranks, r.StableRank)
		if r.AlphaDefined() {
			alphas = appendFinite(alphas, r.Alpha)
			weighted = appendFinite(weighted, r.AlphaWeighted)
			if r.Alpha >= opts.AlphaFloor {
				alphasFloor = appendFinite(alphasFloor, r.Alpha)
				weightedFloor = appendFinite(weightedFloor, r.AlphaWeighted)
			}
		}
	}

	if s.analyzed == 0 {
		s.warnings = append(s.warnings, ErrEmptyModel)
		return s
	}

	s.setMean(KeyNorm, norms)
	s.setGeoMean(KeyNormCompound, norms)
	s.setMean(KeyLogNorm, lognorms)
	if len(lognorms) > 0 {
		s.values[KeyLogNormCompound] = floats.LogSumExp(lognorms) - math.Log(float64(len(lognorms)))
	}
	s.setMean(KeySpectralNorm, specs)
	s.setGeoMean(KeySpectralNormCompound, specs)
	s.setMean(KeyStableRank, ranks)
	s.setGeoMean(KeyStableRankCompound, ranks)
	s.setMean(KeyAlpha, alphas)
	s.setMean(KeyAlphaCompound, alphasFloor)
	s.setMean(KeyAlphaWeighted, weighted)
	s.setMean(KeyAlphaWeightedCompound, weightedFloor)
	return s
}

func appendFinite(dst []float64, v float64) []float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return dst
	}
	return append(dst, v)
}

func (s *Summary) setMean(key string, v []float64) {
	if len(v) == 0 {
		return
	}
	s.values[key] = stat.Mean(v, nil)
}

// setGeoMean averages in the log domain so products of large norms do not
// overflow. Non-positive values have no logarithm and are left out.
func (s *Summary) setGeoMean(key string, v []float64) {
	logs := make([]float64, 0, len(v))
	for _, x := range v {
		if x > 0 {
			logs = append(logs, math.Log(x))
		}
	}
	if len(logs) == 0 {
		return
	}
	s.values[key] = math.Exp(stat.Mean(logs, nil))
}

func (s Summary) Get(key string) (float64, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the present keys in display order.
func (s Summary) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for _, k := range summaryKeys {
		if _, ok := s.values[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Map returns a copy of the summary values.
func (s Summary) Map() map[string]float64 {
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s Summary) Analyzed() int { return s.analyzed }
func (s Summary) Skipped() int  { return s.skipped }
func (s Summary) Failed() int   { return s.failed }

// Empty reports whether no layer was analyzed.
func (s Summary) Empty() bool { return s.analyzed == 0 }

// Warnings lists aggregate anomalies such as ErrEmptyModel.
func (s Summary) Warnings() []error {
	return append([]error(nil), s.warnings...)
}

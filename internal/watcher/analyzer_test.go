package watcher

import (
	"math"
	"math/rand"
	"testing"

	"github.com/23skdu/longbow-weightwatcher/internal/matstats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAnalyzeLayerFilterDense(t *testing.T) {
	opts := DefaultOptions()
	opts.Layers = NewLayerTypeSet(LayerDense)

	for _, desc := range mixedModel(1) {
		rec := AnalyzeLayer(desc, opts)
		assert.Equal(t, desc.ID, rec.ID)
		if desc.Type != LayerDense {
			assert.Zero(t, rec.N, desc.Name)
			assert.Zero(t, rec.M, desc.Name)
			assert.False(t, rec.HasBeenAnalyzed, desc.Name)
			assert.Equal(t, StatusSkipped, rec.Status)
			assert.Zero(t, rec.Norm)
			continue
		}
		assert.Positive(t, rec.N, desc.Name)
		assert.Positive(t, rec.M, desc.Name)
		assert.True(t, rec.HasBeenAnalyzed, desc.Name)
	}
}

func TestAnalyzeLayerFilterDenseConv(t *testing.T) {
	opts := DefaultOptions()
	opts.Layers = NewLayerTypeSet(LayerDense, LayerConv2D)

	for _, desc := range mixedModel(2) {
		rec := AnalyzeLayer(desc, opts)
		want := desc.Type == LayerDense || desc.Type == LayerConv2D
		assert.Equal(t, want, rec.HasBeenAnalyzed, desc.Name)
		assert.Equal(t, want, rec.N > 0 && rec.M > 0, desc.Name)
	}
}

func TestAnalyzeLayerOrientation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	rec := AnalyzeLayer(LayerDescriptor{Type: LayerDense, Weight: gaussian(rng, 20, 60)}, DefaultOptions())
	assert.Equal(t, 60, rec.N)
	assert.Equal(t, 20, rec.M)
}

func TestAnalyzeLayerShapeError(t *testing.T) {
	desc := LayerDescriptor{ID: 3, Name: "bias", Type: LayerOther, Weight: NewMatrix(4, 0, nil)}
	rec := AnalyzeLayer(desc, DefaultOptions())
	assert.False(t, rec.HasBeenAnalyzed)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Err, ErrInputShape.Error())
	assert.Zero(t, rec.N)
}

func TestAnalyzeLayerProviderError(t *testing.T) {
	desc := LayerDescriptor{ID: 1, Type: LayerDense, Err: assert.AnError}
	rec := AnalyzeLayer(desc, DefaultOptions())
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, assert.AnError.Error(), rec.Err)

	// a filtered layer is skipped even when the provider could not decode it
	opts := DefaultOptions()
	opts.Layers = NewLayerTypeSet(LayerConv2D)
	assert.Equal(t, StatusSkipped, AnalyzeLayer(desc, opts).Status)
}

func TestAnalyzeLayerAbsentWeight(t *testing.T) {
	rec := AnalyzeLayer(LayerDescriptor{ID: 9, Type: LayerDense}, DefaultOptions())
	assert.False(t, rec.HasBeenAnalyzed)
	assert.Equal(t, StatusSkipped, rec.Status)
	assert.Equal(t, ErrWeightAbsent.Error(), rec.Err)
}

func TestAnalyzeLayerRandomMatrix(t *testing.T) {
	rng := rand.New(rand.NewSource(512))
	rec := AnalyzeLayer(LayerDescriptor{Type: LayerDense, Weight: gaussian(rng, 512, 128)}, DefaultOptions())

	require.True(t, rec.HasBeenAnalyzed)
	require.True(t, rec.AlphaDefined(), "fit status: %s", rec.Err)
	edge := math.Pow(1+math.Sqrt(128.0/512.0), 2)
	assert.LessOrEqual(t, rec.XMax, edge+0.25)
	assert.Greater(t, rec.Alpha, 2.0)
	assert.InDelta(t, rec.Alpha*math.Log10(rec.SpectralNorm), rec.AlphaWeighted, 1e-12)
	assert.InDelta(t, math.Log(rec.Norm), rec.LogNorm, 1e-12)
	assert.Greater(t, rec.StableRank, 0.0)
	assert.LessOrEqual(t, rec.StableRank, 128.0)
}

func TestAnalyzeLayerRankOne(t *testing.T) {
	u := []float64{1, 2, 3, 4, 5, 6}
	v := []float64{1, -1, 2}
	data := make([]float64, 0, 18)
	for _, a := range u {
		for _, b := range v {
			data = append(data, a*b)
		}
	}
	rec := AnalyzeLayer(LayerDescriptor{Type: LayerDense, Weight: NewMatrix(6, 3, data)}, DefaultOptions())
	assert.InDelta(t, 1.0, rec.StableRank, 1e-9)
	assert.False(t, rec.AlphaDefined())
	assert.Equal(t, 0.0, rec.AlphaWeighted)
}

func TestAnalyzeLayerRankDeficientHasNoTail(t *testing.T) {
	rng := rand.New(rand.NewSource(40))
	for _, rank := range []int{1, 2} {
		w := mat.NewDense(40, 20, nil)
		for k := 0; k < rank; k++ {
			u := make([]float64, 40)
			v := make([]float64, 20)
			for i := range u {
				u[i] = rng.NormFloat64()
			}
			for i := range v {
				v[i] = rng.NormFloat64()
			}
			w.RankOne(w, 1, mat.NewVecDense(40, u), mat.NewVecDense(20, v))
		}

		rec := AnalyzeLayer(LayerDescriptor{Type: LayerDense, Weight: FromDense(w)}, DefaultOptions())
		require.True(t, rec.HasBeenAnalyzed)
		// the null space holds exact zeros, so at most rank-1 candidates remain
		assert.False(t, rec.AlphaDefined(), "rank %d: alpha %v xmin %v tail %d", rank, rec.Alpha, rec.XMin, rec.NumTail)
		assert.Less(t, rec.StableRank, float64(rank)+1e-9)
	}
}

func TestMeasureUsesMatrixStats(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	w := gaussian(rng, 30, 12)
	d, err := w.Dense()
	require.NoError(t, err)
	want := matstats.Compute(d)

	rec := AnalyzeLayer(LayerDescriptor{Type: LayerDense, Weight: w}, DefaultOptions())
	assert.InDelta(t, want.FrobeniusNormSq, rec.Norm, 1e-9)
	assert.InDelta(t, want.LogNorm, rec.LogNorm, 1e-12)
	assert.InDelta(t, want.SpectralNorm, rec.SpectralNorm, 1e-9)
	assert.InDelta(t, want.StableRank(), rec.StableRank, 1e-9)
}

func TestAnalyzeLayerOptionsOff(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	desc := LayerDescriptor{Type: LayerDense, Weight: gaussian(rng, 30, 10)}

	rec := AnalyzeLayer(desc, Options{})
	assert.True(t, rec.HasBeenAnalyzed)
	assert.Greater(t, rec.Norm, 0.0)
	assert.True(t, math.IsNaN(rec.SpectralNorm))
	assert.True(t, math.IsNaN(rec.StableRank))
	assert.True(t, math.IsNaN(rec.Alpha))
	assert.True(t, math.IsNaN(rec.AlphaWeighted))

	rec = AnalyzeLayer(desc, Options{ComputeSoftRanks: true})
	assert.False(t, math.IsNaN(rec.StableRank))
	assert.True(t, math.IsNaN(rec.Alpha))
}

func TestAnalyzeLayerNonFinite(t *testing.T) {
	data := []float64{1, 2, math.NaN(), 4, 5, 6}
	rec := AnalyzeLayer(LayerDescriptor{Type: LayerDense, Weight: NewMatrix(3, 2, data)}, DefaultOptions())
	assert.True(t, rec.HasBeenAnalyzed)
	assert.True(t, math.IsNaN(rec.Norm))
	assert.True(t, math.IsNaN(rec.SpectralNorm))
	assert.False(t, rec.AlphaDefined())
	assert.NotEmpty(t, rec.Err)
}

func TestAnalyzerCache(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	w := gaussian(rng, 40, 20)
	opts := DefaultOptions()
	opts.CacheSize = 8

	a, err := NewAnalyzer(opts)
	require.NoError(t, err)

	first := a.Analyze(LayerDescriptor{ID: 0, Name: "a", Type: LayerDense, Weight: w})
	assert.Equal(t, 1, a.cache.len())

	// same content under another id reuses the metrics
	shared := NewMatrix(40, 20, append([]float64(nil), w.Data...))
	second := a.Analyze(LayerDescriptor{ID: 1, Name: "b", Type: LayerDense, Weight: shared})
	assert.Equal(t, 1, a.cache.len())
	assert.Equal(t, 1, second.ID)
	assert.Equal(t, "b", second.Name)
	assert.Equal(t, math.Float64bits(first.Alpha), math.Float64bits(second.Alpha))
	assert.Equal(t, first.Norm, second.Norm)

	// different options are a different entry
	b, err := NewAnalyzer(opts)
	require.NoError(t, err)
	b.cache = a.cache
	b.opts.ComputeAlphas = false
	b.Analyze(LayerDescriptor{Type: LayerDense, Weight: w})
	assert.Equal(t, 2, a.cache.len())
}

func TestNewAnalyzerWithoutCache(t *testing.T) {
	a, err := NewAnalyzer(DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, a.cache)
}

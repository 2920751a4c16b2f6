package watcher

import (
	"math/rand"
)

func gaussian(rng *rand.Rand, r, c int) *Matrix {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return NewMatrix(r, c, data)
}

// mixedModel mirrors a small network: dense, conv (already unfolded),
// embedding and a bias vector.
func mixedModel(seed int64) SliceProvider {
	rng := rand.New(rand.NewSource(seed))
	return SliceProvider{
		{ID: 0, Name: "embed", Type: LayerOther, Weight: gaussian(rng, 64, 16)},
		{ID: 1, Name: "conv1", Type: LayerConv2D, Weight: gaussian(rng, 32, 27)},
		{ID: 2, Name: "fc1", Type: LayerDense, Weight: gaussian(rng, 80, 40)},
		{ID: 3, Name: "bias", Type: LayerOther, Weight: &Matrix{Shape: []int{40}, Data: make([]float64, 40)}},
		{ID: 4, Name: "fc2", Type: LayerDense, Weight: gaussian(rng, 20, 60)},
		{ID: 5, Name: "pool", Type: LayerUnknown},
		{ID: 6, Name: "conv2", Type: LayerConv2D, Weight: gaussian(rng, 16, 72)},
	}
}

package watcher

import (
	"runtime"

	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/powerlaw"
)

// Options configures one analysis call. Nothing here is process-wide.
type Options struct {
	// Layers filters by layer type. Zero accepts every type.
	Layers LayerTypeSet

	ComputeSpectralNorms bool
	ComputeSoftRanks     bool
	ComputeAlphas        bool

	// Multiprocessing analyzes layers on a pool of Workers goroutines.
	Multiprocessing bool
	Workers         int

	// AlphaFloor excludes smaller alphas from the compound alpha metrics.
	AlphaFloor    float64
	MinTailPoints int

	// CacheSize bounds the per-analyzer metrics cache. Zero disables it.
	CacheSize int

	Logger   *logger.Logger
	Progress func(done, total int)
}

func DefaultOptions() Options {
	return Options{
		Layers:               AllLayers,
		ComputeSpectralNorms: true,
		ComputeSoftRanks:     true,
		ComputeAlphas:        true,
		Workers:              runtime.NumCPU(),
		AlphaFloor:           1,
		MinTailPoints:        powerlaw.DefaultMinTail,
	}
}

func (o Options) needsSVD() bool {
	return o.ComputeSpectralNorms || o.ComputeSoftRanks || o.ComputeAlphas
}

func (o Options) workers() int {
	if !o.Multiprocessing || o.Workers < 1 {
		return 1
	}
	return o.Workers
}

func (o Options) minTail() int {
	if o.MinTailPoints < 2 {
		return powerlaw.DefaultMinTail
	}
	return o.MinTailPoints
}

func (o Options) log() *logger.Logger {
	if o.Logger == nil {
		return logger.Nop()
	}
	return o.Logger
}

// flags packs the options that change a layer's metrics, for cache keys.
func (o Options) flags() uint8 {
	var f uint8
	if o.ComputeSpectralNorms {
		f |= 1
	}
	if o.ComputeSoftRanks {
		f |= 2
	}
	if o.ComputeAlphas {
		f |= 4
	}
	return f
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LayersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weightwatcher_layers_total",
		Help: "Layers processed, by layer type and outcome",
	}, []string{"layer_type", "status"})

	FitUndefinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weightwatcher_fit_undefined_total",
		Help: "Power-law fits that had too few tail points or a degenerate spectrum",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weightwatcher_cache_hits_total",
		Help: "Layer metric cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weightwatcher_cache_misses_total",
		Help: "Layer metric cache misses",
	})

	ComparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weightwatcher_comparisons_total",
		Help: "Model comparisons, by metric family and verdict",
	}, []string{"family", "verdict"})

	EigenDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weightwatcher_eigen_duration_seconds",
		Help:    "Time spent in the eigen decomposition of one correlation matrix",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	SVDDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weightwatcher_svd_duration_seconds",
		Help:    "Time spent computing the spectral norm of one weight matrix",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	FitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weightwatcher_fit_duration_seconds",
		Help:    "Time spent fitting the power-law tail of one spectrum",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	LayerAlpha = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weightwatcher_layer_alpha",
		Help:    "Distribution of fitted power-law exponents",
		Buckets: []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 5, 6, 8, 12},
	})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weightwatcher_analysis_duration_seconds",
		Help:    "Wall time of one full model analysis",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weightwatcher_workers_busy",
		Help: "Layer analyses currently running",
	})
)

// RecordLayer counts one processed layer.
func RecordLayer(layerType, status string) {
	LayersTotal.WithLabelValues(layerType, status).Inc()
}

// RecordEigen records the duration of one eigen decomposition.
func RecordEigen(d time.Duration) {
	EigenDuration.Observe(d.Seconds())
}

// RecordSVD records the duration of one spectral norm computation.
func RecordSVD(d time.Duration) {
	SVDDuration.Observe(d.Seconds())
}

// RecordFit records a power-law fit. alpha is only observed when defined.
func RecordFit(d time.Duration, alpha float64, defined bool) {
	FitDuration.Observe(d.Seconds())
	if !defined {
		FitUndefinedTotal.Inc()
		return
	}
	LayerAlpha.Observe(alpha)
}

func RecordCache(hit bool) {
	if hit {
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
}

func RecordComparison(family, verdict string) {
	ComparisonsTotal.WithLabelValues(family, verdict).Inc()
}

func RecordAnalysis(d time.Duration) {
	AnalysisDuration.Observe(d.Seconds())
}

// WorkerStarted and WorkerDone bracket one layer analysis.
func WorkerStarted() { WorkersBusy.Inc() }

func WorkerDone() { WorkersBusy.Dec() }

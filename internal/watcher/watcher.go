// Package watcher analyzes the layers of a model through their weight
// spectra and reduces them to per-layer records and model-level summaries.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/metrics"
	"github.com/google/uuid"
)

var ErrNotAnalyzed = errors.New("analyze has not completed")

// Watcher runs analyses of one model. Each Analyze call replaces the
// previous details and summary.
type Watcher struct {
	provider LayerProvider
	opts     Options
	analyzer *Analyzer
	log      *logger.Logger

	mu       sync.RWMutex
	runID    string
	records  []LayerRecord
	summary  Summary
	analyzed bool
}

func New(provider LayerProvider, opts Options) (*Watcher, error) {
	if provider == nil {
		return nil, errors.New("nil layer provider")
	}
	a, err := NewAnalyzer(opts)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		provider: provider,
		opts:     opts,
		analyzer: a,
		log:      opts.log(),
	}, nil
}

// Analyze fetches the layers and returns one record per layer in provider
// order. Per-layer problems are recorded on the records. Errors come only
// from the provider or from ctx.
func (w *Watcher) Analyze(ctx context.Context) ([]LayerRecord, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := w.log.With("run_id", runID)

	descs, err := w.provider.Layers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}
	log.Info("analysis started", "layers", len(descs), "filter", w.opts.Layers.String(),
		"workers", w.opts.workers())

	records, err := w.analyzer.analyzeAll(ctx, descs)
	if err != nil {
		return nil, fmt.Errorf("analyze layers: %w", err)
	}
	summary := Summarize(records, w.opts)
	for _, warn := range summary.Warnings() {
		log.Warn("analysis warning", "warning", warn)
	}

	elapsed := time.Since(start)
	metrics.RecordAnalysis(elapsed)
	log.Info("analysis finished", "analyzed", summary.Analyzed(), "skipped", summary.Skipped(),
		"failed", summary.Failed(), "elapsed", elapsed.String())

	w.mu.Lock()
	w.runID = runID
	w.records = records
	w.summary = summary
	w.analyzed = true
	w.mu.Unlock()

	return cloneRecords(records), nil
}

// Details returns every layer record of the last analysis, analyzed or not.
func (w *Watcher) Details() ([]LayerRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.analyzed {
		return nil, ErrNotAnalyzed
	}
	return cloneRecords(w.records), nil
}

func (w *Watcher) Summary() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.summary
}

// RunID identifies the last analysis. It is empty before the first one.
func (w *Watcher) RunID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runID
}

func cloneRecords(r []LayerRecord) []LayerRecord {
	return append([]LayerRecord(nil), r...)
}

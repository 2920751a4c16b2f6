package watcher

import (
	"context"
	"sync"

	"github.com/23skdu/longbow-weightwatcher/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// analyzeAll returns one record per descriptor in input order. With more than
// one worker, records are computed concurrently and written by index, so the
// output is identical to the sequential path.
func (a *Analyzer) analyzeAll(ctx context.Context, descs []LayerDescriptor) ([]LayerRecord, error) {
	records := make([]LayerRecord, len(descs))
	progress := newProgress(a.opts.Progress, len(descs))

	workers := a.opts.workers()
	if workers == 1 {
		for i := range descs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			records[i] = a.analyzeTracked(descs[i])
			progress.done()
		}
		return records, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range descs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = a.analyzeTracked(descs[i])
			progress.done()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *Analyzer) analyzeTracked(desc LayerDescriptor) LayerRecord {
	metrics.WorkerStarted()
	defer metrics.WorkerDone()
	return a.Analyze(desc)
}

// progress serializes completion callbacks.
type progress struct {
	mu    sync.Mutex
	fn    func(done, total int)
	n     int
	total int
}

func newProgress(fn func(done, total int), total int) *progress {
	return &progress{fn: fn, total: total}
}

func (p *progress) done() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	p.fn(p.n, p.total)
}

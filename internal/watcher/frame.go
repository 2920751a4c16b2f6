package watcher

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DetailsFrame renders records as a dataframe, one row per layer.
func DetailsFrame(records []LayerRecord) dataframe.DataFrame {
	n := len(records)
	ids := make([]int, n)
	names := make([]string, n)
	types := make([]string, n)
	ns := make([]int, n)
	ms := make([]int, n)
	norm := make([]float64, n)
	lognorm := make([]float64, n)
	spec := make([]float64, n)
	rank := make([]float64, n)
	alpha := make([]float64, n)
	weighted := make([]float64, n)
	xmin := make([]float64, n)
	xmax := make([]float64, n)
	d := make([]float64, n)
	spikes := make([]int, n)
	analyzed := make([]bool, n)
	status := make([]string, n)

	for i, r := range records {
		ids[i] = r.ID
		names[i] = r.Name
		types[i] = r.Type.String()
		ns[i], ms[i] = r.N, r.M
		norm[i], lognorm[i] = r.Norm, r.LogNorm
		spec[i], rank[i] = r.SpectralNorm, r.StableRank
		alpha[i], weighted[i] = r.Alpha, r.AlphaWeighted
		xmin[i], xmax[i], d[i] = r.XMin, r.XMax, r.D
		spikes[i] = r.NumSpikes
		analyzed[i] = r.HasBeenAnalyzed
		status[i] = r.Status.String()
	}

	return dataframe.New(
		series.New(ids, series.Int, "layer_id"),
		series.New(names, series.String, "name"),
		series.New(types, series.String, "layer_type"),
		series.New(ns, series.Int, "N"),
		series.New(ms, series.Int, "M"),
		series.New(norm, series.Float, "norm"),
		series.New(lognorm, series.Float, "lognorm"),
		series.New(spec, series.Float, "spectralnorm"),
		series.New(rank, series.Float, "stable_rank"),
		series.New(alpha, series.Float, "alpha"),
		series.New(weighted, series.Float, "alpha_weighted"),
		series.New(xmin, series.Float, "xmin"),
		series.New(xmax, series.Float, "xmax"),
		series.New(d, series.Float, "D"),
		series.New(spikes, series.Int, "num_spikes"),
		series.New(analyzed, series.Bool, "has_been_analyzed"),
		series.New(status, series.String, "status"),
	)
}

// SummaryFrame renders the present summary keys as metric/value rows.
func SummaryFrame(s Summary) dataframe.DataFrame {
	keys := s.Keys()
	vals := make([]float64, len(keys))
	for i, k := range keys {
		vals[i], _ = s.Get(k)
	}
	return dataframe.New(
		series.New(keys, series.String, "metric"),
		series.New(vals, series.Float, "value"),
	)
}

// DetailsFrame is the dataframe form of Details.
func (w *Watcher) DetailsFrame() (dataframe.DataFrame, error) {
	records, err := w.Details()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return DetailsFrame(records), nil
}

func (w *Watcher) SummaryFrame() dataframe.DataFrame {
	return SummaryFrame(w.Summary())
}

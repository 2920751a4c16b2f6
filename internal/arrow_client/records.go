package arrow_client

import (
	"math"

	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var detailFloatColumns = []string{
	"norm", "lognorm", "spectralnorm", "stable_rank",
	"alpha", "alpha_weighted", "xmin", "xmax", "D",
}

// DetailsSchema is one row per layer. Metrics that are NaN are null.
func DetailsSchema(meta map[string]string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "layer_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "layer_type", Type: arrow.BinaryTypes.String},
		{Name: "N", Type: arrow.PrimitiveTypes.Int64},
		{Name: "M", Type: arrow.PrimitiveTypes.Int64},
	}
	for _, name := range detailFloatColumns {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	fields = append(fields,
		arrow.Field{Name: "num_spikes", Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: "has_been_analyzed", Type: arrow.FixedWidthTypes.Boolean},
		arrow.Field{Name: "status", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
	)
	return arrow.NewSchema(fields, schemaMetadata(meta))
}

func SummarySchema(meta map[string]string) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "metric", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, schemaMetadata(meta))
}

func schemaMetadata(meta map[string]string) *arrow.Metadata {
	if len(meta) == 0 {
		return nil
	}
	md := arrow.MetadataFrom(meta)
	return &md
}

// BuildDetailsRecord converts layer records to a record batch. The caller
// releases it.
func BuildDetailsRecord(mem memory.Allocator, records []watcher.LayerRecord, meta map[string]string) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewRecordBuilder(mem, DetailsSchema(meta))
	defer b.Release()

	for _, r := range records {
		b.Field(0).(*array.Int64Builder).Append(int64(r.ID))
		b.Field(1).(*array.StringBuilder).Append(r.Name)
		b.Field(2).(*array.StringBuilder).Append(r.Type.String())
		b.Field(3).(*array.Int64Builder).Append(int64(r.N))
		b.Field(4).(*array.Int64Builder).Append(int64(r.M))

		floats := []float64{
			r.Norm, r.LogNorm, r.SpectralNorm, r.StableRank,
			r.Alpha, r.AlphaWeighted, r.XMin, r.XMax, r.D,
		}
		for i, v := range floats {
			fb := b.Field(5 + i).(*array.Float64Builder)
			if math.IsNaN(v) {
				fb.AppendNull()
			} else {
				fb.Append(v)
			}
		}

		next := 5 + len(floats)
		b.Field(next).(*array.Int64Builder).Append(int64(r.NumSpikes))
		b.Field(next + 1).(*array.BooleanBuilder).Append(r.HasBeenAnalyzed)
		b.Field(next + 2).(*array.StringBuilder).Append(r.Status.String())
		eb := b.Field(next + 3).(*array.StringBuilder)
		if r.Err == "" {
			eb.AppendNull()
		} else {
			eb.Append(r.Err)
		}
	}
	return b.NewRecord()
}

// BuildSummaryRecord writes the present summary keys in display order.
func BuildSummaryRecord(mem memory.Allocator, s watcher.Summary, meta map[string]string) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewRecordBuilder(mem, SummarySchema(meta))
	defer b.Release()

	for _, k := range s.Keys() {
		v, _ := s.Get(k)
		b.Field(0).(*array.StringBuilder).Append(k)
		b.Field(1).(*array.Float64Builder).Append(v)
	}
	return b.NewRecord()
}

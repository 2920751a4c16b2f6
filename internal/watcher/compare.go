package watcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/metrics"
)

// Family is a group of metrics two models can be compared on. For every
// family a lower compound value is better.
type Family int

const (
	FamilyNorm Family = iota
	FamilySpectralNorm
	FamilySoftRank
	FamilyAlpha
)

func (f Family) String() string {
	switch f {
	case FamilyNorm:
		return "norm"
	case FamilySpectralNorm:
		return "spectralnorm"
	case FamilySoftRank:
		return "softrank"
	case FamilyAlpha:
		return "alpha"
	default:
		return "unknown"
	}
}

// Key is the summary key a family is decided on.
func (f Family) Key() string {
	switch f {
	case FamilySpectralNorm:
		return KeySpectralNormCompound
	case FamilySoftRank:
		return KeyStableRankCompound
	case FamilyAlpha:
		return KeyAlphaCompound
	default:
		return KeyNormCompound
	}
}

func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "norm":
		return FamilyNorm, nil
	case "spectralnorm", "spectral_norm":
		return FamilySpectralNorm, nil
	case "softrank", "stable_rank":
		return FamilySoftRank, nil
	case "alpha":
		return FamilyAlpha, nil
	default:
		return FamilyNorm, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
}

// Families returns the families opts asks to compare on. Norm is always
// included.
func Families(opts Options) []Family {
	fams := []Family{FamilyNorm}
	if opts.ComputeSpectralNorms {
		fams = append(fams, FamilySpectralNorm)
	}
	if opts.ComputeSoftRanks {
		fams = append(fams, FamilySoftRank)
	}
	if opts.ComputeAlphas {
		fams = append(fams, FamilyAlpha)
	}
	return fams
}

type FamilyVerdict struct {
	Family  Family
	A, B    float64
	HasA    bool
	HasB    bool
	ABetter bool
	Tie     bool
}

type ComparisonResult struct {
	Verdicts []FamilyVerdict
	// Better is true only when A is strictly better on every family.
	Better   bool
	SummaryA Summary
	SummaryB Summary

	// RunIDA and RunIDB identify the two analyses, DurationA and DurationB
	// time them. CompareSummaries leaves them empty.
	RunIDA, RunIDB       string
	DurationA, DurationB time.Duration
}

// Verdict returns the verdict for f, if f was compared.
func (r ComparisonResult) Verdict(f Family) (FamilyVerdict, bool) {
	for _, v := range r.Verdicts {
		if v.Family == f {
			return v, true
		}
	}
	return FamilyVerdict{}, false
}

// CompareSummaries decides each family. A tie or a value missing on either
// side means A is not better.
func CompareSummaries(a, b Summary, families []Family) ComparisonResult {
	res := ComparisonResult{SummaryA: a, SummaryB: b, Better: len(families) > 0}
	for _, f := range families {
		v := FamilyVerdict{Family: f}
		v.A, v.HasA = a.Get(f.Key())
		v.B, v.HasB = b.Get(f.Key())
		if v.HasA && v.HasB {
			v.Tie = v.A == v.B
			v.ABetter = v.A < v.B
		}
		verdict := "b_better"
		switch {
		case !v.HasA || !v.HasB:
			verdict = "absent"
		case v.Tie:
			verdict = "tie"
		case v.ABetter:
			verdict = "a_better"
		}
		metrics.RecordComparison(f.String(), verdict)
		res.Better = res.Better && v.ABetter
		res.Verdicts = append(res.Verdicts, v)
	}
	return res
}

// Compare analyzes both models with the same options and compares them on
// Families(opts).
func Compare(ctx context.Context, a, b LayerProvider, opts Options) (ComparisonResult, error) {
	return CompareOn(ctx, a, b, Families(opts), opts)
}

// CompareFamily reports whether model a is strictly better than b on one
// family.
func CompareFamily(ctx context.Context, a, b LayerProvider, family Family, opts Options) (bool, error) {
	res, err := CompareOn(ctx, a, b, []Family{family}, opts)
	if err != nil {
		return false, err
	}
	return res.Better, nil
}

// CompareOn analyzes both models and compares them on families. The compute
// flag each family depends on is switched on in opts.
func CompareOn(ctx context.Context, a, b LayerProvider, families []Family, opts Options) (ComparisonResult, error) {
	for _, f := range families {
		switch f {
		case FamilyNorm:
		case FamilySpectralNorm:
			opts.ComputeSpectralNorms = true
		case FamilySoftRank:
			opts.ComputeSoftRanks = true
		case FamilyAlpha:
			opts.ComputeAlphas = true
		default:
			return ComparisonResult{}, fmt.Errorf("%w: %d", ErrUnknownFamily, f)
		}
	}

	wa, da, err := analyzeTimed(ctx, a, opts)
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("analyze model A: %w", err)
	}
	wb, db, err := analyzeTimed(ctx, b, opts)
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("analyze model B: %w", err)
	}
	res := CompareSummaries(wa.Summary(), wb.Summary(), families)
	res.RunIDA, res.DurationA = wa.RunID(), da
	res.RunIDB, res.DurationB = wb.RunID(), db
	return res, nil
}

func analyzeTimed(ctx context.Context, p LayerProvider, opts Options) (*Watcher, time.Duration, error) {
	w, err := New(p, opts)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	_, err = w.Analyze(ctx)
	return w, time.Since(start), err
}

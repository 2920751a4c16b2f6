package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("cyan")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	dimStyle    = cellStyle.Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
	betterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	worseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
)

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 5, 64)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

// renderDetails prints one row per layer. Columns after the layer type are
// right aligned numbers.
func renderDetails(records []watcher.LayerRecord) string {
	t := newTable("id", "name", "type", "status", "N", "M", "alpha", "alpha_w", "D",
		"stable_rank", "spectral", "lognorm", "spikes")
	for _, r := range records {
		f := formatFloat
		if !r.HasBeenAnalyzed {
			f = func(float64) string { return "-" }
		}
		t.Row(
			strconv.Itoa(r.ID), r.Name, r.Type.String(), r.Status.String(),
			strconv.Itoa(r.N), strconv.Itoa(r.M),
			f(r.Alpha), f(r.AlphaWeighted), f(r.D),
			f(r.StableRank), f(r.SpectralNorm), f(r.LogNorm),
			strconv.Itoa(r.NumSpikes),
		)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case row >= 0 && row < len(records) && records[row].Status != watcher.StatusAnalyzed:
			return dimStyle
		case col >= 4:
			return numberStyle
		default:
			return cellStyle
		}
	})
	return t.Render()
}

func renderSummary(s watcher.Summary) string {
	t := newTable("metric", "value")
	for _, k := range s.Keys() {
		v, _ := s.Get(k)
		t.Row(k, formatFloat(v))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 1 {
			return numberStyle
		}
		return cellStyle
	})
	counts := fmt.Sprintf("%d analyzed, %d skipped, %d failed", s.Analyzed(), s.Skipped(), s.Failed())
	return titleStyle.Render("Summary") + " " + dimStyle.Render(counts) + "\n" + t.Render()
}

func renderVerdicts(nameA, nameB string, res watcher.ComparisonResult) string {
	t := newTable("family", nameA, nameB, "verdict")
	for _, v := range res.Verdicts {
		a, b := "-", "-"
		if v.HasA {
			a = formatFloat(v.A)
		}
		if v.HasB {
			b = formatFloat(v.B)
		}
		t.Row(v.Family.String(), a, b, verdictText(v))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1 || col == 2:
			return numberStyle
		default:
			return cellStyle
		}
	})

	overall := worseStyle.Render(nameA + " is not better than " + nameB)
	if res.Better {
		overall = betterStyle.Render(nameA + " is better than " + nameB)
	}
	return t.Render() + "\n" + overall
}

func verdictText(v watcher.FamilyVerdict) string {
	switch {
	case !v.HasA || !v.HasB:
		return "absent"
	case v.Tie:
		return "tie"
	case v.ABetter:
		return "A better"
	default:
		return "B better"
	}
}

func renderInfo(path string, info gguf.ModelInfo) string {
	t := newTable("field", "value")
	t.Row("path", path)
	t.Row("architecture", info.Architecture)
	t.Row("name", info.Name)
	t.Row("gguf version", strconv.FormatUint(uint64(info.Version), 10))
	t.Row("alignment", strconv.FormatUint(info.Alignment, 10))
	t.Row("blocks", strconv.Itoa(info.BlockCount))
	t.Row("context length", humanize.Comma(int64(info.ContextLength)))
	t.Row("embedding length", humanize.Comma(int64(info.EmbeddingLength)))
	t.Row("tensors", humanize.Comma(int64(info.TensorCount)))
	t.Row("parameters", humanize.SIWithDigits(float64(info.Parameters), 2, ""))
	t.Row("tensor data", humanize.IBytes(uint64(info.Bytes)))
	t.Row("types", info.TypeSummary())
	t.Row("undecodable tensors", strconv.Itoa(len(info.Unsupported)))
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	return t.Render()
}

type jsonRecord struct {
	ID              int      `json:"layer_id"`
	Name            string   `json:"name"`
	Type            string   `json:"layer_type"`
	Status          string   `json:"status"`
	N               int      `json:"N"`
	M               int      `json:"M"`
	Norm            *float64 `json:"norm"`
	LogNorm         *float64 `json:"lognorm"`
	SpectralNorm    *float64 `json:"spectralnorm"`
	StableRank      *float64 `json:"stable_rank"`
	Alpha           *float64 `json:"alpha"`
	AlphaWeighted   *float64 `json:"alpha_weighted"`
	XMin            *float64 `json:"xmin"`
	XMax            *float64 `json:"xmax"`
	D               *float64 `json:"D"`
	Sigma           *float64 `json:"sigma"`
	NumTail         int      `json:"num_tail"`
	NumSpikes       int      `json:"num_spikes"`
	HasBeenAnalyzed bool     `json:"has_been_analyzed"`
	Error           string   `json:"error,omitempty"`
}

type jsonReport struct {
	Model    string             `json:"model"`
	RunID    string             `json:"run_id"`
	Analyzed int                `json:"analyzed"`
	Skipped  int                `json:"skipped"`
	Failed   int                `json:"failed"`
	Summary  map[string]float64 `json:"summary"`
	Warnings []string           `json:"warnings,omitempty"`
	Details  []jsonRecord       `json:"details"`
}

// finite maps NaN and infinities to JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func writeJSON(w io.Writer, model, runID string, records []watcher.LayerRecord, s watcher.Summary) error {
	rep := jsonReport{
		Model:    model,
		RunID:    runID,
		Analyzed: s.Analyzed(),
		Skipped:  s.Skipped(),
		Failed:   s.Failed(),
		Summary:  s.Map(),
		Details:  make([]jsonRecord, 0, len(records)),
	}
	for _, warn := range s.Warnings() {
		rep.Warnings = append(rep.Warnings, warn.Error())
	}
	for _, r := range records {
		num := finite
		if !r.HasBeenAnalyzed {
			num = func(float64) *float64 { return nil }
		}
		rep.Details = append(rep.Details, jsonRecord{
			ID: r.ID, Name: r.Name, Type: r.Type.String(), Status: r.Status.String(),
			N: r.N, M: r.M,
			Norm: num(r.Norm), LogNorm: num(r.LogNorm),
			SpectralNorm: num(r.SpectralNorm), StableRank: num(r.StableRank),
			Alpha: num(r.Alpha), AlphaWeighted: num(r.AlphaWeighted),
			XMin: num(r.XMin), XMax: num(r.XMax), D: num(r.D), Sigma: num(r.Sigma),
			NumTail: r.NumTail, NumSpikes: r.NumSpikes,
			HasBeenAnalyzed: r.HasBeenAnalyzed, Error: r.Err,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

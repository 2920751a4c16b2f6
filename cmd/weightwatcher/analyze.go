package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/arrow_client"
	"github.com/23skdu/longbow-weightwatcher/internal/config"
	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type analyzeFlags struct {
	json         bool
	summaryOnly  bool
	tensorFilter string
	noProgress   bool
	flightPrefix string
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <model.gguf | ollama-ref>",
		Short: "Analyze every layer of a model and print details and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.json, "json", false, "print JSON instead of tables")
	fl.BoolVar(&f.summaryOnly, "summary-only", false, "omit the per-layer table")
	fl.StringVar(&f.tensorFilter, "tensor-filter", "", "only analyze tensors matching this glob, e.g. 'blk.*.ffn_*'")
	fl.BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
	fl.String("flight-addr", "", "publish details and summary to this Arrow Flight server")
	fl.StringVar(&f.flightPrefix, "flight-prefix", "weightwatcher", "first element of the Flight descriptor path")
	_ = a.v.BindPFlag(config.KeyFlightAddr, fl.Lookup("flight-addr"))
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, arg string, f analyzeFlags) error {
	ctx, cancel := a.context()
	defer cancel()

	file, path, err := a.openModel(arg)
	if err != nil {
		return err
	}
	defer file.Close()

	opts := a.cfg.Options(a.log)
	provider, err := gguf.NewProvider(file,
		gguf.WithTensorFilter(f.tensorFilter),
		gguf.WithLayerTypes(opts.Layers),
		gguf.WithLogger(a.log))
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !f.noProgress && !f.json {
		bar = newProgressBar("analyzing")
		opts.Progress = func(done, total int) {
			bar.ChangeMax(total)
			_ = bar.Set(done)
		}
	}

	w, err := watcher.New(provider, opts)
	if err != nil {
		return err
	}
	start := time.Now()
	records, err := w.Analyze(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	summary := w.Summary()
	model := modelName(arg, path)
	if a.health != nil {
		a.health.RecordAnalysis(model, w.RunID(), summary, time.Since(start), err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.json {
		if err := writeJSON(out, model, w.RunID(), records, summary); err != nil {
			return err
		}
	} else {
		if !f.summaryOnly {
			fmt.Fprintln(out, renderDetails(records))
		}
		fmt.Fprintln(out, renderSummary(summary))
		for _, warn := range summary.Warnings() {
			fmt.Fprintln(out, warnStyle.Render("warning: "+warn.Error()))
		}
	}

	if a.cfg.FlightAddr != "" {
		if err := a.publish(cmd, f.flightPrefix, model, w.RunID(), records, summary); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) publish(cmd *cobra.Command, prefix, model, runID string, records []watcher.LayerRecord, s watcher.Summary) error {
	ctx, cancel := a.context()
	defer cancel()

	fc, err := arrow_client.NewFlightClient(a.cfg.FlightAddr, a.log)
	if err != nil {
		return err
	}
	if err := fc.Connect(ctx); err != nil {
		return err
	}
	defer fc.Close()

	if err := arrow_client.PublishAnalysis(ctx, fc, prefix, model, runID, records, s); err != nil {
		return err
	}
	a.log.Info("published analysis", "addr", a.cfg.FlightAddr, "model", model, "run_id", runID)
	return nil
}

func newProgressBar(desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("layers"),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
}

// modelName is the ollama reference when one was given, else the file name
// without extension.
func modelName(arg, path string) string {
	if arg != path {
		return arg
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

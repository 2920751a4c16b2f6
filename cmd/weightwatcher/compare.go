package main

import (
	"fmt"

	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/spf13/cobra"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		family       string
		tensorFilter string
	)
	cmd := &cobra.Command{
		Use:   "compare <model-a> <model-b>",
		Short: "Report whether model A is better than model B on the summary metrics",
		Long: `compare analyzes both models with the same options. Lower values are better
for every metric family. A is better only when it is strictly better on every
compared family.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			fa, pathA, err := a.openModel(args[0])
			if err != nil {
				return err
			}
			defer fa.Close()
			fb, pathB, err := a.openModel(args[1])
			if err != nil {
				return err
			}
			defer fb.Close()

			opts := a.cfg.Options(a.log)
			pa, err := gguf.NewProvider(fa, gguf.WithTensorFilter(tensorFilter),
				gguf.WithLayerTypes(opts.Layers), gguf.WithLogger(a.log))
			if err != nil {
				return err
			}
			pb, err := gguf.NewProvider(fb, gguf.WithTensorFilter(tensorFilter),
				gguf.WithLayerTypes(opts.Layers), gguf.WithLogger(a.log))
			if err != nil {
				return err
			}

			families := watcher.Families(opts)
			if family != "" {
				fam, err := watcher.ParseFamily(family)
				if err != nil {
					return err
				}
				families = []watcher.Family{fam}
			}

			res, err := watcher.CompareOn(ctx, pa, pb, families, opts)
			a.recordComparison(modelName(args[0], pathA), modelName(args[1], pathB), res, err)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if family != "" {
				fmt.Fprintln(out, res.Better)
				return nil
			}
			fmt.Fprintln(out, renderVerdicts("A", "B", res))
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "compare on one family only (norm, spectralnorm, softrank, alpha) and print true or false")
	cmd.Flags().StringVar(&tensorFilter, "tensor-filter", "", "only analyze tensors matching this glob")
	return cmd
}

// recordComparison reports both analyses of a comparison to the health
// monitor, or the failure when either one did not finish.
func (a *app) recordComparison(nameA, nameB string, res watcher.ComparisonResult, err error) {
	if a.health == nil {
		return
	}
	if err != nil {
		a.health.RecordAnalysis(nameA+" vs "+nameB, "", watcher.Summary{}, 0, err)
		return
	}
	a.health.RecordAnalysis(nameA, res.RunIDA, res.SummaryA, res.DurationA, nil)
	a.health.RecordAnalysis(nameB, res.RunIDB, res.SummaryB, res.DurationB, nil)
}

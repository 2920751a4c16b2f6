package main

import (
	"fmt"

	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <model.gguf | ollama-ref>",
		Short: "Describe a GGUF model without analyzing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, path, err := a.openModel(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			fmt.Fprintln(cmd.OutOrStdout(), renderInfo(path, gguf.Describe(f)))
			return nil
		},
	}
}

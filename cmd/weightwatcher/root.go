package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/config"
	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/monitoring"
	"github.com/23skdu/longbow-weightwatcher/internal/ollama"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// app is shared by every subcommand. PersistentPreRunE fills cfg and log.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *logger.Logger
	health  *monitoring.HealthMonitor
	out     io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), out: os.Stdout}
	d := config.Default()

	root := &cobra.Command{
		Use:   "weightwatcher",
		Short: "Spectral diagnostics for neural network weights",
		Long: `weightwatcher inspects the eigenvalue spectra of a model's weight matrices
and reports per-layer power-law exponents, norms and ranks, plus model level
summaries that can be compared across models without any test data.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.health == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.health.Stop(ctx)
		},
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML config file")
	pf.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	pf.String("log-format", d.LogFormat, "log format (console, json)")
	pf.String("metrics-addr", "", "serve /metrics and /health on this address")
	pf.StringSlice("layers", d.Layers, "layer types to analyze (DENSE, CONV2D, OTHER or all)")
	pf.Bool("spectralnorms", d.ComputeSpectralNorms, "compute spectral norms")
	pf.Bool("softranks", d.ComputeSoftRanks, "compute stable ranks")
	pf.Bool("alphas", d.ComputeAlphas, "fit power-law exponents")
	pf.Bool("multiprocessing", d.Multiprocessing, "analyze layers in parallel")
	pf.Int("workers", d.Workers, "parallel workers when multiprocessing")
	pf.Float64("alpha-floor", d.AlphaFloor, "minimum alpha included in compound summaries")
	pf.Int("min-tail", d.MinTailPoints, "minimum eigenvalues in a power-law tail")
	pf.Int("cache-size", d.CacheSize, "layer metric cache entries (0 disables)")
	pf.Duration("timeout", d.Timeout, "abort after this long (0 means no limit)")

	bind := map[string]string{
		config.KeyLogLevel:        "log-level",
		config.KeyLogFormat:       "log-format",
		config.KeyMetricsAddr:     "metrics-addr",
		config.KeyLayers:          "layers",
		config.KeySpectralNorms:   "spectralnorms",
		config.KeySoftRanks:       "softranks",
		config.KeyAlphas:          "alphas",
		config.KeyMultiprocessing: "multiprocessing",
		config.KeyWorkers:         "workers",
		config.KeyAlphaFloor:      "alpha-floor",
		config.KeyMinTail:         "min-tail",
		config.KeyCacheSize:       "cache-size",
		config.KeyTimeout:         "timeout",
	}
	for key, flag := range bind {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newAnalyzeCmd(a),
		newCompareCmd(a),
		newInfoCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "weightwatcher %s\n", version)
			},
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile, a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logger.Log = a.log

	if cfg.MetricsAddr != "" {
		a.health = monitoring.NewHealthMonitor(version, a.log)
		go func() {
			if err := a.health.Start(cfg.MetricsAddr); err != nil {
				a.log.Error("health monitor stopped", "error", err)
			}
		}()
	}
	return nil
}

// context is cancelled on SIGINT/SIGTERM and after the configured timeout.
func (a *app) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if a.cfg.Timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// openModel accepts a GGUF path or an ollama model reference.
func (a *app) openModel(arg string) (*gguf.File, string, error) {
	resolver, err := ollama.NewResolver()
	if err != nil {
		return nil, "", err
	}
	path, err := resolver.Locate(arg)
	if err != nil {
		return nil, "", err
	}
	if path != arg {
		a.log.Info("resolved ollama model", "model", arg, "path", path)
	}
	f, err := gguf.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	return f, path, nil
}

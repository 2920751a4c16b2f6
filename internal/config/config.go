package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/powerlaw"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/spf13/viper"
)

// Viper keys. Flags and WEIGHTWATCHER_* environment variables bind to these.
const (
	KeyLayers          = "layers"
	KeySpectralNorms   = "spectralnorms"
	KeySoftRanks       = "softranks"
	KeyAlphas          = "alphas"
	KeyMultiprocessing = "multiprocessing"
	KeyWorkers         = "workers"
	KeyAlphaFloor      = "alpha_floor"
	KeyMinTail         = "min_tail"
	KeyCacheSize       = "cache_size"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyMetricsAddr     = "metrics_addr"
	KeyFlightAddr      = "flight_addr"
	KeyTimeout         = "timeout"
)

const EnvPrefix = "WEIGHTWATCHER"

type Config struct {
	Layers []string

	ComputeSpectralNorms bool
	ComputeSoftRanks     bool
	ComputeAlphas        bool

	Multiprocessing bool
	Workers         int

	AlphaFloor    float64
	MinTailPoints int
	CacheSize     int

	LogLevel  string
	LogFormat string

	MetricsAddr string
	FlightAddr  string

	Timeout time.Duration
}

func (c *Config) Validate() error {
	if _, err := watcher.ParseLayerTypeSet(c.Layers); err != nil {
		return fmt.Errorf("invalid layers: %w", err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d (must be positive)", c.Workers)
	}
	if c.AlphaFloor < 0 {
		return fmt.Errorf("invalid alpha_floor: %f (must be non-negative)", c.AlphaFloor)
	}
	if c.MinTailPoints < 2 {
		return fmt.Errorf("invalid min_tail: %d (must be at least 2)", c.MinTailPoints)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid cache_size: %d (must be non-negative)", c.CacheSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s (must be non-negative)", c.Timeout)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}
	return nil
}

func Default() Config {
	return Config{
		Layers:               []string{"all"},
		ComputeSpectralNorms: true,
		ComputeSoftRanks:     true,
		ComputeAlphas:        true,
		Workers:              runtime.NumCPU(),
		AlphaFloor:           1,
		MinTailPoints:        powerlaw.DefaultMinTail,
		CacheSize:            256,
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// SetDefaults registers Default() on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyLayers, d.Layers)
	v.SetDefault(KeySpectralNorms, d.ComputeSpectralNorms)
	v.SetDefault(KeySoftRanks, d.ComputeSoftRanks)
	v.SetDefault(KeyAlphas, d.ComputeAlphas)
	v.SetDefault(KeyMultiprocessing, d.Multiprocessing)
	v.SetDefault(KeyWorkers, d.Workers)
	v.SetDefault(KeyAlphaFloor, d.AlphaFloor)
	v.SetDefault(KeyMinTail, d.MinTailPoints)
	v.SetDefault(KeyCacheSize, d.CacheSize)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyMetricsAddr, d.MetricsAddr)
	v.SetDefault(KeyFlightAddr, d.FlightAddr)
	v.SetDefault(KeyTimeout, d.Timeout)
}

// Load reads an optional YAML file into v and returns the merged, validated
// config. Precedence is flags bound to v, then environment, then the file,
// then defaults.
func Load(path string, v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg := Config{
		Layers:               v.GetStringSlice(KeyLayers),
		ComputeSpectralNorms: v.GetBool(KeySpectralNorms),
		ComputeSoftRanks:     v.GetBool(KeySoftRanks),
		ComputeAlphas:        v.GetBool(KeyAlphas),
		Multiprocessing:      v.GetBool(KeyMultiprocessing),
		Workers:              v.GetInt(KeyWorkers),
		AlphaFloor:           v.GetFloat64(KeyAlphaFloor),
		MinTailPoints:        v.GetInt(KeyMinTail),
		CacheSize:            v.GetInt(KeyCacheSize),
		LogLevel:             v.GetString(KeyLogLevel),
		LogFormat:            v.GetString(KeyLogFormat),
		MetricsAddr:          v.GetString(KeyMetricsAddr),
		FlightAddr:           v.GetString(KeyFlightAddr),
		Timeout:              v.GetDuration(KeyTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options converts the config into engine options. The layer filter has
// already been checked by Validate.
func (c *Config) Options(log *logger.Logger) watcher.Options {
	layers, _ := watcher.ParseLayerTypeSet(c.Layers)
	return watcher.Options{
		Layers:               layers,
		ComputeSpectralNorms: c.ComputeSpectralNorms,
		ComputeSoftRanks:     c.ComputeSoftRanks,
		ComputeAlphas:        c.ComputeAlphas,
		Multiprocessing:      c.Multiprocessing,
		Workers:              c.Workers,
		AlphaFloor:           c.AlphaFloor,
		MinTailPoints:        c.MinTailPoints,
		CacheSize:            c.CacheSize,
		Logger:               log,
	}
}

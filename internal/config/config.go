// Package config loads benchmark settings from flags, SHABENCH_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/stats"
	"github.com/stormycloud/shabench/internal/validate"
)

const (
	appDirName = "shabench"
	configName = "shabench"
	envPrefix  = "SHABENCH"
)

// Config keys.
const (
	KeyBackend        = "backend"
	KeyBatchSize      = "batch.size"
	KeyBatchInput     = "batch.input"
	KeyBatchReuse     = "batch.reuse"
	KeyCPUWorkers     = "cpu.workers"
	KeyGPUDevice      = "gpu.device"
	KeyGPUGroupWidth  = "gpu.group_width"
	KeyGPUChunkSize   = "gpu.chunk_size"
	KeyValidatePolicy = "validate.policy"
	KeySpotCheck      = "validate.spot_check"
	KeyReportEvery    = "report.every"
	KeyReportUnit     = "report.unit"
	KeyMaxIterations  = "run.max_iterations"
	KeyRetryAttempts  = "retry.attempts"
	KeyRetryBackoff   = "retry.backoff"
	KeyRetryReset     = "retry.reset_session"
	KeyLogLevel       = "log.level"
	KeyLogFile        = "log.file"
	KeyLogMaxSizeKB   = "log.max_size_kb"
	KeyLogMaxFiles    = "log.max_files"
	KeyMetricsAddr    = "metrics.addr"
)

var defaults = map[string]any{
	KeyBackend:        string(backend.KindCPU),
	KeyBatchSize:      32768,
	KeyBatchInput:     "hello1",
	KeyBatchReuse:     false,
	KeyCPUWorkers:     8,
	KeyGPUDevice:      "",
	KeyGPUGroupWidth:  64,
	KeyGPUChunkSize:   1,
	KeyValidatePolicy: string(validate.DefaultPolicy),
	KeySpotCheck:      true,
	KeyReportEvery:    1000,
	KeyReportUnit:     string(stats.UnitAuto),
	KeyMaxIterations:  0,
	KeyRetryAttempts:  0,
	KeyRetryBackoff:   100 * time.Millisecond,
	KeyRetryReset:     true,
	KeyLogLevel:       "info",
	KeyLogFile:        "",
	KeyLogMaxSizeKB:   10240,
	KeyLogMaxFiles:    3,
	KeyMetricsAddr:    "",
}

// Default returns the built-in value of key.
func Default(key string) any { return defaults[key] }

// Config holds one run's settings.
type Config struct {
	Backend    string         `mapstructure:"backend"`
	Batch      BatchConfig    `mapstructure:"batch"`
	CPU        CPUConfig      `mapstructure:"cpu"`
	GPU        GPUConfig      `mapstructure:"gpu"`
	Validation ValidateConfig `mapstructure:"validate"`
	Report     ReportConfig   `mapstructure:"report"`
	Run        RunConfig      `mapstructure:"run"`
	Retry      RetryConfig    `mapstructure:"retry"`
	Log        LogConfig      `mapstructure:"log"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type BatchConfig struct {
	Size  int    `mapstructure:"size"`
	Input string `mapstructure:"input"`
	Reuse bool   `mapstructure:"reuse"`
}

type CPUConfig struct {
	Workers int `mapstructure:"workers"` // 0 means one per logical CPU
}

type GPUConfig struct {
	Device     string `mapstructure:"device"`
	GroupWidth int    `mapstructure:"group_width"`
	ChunkSize  int    `mapstructure:"chunk_size"`
}

type ValidateConfig struct {
	Policy    string `mapstructure:"policy"`
	SpotCheck bool   `mapstructure:"spot_check"`
}

type ReportConfig struct {
	Every int    `mapstructure:"every"`
	Unit  string `mapstructure:"unit"`
}

type RunConfig struct {
	MaxIterations uint64 `mapstructure:"max_iterations"`
}

type RetryConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	Backoff      time.Duration `mapstructure:"backoff"`
	ResetSession bool          `mapstructure:"reset_session"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	MaxSizeKB int64  `mapstructure:"max_size_kb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// NewViper returns a viper instance with defaults and environment binding
// in place.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, or shabench.{yaml,toml,json} from Dir and the working
// directory when file is empty, and decodes the merged settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" {
		log.Debugf("Loaded config from %s", cfg.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the benchmark cannot run with.
func (c *Config) Validate() error {
	if _, err := backend.ParseKind(c.Backend); err != nil {
		return err
	}
	if _, err := validate.ParsePolicy(c.Validation.Policy); err != nil {
		return err
	}
	if _, err := stats.ParseUnit(c.Report.Unit); err != nil {
		return err
	}

	switch {
	case c.Batch.Size < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyBatchSize, c.Batch.Size)
	case c.CPU.Workers < 0:
		return fmt.Errorf("%s must not be negative, got %d", KeyCPUWorkers, c.CPU.Workers)
	case c.GPU.GroupWidth < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyGPUGroupWidth, c.GPU.GroupWidth)
	case c.GPU.ChunkSize < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyGPUChunkSize, c.GPU.ChunkSize)
	case c.Report.Every < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyReportEvery, c.Report.Every)
	case c.Retry.Attempts < 0:
		return fmt.Errorf("%s must not be negative, got %d", KeyRetryAttempts, c.Retry.Attempts)
	case c.Retry.Backoff < 0:
		return fmt.Errorf("%s must not be negative, got %v", KeyRetryBackoff, c.Retry.Backoff)
	case c.Log.MaxFiles < 0:
		return fmt.Errorf("%s must not be negative, got %d", KeyLogMaxFiles, c.Log.MaxFiles)
	}
	return nil
}

// Workers resolves the CPU pool width.
func (c *Config) Workers() int {
	if c.CPU.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.CPU.Workers
}

// Dir is the per-user configuration directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

// DefaultFile is where Save writes when no path is given.
func DefaultFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+".yaml"), nil
}

// Save writes the current settings of v to path, creating the directory if
// needed. It refuses to overwrite an existing file.
func Save(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return v.SafeWriteConfigAs(path)
}

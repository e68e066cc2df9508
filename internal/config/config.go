// Package config loads docconv settings from a config file, the environment
// and .env, plus the presets and watch-rule files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ah-its-andy/docconv/internal/converter"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
)

// EnvPrefix prefixes every environment override, e.g. DOCCONV_WORKERS or
// DOCCONV_DAEMON_HTTP_ADDR.
const EnvPrefix = "DOCCONV"

// Isolation modes for the worker pool. Process is the default; inprocess
// runs every engine inside the calling process.
const (
	IsolationInProcess = "inprocess"
	IsolationProcess   = "process"
)

type Config struct {
	Workers     int                `mapstructure:"workers"`
	Quality     string             `mapstructure:"quality"`
	OutputDir   string             `mapstructure:"output_dir"`
	TempDir     string             `mapstructure:"temp_dir"`
	Isolation   string             `mapstructure:"isolation"`
	Timeouts    converter.Timeouts `mapstructure:"timeouts"`
	Engines     EnginesConfig      `mapstructure:"engines"`
	Log         LogConfig          `mapstructure:"log"`
	PresetsFile string             `mapstructure:"presets_file"`
	WatchFile   string             `mapstructure:"watch_file"`
	Daemon      DaemonConfig       `mapstructure:"daemon"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type EnginesConfig struct {
	PDFPriority []string          `mapstructure:"pdf_priority"`
	Disabled    []string          `mapstructure:"disabled"`
	Tools       map[string]string `mapstructure:"tools"`
	PDFEngine   string            `mapstructure:"pdf_engine"`
	Font        string            `mapstructure:"font"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DaemonConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	DBPath         string        `mapstructure:"db_path"`
	MD5ChunkSize   int64         `mapstructure:"md5_chunk_size"`
	StabilityDelay time.Duration `mapstructure:"stability_delay"`
	QueueSize      int           `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", 0)
	v.SetDefault("quality", string(domain.QualityBalanced))
	v.SetDefault("output_dir", "./converted")
	v.SetDefault("temp_dir", "")
	v.SetDefault("isolation", IsolationProcess)
	v.SetDefault("timeouts.low", converter.DefaultTimeouts.Low)
	v.SetDefault("timeouts.balanced", converter.DefaultTimeouts.Balanced)
	v.SetDefault("timeouts.high", converter.DefaultTimeouts.High)
	v.SetDefault("engines.pdf_priority", choiceNames(engine.DefaultPDFPriority))
	v.SetDefault("engines.disabled", []string{})
	v.SetDefault("engines.pdf_engine", "")
	v.SetDefault("engines.font", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("presets_file", "presets.yaml")
	v.SetDefault("watch_file", "watch.yaml")
	v.SetDefault("daemon.http_addr", ":8000")
	v.SetDefault("daemon.db_path", "docconv.db")
	v.SetDefault("daemon.md5_chunk_size", 4*1024*1024)
	v.SetDefault("daemon.stability_delay", time.Second)
	v.SetDefault("daemon.queue_size", 100)
}

// Load reads .env (if present), then the config file, then DOCCONV_*
// environment variables. An empty path searches ./docconv.yaml and
// ~/.config/docconv/docconv.yaml; a missing file there is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docconv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "docconv"))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// AutomaticEnv does not split lists
	if s := os.Getenv(EnvPrefix + "_ENGINES_PDF_PRIORITY"); s != "" {
		cfg.Engines.PDFPriority = splitList(s)
	}
	if s := os.Getenv(EnvPrefix + "_ENGINES_DISABLED"); s != "" {
		cfg.Engines.Disabled = splitList(s)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate returns every problem found; an empty slice means the config is
// usable.
func (c *Config) Validate() []string {
	var errs []string
	if c.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}
	if _, err := domain.ParseQuality(c.Quality); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Isolation {
	case IsolationInProcess, IsolationProcess:
	default:
		errs = append(errs, fmt.Sprintf("isolation must be %q or %q, got %q", IsolationInProcess, IsolationProcess, c.Isolation))
	}
	if _, err := c.PDFPriority(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.DisabledEngines(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Engines.Font != "" {
		if _, err := os.Stat(c.Engines.Font); err != nil {
			errs = append(errs, fmt.Sprintf("engines.font: %v", err))
		}
	}
	t := c.Timeouts
	if t.Low < 0 || t.Balanced < 0 || t.High < 0 {
		errs = append(errs, "timeouts must not be negative")
	}
	for q, d := range map[domain.Quality]time.Duration{domain.QualityLow: t.Low, domain.QualityBalanced: t.Balanced, domain.QualityHigh: t.High} {
		if d > 0 && d < time.Second {
			errs = append(errs, fmt.Sprintf("timeouts.%s is below one second", q))
		}
	}
	if t.For(domain.QualityLow) > t.For(domain.QualityBalanced) || t.For(domain.QualityBalanced) > t.For(domain.QualityHigh) {
		errs = append(errs, "timeouts must not shrink as quality rises")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Daemon.MD5ChunkSize <= 0 {
		errs = append(errs, "daemon.md5_chunk_size must be positive")
	}
	return errs
}

// QualityLevel returns the configured default quality.
func (c *Config) QualityLevel() domain.Quality {
	q, err := domain.ParseQuality(c.Quality)
	if err != nil {
		return domain.QualityBalanced
	}
	return q
}

func (c *Config) PDFPriority() ([]engine.Choice, error) {
	return engine.ParsePriority(c.Engines.PDFPriority)
}

func (c *Config) DisabledEngines() ([]engine.Choice, error) {
	out := make([]engine.Choice, 0, len(c.Engines.Disabled))
	for _, name := range c.Engines.Disabled {
		ch, err := engine.ParseChoice(name)
		if err != nil {
			return nil, fmt.Errorf("engines.disabled: %w", err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// ConverterOptions builds the per-worker converter settings. Worker is
// filled in by the pool.
func (c *Config) ConverterOptions(tracker converter.Tracker, logger zerolog.Logger) (converter.Options, error) {
	prio, err := c.PDFPriority()
	if err != nil {
		return converter.Options{}, err
	}
	disabled, err := c.DisabledEngines()
	if err != nil {
		return converter.Options{}, err
	}
	return converter.Options{
		TempRoot:    c.TempDir,
		Timeouts:    c.Timeouts,
		PDFPriority: prio,
		Toolbox: converter.ToolboxOptions{
			ToolPaths: c.Engines.Tools,
			Disabled:  disabled,
			PDFEngine: c.Engines.PDFEngine,
			Font:      c.Engines.Font,
		},
		Tracker: tracker,
		Logger:  logger,
	}, nil
}

func choiceNames(cs []engine.Choice) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

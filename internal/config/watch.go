package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// DefaultDebounce applies when neither a rule nor the file sets one.
const DefaultDebounce = 2 * time.Second

// Rule tells the watcher what to do with files appearing in one directory.
type Rule struct {
	Name         string        `yaml:"name" json:"name"`
	WatchDir     string        `yaml:"watch_dir" json:"watch_dir"`
	Extensions   []string      `yaml:"extensions" json:"extensions"`
	TargetFormat string        `yaml:"target_format,omitempty" json:"target_format,omitempty"`
	OutputDir    string        `yaml:"output_dir" json:"output_dir"`
	Quality      string        `yaml:"quality,omitempty" json:"quality,omitempty"`
	OCR          bool          `yaml:"ocr,omitempty" json:"ocr,omitempty"`
	Preset       string        `yaml:"preset,omitempty" json:"preset,omitempty"`
	Recursive    bool          `yaml:"recursive,omitempty" json:"recursive,omitempty"`
	Debounce     time.Duration `yaml:"debounce,omitempty" json:"debounce,omitempty"`
}

// WatchConfig is the auto-converter configuration. JSON files parse too.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
	Rules    []Rule        `yaml:"rules" json:"rules"`
}

// DefaultWatchConfig is written when no watch file exists yet.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Debounce: DefaultDebounce,
		Rules: []Rule{{
			Name:         "docs-to-pdf",
			WatchDir:     "./watch",
			Extensions:   []string{".docx", ".odt", ".md", ".html"},
			TargetFormat: "pdf",
			OutputDir:    "./watch/converted",
			Quality:      "balanced",
		}},
	}
}

// LoadWatch reads the watch file, writing DefaultWatchConfig there first
// when it does not exist. Rule debounces inherit the file-level value and
// every rule is checked against presets.
func LoadWatch(path string, presets Presets) (*WatchConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		def := DefaultWatchConfig()
		if err := SaveWatch(path, &def); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read watch config: %w", err)
	}
	var wc WatchConfig
	if err := yaml.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("parse watch config %s: %w", path, err)
	}
	if wc.Debounce <= 0 {
		wc.Debounce = DefaultDebounce
	}
	var problems []string
	for i := range wc.Rules {
		r := &wc.Rules[i]
		if r.Debounce <= 0 {
			r.Debounce = wc.Debounce
		}
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		r.normalize()
		if err := r.validate(presets); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", r.Name, err))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid watch rules: %s", strings.Join(problems, "; "))
	}
	return &wc, nil
}

// SaveWatch writes wc as YAML, creating parent directories.
func SaveWatch(path string, wc *WatchConfig) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(wc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (r *Rule) normalize() {
	for i, ext := range r.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.Extensions[i] = ext
	}
}

func (r *Rule) validate(presets Presets) error {
	if r.WatchDir == "" {
		return errors.New("watch_dir is required")
	}
	if r.Preset != "" {
		if _, err := presets.Get(r.Preset); err != nil {
			return err
		}
		return nil
	}
	if _, err := format.Parse(r.TargetFormat); err != nil {
		return fmt.Errorf("target_format: %w", err)
	}
	_, err := domain.ParseQuality(r.Quality)
	return err
}

// Matches reports whether path has one of the rule's extensions. A rule
// without extensions matches every file.
func (r *Rule) Matches(path string) bool {
	if len(r.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Job builds the conversion job for path. The output directory defaults to
// the watched directory's "converted" subfolder.
func (r *Rule) Job(path string, presets Presets) (domain.Job, error) {
	job := domain.Job{SourcePath: path, OutputDir: r.OutputDir, OCR: r.OCR}
	if job.OutputDir == "" {
		job.OutputDir = filepath.Join(r.WatchDir, "converted")
	}
	if r.Preset != "" {
		p, err := presets.Get(r.Preset)
		if err != nil {
			return job, err
		}
		return job, p.Apply(&job)
	}
	f, err := format.Parse(r.TargetFormat)
	if err != nil {
		return job, err
	}
	q, err := domain.ParseQuality(r.Quality)
	if err != nil {
		return job, err
	}
	job.TargetFormat = f
	job.Quality = q
	return job, nil
}

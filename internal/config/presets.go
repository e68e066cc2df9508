package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// Preset is a named set of job options.
type Preset struct {
	Format         string `yaml:"format" json:"format"`
	Quality        string `yaml:"quality,omitempty" json:"quality,omitempty"`
	OCR            bool   `yaml:"ocr,omitempty" json:"ocr,omitempty"`
	PreserveLayout bool   `yaml:"preserve_layout,omitempty" json:"preserve_layout,omitempty"`
}

type presetsFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// DefaultPresets are available even without a presets file.
var DefaultPresets = map[string]Preset{
	"web":     {Format: "html", Quality: "balanced"},
	"print":   {Format: "pdf", Quality: "high"},
	"archive": {Format: "pdf", Quality: "high", OCR: true},
	"notes":   {Format: "markdown", Quality: "balanced"},
	"scan":    {Format: "docx", Quality: "high", OCR: true, PreserveLayout: true},
}

// Presets maps names to presets.
type Presets map[string]Preset

// LoadPresets merges the file at path over DefaultPresets. A missing file is
// not an error.
func LoadPresets(path string) (Presets, error) {
	out := make(Presets, len(DefaultPresets))
	for k, v := range DefaultPresets {
		out[k] = v
	}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var f presetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	for name, p := range f.Presets {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// Names returns the preset names sorted.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get looks up a preset by name.
func (p Presets) Get(name string) (Preset, error) {
	preset, ok := p[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q", name)
	}
	return preset, nil
}

func (p Preset) validate() error {
	if _, err := format.Parse(p.Format); err != nil {
		return err
	}
	_, err := domain.ParseQuality(p.Quality)
	return err
}

// Apply fills the job's target, quality and flags from the preset.
func (p Preset) Apply(job *domain.Job) error {
	f, err := format.Parse(p.Format)
	if err != nil {
		return err
	}
	q, err := domain.ParseQuality(p.Quality)
	if err != nil {
		return err
	}
	job.TargetFormat = f
	job.Quality = q
	job.OCR = job.OCR || p.OCR
	job.PreserveLayout = job.PreserveLayout || p.PreserveLayout
	return nil
}

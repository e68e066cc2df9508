package config

import (
	"errors"
	"fmt"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// JobSpec is a batch request as the CLI and the HTTP API receive it.
// Explicit fields override the preset, which overrides the config defaults.
type JobSpec struct {
	Files          []string `json:"files"`
	Format         string   `json:"format"`
	Preset         string   `json:"preset"`
	Quality        string   `json:"quality"`
	OCR            bool     `json:"ocr"`
	PreserveLayout bool     `json:"preserve_layout"`
	OutputDir      string   `json:"output_dir"`
}

// Jobs expands the spec into one job per file.
func (s JobSpec) Jobs(cfg *Config, presets Presets) ([]domain.Job, error) {
	if len(s.Files) == 0 {
		return nil, errors.New("no input files")
	}
	tmpl := domain.Job{
		Quality:        cfg.QualityLevel(),
		OutputDir:      cfg.OutputDir,
		OCR:            s.OCR,
		PreserveLayout: s.PreserveLayout,
	}
	if s.Preset != "" {
		p, err := presets.Get(s.Preset)
		if err != nil {
			return nil, err
		}
		if err := p.Apply(&tmpl); err != nil {
			return nil, fmt.Errorf("preset %q: %w", s.Preset, err)
		}
	}
	if s.Format != "" {
		f, err := format.Parse(s.Format)
		if err != nil {
			return nil, err
		}
		tmpl.TargetFormat = f
	}
	if tmpl.TargetFormat == "" {
		return nil, errors.New("a target format or a preset is required")
	}
	if s.Quality != "" {
		q, err := domain.ParseQuality(s.Quality)
		if err != nil {
			return nil, err
		}
		tmpl.Quality = q
	}
	if s.OutputDir != "" {
		tmpl.OutputDir = s.OutputDir
	}

	jobs := make([]domain.Job, len(s.Files))
	for i, f := range s.Files {
		job := tmpl
		job.SourcePath = f
		jobs[i] = job
	}
	return jobs, nil
}

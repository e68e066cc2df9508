package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
	"github.com/ah-its-andy/docconv/internal/logging"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Empty(t, cfg.Validate())
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, domain.QualityBalanced, cfg.QualityLevel())
	assert.Equal(t, "./converted", cfg.OutputDir)
	assert.Equal(t, IsolationProcess, cfg.Isolation)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Low)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.High)
	assert.Equal(t, ":8000", cfg.Daemon.HTTPAddr)
	assert.Equal(t, time.Second, cfg.Daemon.StabilityDelay)

	prio, err := cfg.PDFPriority()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPDFPriority, prio)
	assert.Empty(t, cfg.File)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docconv.yaml", `
workers: 3
quality: high
isolation: inprocess
timeouts:
  low: 10s
  balanced: 40s
  high: 3m
engines:
  pdf_priority: [office_suite, ai_layout]
  disabled: [vector_fallback]
  tools:
    soffice: /opt/lo/program/soffice
  font: FONTPATH
log:
  level: debug
  format: json
`)
	font := writeFile(t, dir, "unicode.ttf", "ttf")
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(string(body), "FONTPATH", font)), 0o644))
	t.Setenv("DOCCONV_WORKERS", "6")
	t.Setenv("DOCCONV_DAEMON_HTTP_ADDR", ":9090")
	t.Setenv("DOCCONV_ENGINES_DISABLED", "docling, svg")

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Validate())

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, IsolationInProcess, cfg.Isolation)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, ":9090", cfg.Daemon.HTTPAddr)
	assert.Equal(t, domain.QualityHigh, cfg.QualityLevel())
	assert.Equal(t, 3*time.Minute, cfg.Timeouts.High)
	assert.Equal(t, "/opt/lo/program/soffice", cfg.Engines.Tools["soffice"])

	prio, err := cfg.PDFPriority()
	require.NoError(t, err)
	assert.Equal(t, []engine.Choice{engine.OfficeSuite, engine.AILayout}, prio)

	disabled, err := cfg.DisabledEngines()
	require.NoError(t, err)
	assert.Equal(t, []engine.Choice{engine.AILayout, engine.VectorFallback}, disabled)

	opts, err := cfg.ConverterOptions(nil, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, prio, opts.PDFPriority)
	assert.Equal(t, disabled, opts.Toolbox.Disabled)
	assert.Equal(t, 10*time.Second, opts.Timeouts.Low)
	assert.Equal(t, font, opts.Toolbox.Font)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "docconv.yaml", "workers: 0\n")
	base := func() *Config {
		cfg, err := load(viper.New(), path)
		require.NoError(t, err)
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"bad quality", func(c *Config) { c.Quality = "ultra" }, "ultra"},
		{"bad isolation", func(c *Config) { c.Isolation = "thread" }, "isolation"},
		{"priority duplicate", func(c *Config) { c.Engines.PDFPriority = []string{"ai_layout", "ai_layout"} }, "ai_layout"},
		{"priority foreign engine", func(c *Config) { c.Engines.PDFPriority = []string{"image_library"} }, "image_library"},
		{"unknown disabled engine", func(c *Config) { c.Engines.Disabled = []string{"gimp"} }, "engines.disabled"},
		{"shrinking timeouts", func(c *Config) { c.Timeouts.High = 10 * time.Second }, "shrink"},
		{"tiny timeout", func(c *Config) { c.Timeouts.Low = time.Millisecond }, "below one second"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"missing font", func(c *Config) { c.Engines.Font = "/nonexistent/font.ttf" }, "engines.font"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			assert.Contains(t, strings.Join(errs, "; "), tt.want)
		})
	}
}

func TestLoadPresets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "presets.yaml", `
presets:
  slides:
    format: pptx
    quality: low
  print:
    format: pdf
    quality: balanced
`)
	p, err := LoadPresets(path)
	require.NoError(t, err)
	assert.Contains(t, p.Names(), "web")
	assert.Equal(t, "balanced", p["print"].Quality, "file overrides defaults")

	job := domain.Job{SourcePath: "deck.odp"}
	preset, err := p.Get("slides")
	require.NoError(t, err)
	require.NoError(t, preset.Apply(&job))
	assert.Equal(t, format.PPTX, job.TargetFormat)
	assert.Equal(t, domain.QualityLow, job.Quality)

	_, err = p.Get("missing")
	assert.Error(t, err)

	missing, err := LoadPresets(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Len(t, missing, len(DefaultPresets))

	bad := writeFile(t, dir, "bad.yaml", "presets:\n  x:\n    format: bmp\n")
	_, err = LoadPresets(bad)
	assert.ErrorContains(t, err, `preset "x"`)
}

func TestLoadWatchWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "watch.yaml")
	wc, err := LoadWatch(path, Presets(DefaultPresets))
	require.NoError(t, err)
	assert.FileExists(t, path)
	require.Len(t, wc.Rules, 1)
	assert.Equal(t, DefaultDebounce, wc.Rules[0].Debounce)

	again, err := LoadWatch(path, Presets(DefaultPresets))
	require.NoError(t, err)
	assert.Equal(t, wc, again)
}

func TestLoadWatchJSONAndRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "watch.json", `{
  "debounce": "500ms",
  "rules": [
    {"watch_dir": "/in/scans", "extensions": ["PDF", ".png"], "preset": "scan"},
    {"name": "md", "watch_dir": "/in/notes", "extensions": ["md"], "target_format": "html", "quality": "low", "debounce": "3s"}
  ]
}`)
	wc, err := LoadWatch(path, Presets(DefaultPresets))
	require.NoError(t, err)
	require.Len(t, wc.Rules, 2)

	scans := wc.Rules[0]
	assert.Equal(t, "rule-1", scans.Name)
	assert.Equal(t, 500*time.Millisecond, scans.Debounce)
	assert.Equal(t, []string{".pdf", ".png"}, scans.Extensions)
	assert.True(t, scans.Matches("/in/scans/a.PDF"))
	assert.False(t, scans.Matches("/in/scans/a.docx"))

	job, err := scans.Job("/in/scans/a.pdf", Presets(DefaultPresets))
	require.NoError(t, err)
	assert.Equal(t, format.DOCX, job.TargetFormat)
	assert.True(t, job.OCR)
	assert.True(t, job.PreserveLayout)
	assert.Equal(t, filepath.Join("/in/scans", "converted"), job.OutputDir)

	md := wc.Rules[1]
	assert.Equal(t, 3*time.Second, md.Debounce)
	job, err = md.Job("/in/notes/n.md", nil)
	require.NoError(t, err)
	assert.Equal(t, format.HTML, job.TargetFormat)
	assert.Equal(t, domain.QualityLow, job.Quality)
}

func TestLoadWatchRejectsBadRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "watch.yaml", `
rules:
  - name: nodir
    target_format: pdf
  - name: badfmt
    watch_dir: /in
    target_format: tiff
  - name: badpreset
    watch_dir: /in
    preset: nope
`)
	_, err := LoadWatch(path, Presets(DefaultPresets))
	require.Error(t, err)
	assert.ErrorContains(t, err, "nodir")
	assert.ErrorContains(t, err, "badfmt")
	assert.ErrorContains(t, err, "badpreset")
}

func TestJobSpec(t *testing.T) {
	cfg, err := load(viper.New(), writeFile(t, t.TempDir(), "docconv.yaml", "quality: low\noutput_dir: /out\n"))
	require.NoError(t, err)
	presets := Presets(DefaultPresets)

	tests := []struct {
		name    string
		spec    JobSpec
		want    domain.Job
		wantErr string
	}{
		{
			name: "defaults from config",
			spec: JobSpec{Files: []string{"a.md"}, Format: "pdf"},
			want: domain.Job{SourcePath: "a.md", TargetFormat: format.PDF, Quality: domain.QualityLow, OutputDir: "/out"},
		},
		{
			name: "preset then explicit overrides",
			spec: JobSpec{Files: []string{"a.pdf"}, Preset: "scan", Quality: "balanced", OutputDir: "/elsewhere"},
			want: domain.Job{SourcePath: "a.pdf", TargetFormat: format.DOCX, Quality: domain.QualityBalanced, OutputDir: "/elsewhere", OCR: true, PreserveLayout: true},
		},
		{
			name: "format beats preset",
			spec: JobSpec{Files: []string{"a.md"}, Preset: "web", Format: "md"},
			want: domain.Job{SourcePath: "a.md", TargetFormat: format.Markdown, Quality: domain.QualityBalanced, OutputDir: "/out"},
		},
		{name: "no files", spec: JobSpec{Format: "pdf"}, wantErr: "no input"},
		{name: "no target", spec: JobSpec{Files: []string{"a.md"}}, wantErr: "target format"},
		{name: "bad format", spec: JobSpec{Files: []string{"a.md"}, Format: "bmp"}, wantErr: "bmp"},
		{name: "bad preset", spec: JobSpec{Files: []string{"a.md"}, Preset: "nope"}, wantErr: "nope"},
		{name: "bad quality", spec: JobSpec{Files: []string{"a.md"}, Format: "pdf", Quality: "max"}, wantErr: "max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := tt.spec.Jobs(cfg, presets)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			assert.Equal(t, tt.want, jobs[0])
		})
	}
}

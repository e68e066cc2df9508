// Package ui renders human-readable CLI output: status lines, batch
// summaries, analysis reports, a progress bar and a spinner.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/ah-its-andy/docconv/internal/analyzer"
	"github.com/ah-its-andy/docconv/internal/domain"
)

// UI writes to Out (results) and Err (progress and problems).
type UI struct {
	Out     io.Writer
	Err     io.Writer
	NoColor bool
	// Interactive enables the progress bar and spinner.
	Interactive bool
}

// New returns a UI on stdout/stderr. Colors and animation are enabled only
// when stderr is a terminal.
func New(noColor bool) *UI {
	return &UI{
		Out:         os.Stdout,
		Err:         os.Stderr,
		NoColor:     noColor || color.NoColor,
		Interactive: !color.NoColor,
	}
}

func (ui *UI) paint(attr color.Attribute, s string) string {
	if ui.NoColor {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

func (ui *UI) Success(format string, args ...any) {
	fmt.Fprintf(ui.Out, "%s %s\n", ui.paint(color.FgGreen, "✓"), fmt.Sprintf(format, args...))
}

func (ui *UI) Error(format string, args ...any) {
	fmt.Fprintf(ui.Err, "%s %s\n", ui.paint(color.FgRed, "✗"), fmt.Sprintf(format, args...))
}

func (ui *UI) Warning(format string, args ...any) {
	fmt.Fprintf(ui.Out, "%s %s\n", ui.paint(color.FgYellow, "⚠"), fmt.Sprintf(format, args...))
}

func (ui *UI) Info(format string, args ...any) {
	fmt.Fprintf(ui.Out, "%s %s\n", ui.paint(color.FgCyan, "ℹ"), fmt.Sprintf(format, args...))
}

// Section prints an underlined header.
func (ui *UI) Section(title string) {
	fmt.Fprintf(ui.Out, "\n%s\n%s\n", ui.paint(color.Bold, title), strings.Repeat("=", len([]rune(title))))
}

// Result prints one status line per job.
func (ui *UI) Result(r domain.Result) {
	src := r.Job.SourcePath
	switch r.Status {
	case domain.StatusSuccess:
		ui.Success("%s -> %s (%s, %s)", src, r.OutputPath, r.Engine, r.Elapsed.Round(time.Millisecond))
	case domain.StatusTimedOut:
		ui.Warning("%s timed out: %s", src, r.Error)
	case domain.StatusPending, domain.StatusRunning:
		ui.Info("%s %s", src, r.Status)
	default:
		ui.Error("%s failed: %s", src, r.Error)
	}
}

// Summary prints the batch totals.
func (ui *UI) Summary(s domain.BatchSummary) {
	ui.Section("Summary")
	fmt.Fprintf(ui.Out, "  total:     %d\n", s.Total)
	fmt.Fprintf(ui.Out, "  succeeded: %s\n", ui.paint(color.FgGreen, fmt.Sprint(s.Succeeded)))
	fmt.Fprintf(ui.Out, "  failed:    %s\n", ui.paint(color.FgRed, fmt.Sprint(s.Failed)))
	if s.TimedOut > 0 {
		fmt.Fprintf(ui.Out, "  timed out: %s\n", ui.paint(color.FgYellow, fmt.Sprint(s.TimedOut)))
	}
	if s.Pending > 0 {
		fmt.Fprintf(ui.Out, "  not run:   %d\n", s.Pending)
	}
}

// Analysis prints what the analyzer found about one file.
func (ui *UI) Analysis(info *analyzer.Info, q domain.Quality) {
	ui.Section(info.Name)
	row := func(k, v string) { fmt.Fprintf(ui.Out, "  %-12s %s\n", k+":", v) }
	row("format", string(info.Format))
	row("mime", info.MIME)
	row("size", info.Size)
	row("modified", info.Modified.Format(time.RFC3339))
	if info.Pages != nil {
		row("pages", fmt.Sprint(*info.Pages))
	}
	if len(info.Sheets) > 0 {
		row("sheets", fmt.Sprintf("%d (%s)", len(info.Sheets), strings.Join(info.Sheets, ", ")))
	}
	if info.Width > 0 {
		row("dimensions", fmt.Sprintf("%dx%d", info.Width, info.Height))
	}
	if info.TakenAt != nil {
		row("taken", info.TakenAt.Format(time.RFC3339))
	}
	if info.Encrypted {
		row("encrypted", ui.paint(color.FgYellow, "yes"))
	}
	row("targets", joinFormats(info.Targets))
	row("recommended", joinFormats(info.Recommended))
	for _, t := range info.Recommended {
		e := analyzer.EstimateFor(info, t, q)
		row("estimate", fmt.Sprintf("%s ~%s (%s complexity)", t, e.Duration, e.Complexity))
	}
	for _, w := range info.Warnings {
		ui.Warning("%s", w)
	}
}

func joinFormats[T ~string](fs []T) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// ProgressBar tracks a batch on the error stream.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar returns a bar for total jobs. It renders nothing when the
// UI is not interactive.
func (ui *UI) NewProgressBar(total int, description string) *ProgressBar {
	w := ui.Err
	if !ui.Interactive {
		w = io.Discard
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(w, "\n") }),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(!ui.NoColor),
	)
	return &ProgressBar{bar: bar}
}

// Set moves the bar to done jobs.
func (p *ProgressBar) Set(done int) { _ = p.bar.Set(done) }

func (p *ProgressBar) Describe(s string) { p.bar.Describe(s) }

func (p *ProgressBar) Finish() { _ = p.bar.Finish() }

// Spinner shows indeterminate work, such as analyzing a large file.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner returns a stopped spinner; it is a no-op when the UI is not
// interactive.
func (ui *UI) NewSpinner(message string) *Spinner {
	if !ui.Interactive {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(ui.Err))
	s.Suffix = " " + message
	return &Spinner{s: s}
}

func (s *Spinner) Start() {
	if s.s != nil {
		s.s.Start()
	}
}

func (s *Spinner) Stop() {
	if s.s != nil {
		s.s.Stop()
	}
}

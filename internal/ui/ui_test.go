package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ah-its-andy/docconv/internal/analyzer"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

func plain() (*UI, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &UI{Out: &out, Err: &errOut, NoColor: true}, &out, &errOut
}

func TestResultLines(t *testing.T) {
	ui, out, errOut := plain()
	job := domain.Job{SourcePath: "report.md", TargetFormat: format.PDF}

	ui.Result(domain.Succeeded(job, "direct_markdown", "converted/report.pdf", 1234*time.Microsecond))
	ui.Result(domain.FailedWith(job, "", domain.Unsupported("odg -> xlsx"), 0))
	ui.Result(domain.FailedWith(job, "office_suite", domain.TimedOut("office_suite exceeded 30s", nil), 0))

	assert.Contains(t, out.String(), "✓ report.md -> converted/report.pdf (direct_markdown, 1ms)")
	assert.Contains(t, out.String(), "⚠ report.md timed out")
	assert.Contains(t, errOut.String(), "✗ report.md failed: UnsupportedConversion: odg -> xlsx")
}

func TestSummary(t *testing.T) {
	ui, out, _ := plain()
	job := domain.Job{SourcePath: "a.md", TargetFormat: format.PDF}
	ui.Summary(domain.Summarize("b1", []domain.Result{
		domain.Succeeded(job, "x", "a.pdf", 0),
		domain.FailedWith(job, "x", errors.New("boom"), 0),
		{Job: job, Status: domain.StatusPending},
	}))
	s := out.String()
	assert.Contains(t, s, "Summary\n=======")
	assert.Contains(t, s, "total:     3")
	assert.Contains(t, s, "succeeded: 1")
	assert.Contains(t, s, "failed:    1")
	assert.Contains(t, s, "not run:   1")
	assert.NotContains(t, s, "timed out")
}

func TestAnalysis(t *testing.T) {
	ui, out, _ := plain()
	pages := 12
	ui.Analysis(&analyzer.Info{
		Name:        "deck.pptx",
		Format:      format.PPTX,
		MIME:        "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Size:        "2.0 MB",
		SizeBytes:   2 << 20,
		Pages:       &pages,
		Targets:     []format.Format{format.PDF, format.ODP},
		Recommended: []format.Format{format.PDF},
		Warnings:    []string{"no thumbnail"},
	}, domain.QualityBalanced)

	s := out.String()
	assert.Contains(t, s, "deck.pptx\n=========")
	assert.Contains(t, s, "pages:       12")
	assert.Contains(t, s, "targets:     pdf, odp")
	assert.Contains(t, s, "estimate:    pdf ~4s (medium complexity)")
	assert.Contains(t, s, "⚠ no thumbnail")
}

func TestNonInteractiveIsQuiet(t *testing.T) {
	ui, _, errOut := plain()
	bar := ui.NewProgressBar(3, "converting")
	bar.Set(2)
	bar.Finish()
	sp := ui.NewSpinner("analyzing")
	sp.Start()
	sp.Stop()
	assert.Empty(t, errOut.String())
}

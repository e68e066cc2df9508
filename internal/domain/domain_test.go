package domain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ah-its-andy/docconv/internal/format"
)

func TestParseQuality(t *testing.T) {
	tests := []struct {
		in   string
		want Quality
		err  bool
	}{
		{"", QualityBalanced, false},
		{"balanced", QualityBalanced, false},
		{"medium", QualityBalanced, false},
		{"LOW", QualityLow, false},
		{"high", QualityHigh, false},
		{"ultra", "", true},
	}
	for _, tt := range tests {
		got, err := ParseQuality(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestJobOutputPath(t *testing.T) {
	j := Job{SourcePath: "/in/report.final.md", TargetFormat: format.PDF, OutputDir: "/out"}
	assert.Equal(t, "/out/report.final.pdf", j.OutputPath())
	assert.Equal(t, format.Markdown, j.SourceFormat())

	j = Job{SourcePath: "/in/page.html", TargetFormat: format.Markdown, OutputDir: "/out"}
	assert.Equal(t, "/out/page.md", j.OutputPath())
}

func TestReserveOutputs(t *testing.T) {
	job := func(src string) Job { return Job{SourcePath: src, TargetFormat: format.PDF, OutputDir: "/out"} }
	tests := []struct {
		name string
		jobs []Job
		want []string
	}{
		{
			name: "distinct names untouched",
			jobs: []Job{job("/a/one.md"), job("/a/two.md")},
			want: []string{"/out/one.pdf", "/out/two.pdf"},
		},
		{
			name: "same stem from two folders",
			jobs: []Job{job("/x/report.md"), job("/y/report.md")},
			want: []string{"/out/report.pdf", "/out/report (1).pdf"},
		},
		{
			name: "same stem different source format",
			jobs: []Job{job("/a/report.md"), job("/a/report.docx"), job("/a/report.html")},
			want: []string{"/out/report.pdf", "/out/report (1).pdf", "/out/report (2).pdf"},
		},
		{
			name: "suffix skips a name another job derives",
			jobs: []Job{job("/x/report.md"), job("/y/report.md"), job("/z/report (1).md")},
			want: []string{"/out/report.pdf", "/out/report (2).pdf", "/out/report (1).pdf"},
		},
		{
			name: "empty output dir means next to the source",
			jobs: []Job{{SourcePath: "/x/report.md", TargetFormat: format.PDF}, {SourcePath: "/y/report.md", TargetFormat: format.PDF}},
			want: []string{"/x/report.pdf", "/y/report.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReserveOutputs(tt.jobs)
			require.Len(t, got, len(tt.want))
			for i, j := range got {
				assert.Equal(t, filepath.FromSlash(tt.want[i]), j.OutputPath())
			}
			for _, j := range tt.jobs {
				assert.Empty(t, j.OutputName)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Unsupported("odg -> xlsx"))
	assert.True(t, errors.Is(err, ErrUnsupportedConversion))
	assert.False(t, errors.Is(err, ErrConversionFailed))
	assert.Equal(t, KindUnsupported, KindOf(err))

	cause := errors.New("exit status 1")
	err = Failed("soffice", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "exit status 1")

	assert.Equal(t, KindTimedOut, KindOf(fmt.Errorf("run: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindFailed, KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestFailedWithNeverCarriesOutput(t *testing.T) {
	job := Job{SourcePath: "a.md", TargetFormat: format.PDF}
	r := FailedWith(job, "office_suite", TimedOut("soffice", context.DeadlineExceeded), time.Second)
	assert.Equal(t, StatusTimedOut, r.Status)
	assert.Empty(t, r.OutputPath)
	assert.NotEmpty(t, r.Error)

	r = FailedWith(job, "", nil, 0)
	assert.Equal(t, StatusFailed, r.Status)
	assert.NotEmpty(t, r.Error)
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{Status: StatusSuccess},
		{Status: StatusFailed},
		{Status: StatusTimedOut},
		{Status: StatusSuccess},
	}
	s := Summarize("b1", results)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.TimedOut)
	assert.False(t, s.OK())
	assert.True(t, Summarize("b2", []Result{{Status: StatusSuccess}}).OK())
}

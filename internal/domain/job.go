// Package domain defines the jobs, results and errors shared by every part of
// docconv.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ah-its-andy/docconv/internal/format"
)

// Quality selects the fidelity/speed trade-off and the timeout budget of a job.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityBalanced Quality = "balanced"
	QualityHigh     Quality = "high"
)

// ParseQuality accepts low, balanced (or medium) and high. Empty means balanced.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "balanced", "medium":
		return QualityBalanced, nil
	case "low":
		return QualityLow, nil
	case "high":
		return QualityHigh, nil
	}
	return "", fmt.Errorf("invalid quality %q (want low, balanced or high)", s)
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusTimedOut
}

// Job is one requested conversion of a single input file.
type Job struct {
	SourcePath     string        `json:"source_path"`
	TargetFormat   format.Format `json:"target_format"`
	Quality        Quality       `json:"quality"`
	OutputDir      string        `json:"output_dir"`
	OCR            bool          `json:"ocr"`
	PreserveLayout bool          `json:"preserve_layout"`
	// OutputName overrides the file name derived from the source.
	OutputName string `json:"output_name,omitempty"`
}

// SourceFormat derives the input format from the source path.
func (j Job) SourceFormat() format.Format {
	return format.FromPath(j.SourcePath)
}

// OutputPath is where a successful conversion ends up. An empty OutputDir
// means next to the source.
func (j Job) OutputPath() string {
	dir := j.OutputDir
	if dir == "" {
		dir = filepath.Dir(j.SourcePath)
	}
	name := j.OutputName
	if name == "" {
		name = j.stem() + "." + j.TargetFormat.Extension()
	}
	return filepath.Join(dir, name)
}

func (j Job) stem() string {
	base := filepath.Base(j.SourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReserveOutputs returns a copy of jobs in which no two jobs write the same
// output path. The first job keeps the derived name; later ones get
// "name (n).ext" with the smallest n that is still free.
func ReserveOutputs(jobs []Job) []Job {
	out := make([]Job, len(jobs))
	copy(out, jobs)
	taken := make(map[string]bool, len(out))
	for _, j := range out {
		taken[j.OutputPath()] = true
	}
	first := make(map[string]bool, len(out))
	for i := range out {
		p := out[i].OutputPath()
		if !first[p] {
			first[p] = true
			continue
		}
		ext := out[i].TargetFormat.Extension()
		for n := 1; ; n++ {
			name := fmt.Sprintf("%s (%d).%s", out[i].stem(), n, ext)
			out[i].OutputName = name
			if p := out[i].OutputPath(); !taken[p] {
				taken[p] = true
				break
			}
		}
	}
	return out
}

// Result is the outcome of one Job.
type Result struct {
	Index      int           `json:"index"`
	Job        Job           `json:"job"`
	Status     Status        `json:"status"`
	OutputPath string        `json:"output_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Kind       ErrorKind     `json:"error_kind,omitempty"`
	Engine     string        `json:"engine,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Log        string        `json:"log,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(job Job, engine, output string, elapsed time.Duration) Result {
	return Result{Job: job, Status: StatusSuccess, Engine: engine, OutputPath: output, Elapsed: elapsed}
}

// FailedWith builds a failed or timed-out result from err. A failed result
// never carries an output path.
func FailedWith(job Job, engine string, err error, elapsed time.Duration) Result {
	kind := KindOf(err)
	status := StatusFailed
	if kind == KindTimedOut {
		status = StatusTimedOut
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Job: job, Status: status, Engine: engine, Error: msg, Kind: kind, Elapsed: elapsed}
}

// BatchSummary aggregates the results of a batch in submission order.
type BatchSummary struct {
	ID        string   `json:"id"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	TimedOut  int      `json:"timed_out"`
	Pending   int      `json:"pending,omitempty"`
	Results   []Result `json:"results"`
}

// Summarize counts statuses over results.
func Summarize(id string, results []Result) BatchSummary {
	s := BatchSummary{ID: id, Total: len(results), Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusTimedOut:
			s.TimedOut++
		case StatusPending, StatusRunning:
			s.Pending++
		default:
			s.Failed++
		}
	}
	return s
}

// OK is true when every job succeeded.
func (s BatchSummary) OK() bool { return s.Succeeded == s.Total }

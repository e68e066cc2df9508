package analyzer

import (
	"time"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// Complexity buckets a file by size.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Estimate is a rough conversion forecast.
type Estimate struct {
	Target     format.Format `json:"target"`
	Duration   time.Duration `json:"duration"`
	Complexity Complexity    `json:"complexity"`
}

// seconds per megabyte by target
var secondsPerMB = map[format.Format]float64{
	format.PDF:      2,
	format.DOCX:     1,
	format.HTML:     0.5,
	format.Markdown: 0.3,
}

var qualityFactor = map[domain.Quality]float64{
	domain.QualityLow:      0.5,
	domain.QualityBalanced: 1,
	domain.QualityHigh:     2,
}

// EstimateFor guesses how long converting info to target takes. The result
// is at least one second.
func EstimateFor(info *Info, target format.Format, q domain.Quality) Estimate {
	mb := float64(info.SizeBytes) / (1 << 20)
	rate, ok := secondsPerMB[target]
	if !ok {
		rate = 1
	}
	factor, ok := qualityFactor[q]
	if !ok {
		factor = 1
	}
	d := time.Duration(mb * rate * factor * float64(time.Second))
	if d < time.Second {
		d = time.Second
	}
	c := ComplexityHigh
	switch {
	case mb < 1:
		c = ComplexityLow
	case mb < 10:
		c = ComplexityMedium
	}
	return Estimate{Target: target, Duration: d.Round(time.Second), Complexity: c}
}

// Estimate forecasts converting the file to its first recommended target.
func (i *Info) Estimate(q domain.Quality) time.Duration {
	target := format.PDF
	if len(i.Recommended) > 0 {
		target = i.Recommended[0]
	}
	return EstimateFor(i, target, q).Duration
}

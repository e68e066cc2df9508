package converter

import (
	"context"
	"io"
	"time"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
)

// Task is one engine invocation: convert SrcPath (From) into DstPath (To).
// DstPath always lives inside WorkDir.
type Task struct {
	SrcPath string
	DstPath string
	From    format.Format
	To      format.Format
	Quality domain.Quality
	OCR     bool
	// WorkDir is the job's private scratch directory.
	WorkDir string
	// Log receives tool output and progress notes.
	Log io.Writer
}

// Engine wraps one external tool or library.
type Engine interface {
	// Choice identifies the engine for the selector.
	Choice() engine.Choice

	// Convert writes t.DstPath. It must honor ctx cancellation and must not
	// write outside t.WorkDir.
	Convert(ctx context.Context, t Task) error
}

// QualityParams are the per-tier knobs shared by the image paths.
type QualityParams struct {
	JPEGQuality    int
	DPI            float64
	PNGCompression int
}

// ParamsFor returns the raster parameters for a quality tier.
func ParamsFor(q domain.Quality) QualityParams {
	switch q {
	case domain.QualityLow:
		return QualityParams{JPEGQuality: 60, DPI: 72, PNGCompression: 1}
	case domain.QualityHigh:
		return QualityParams{JPEGQuality: 95, DPI: 300, PNGCompression: 9}
	default:
		return QualityParams{JPEGQuality: 85, DPI: 150, PNGCompression: 6}
	}
}

// Timeouts is the time budget granted to a job per quality tier.
type Timeouts struct {
	Low      time.Duration `mapstructure:"low" json:"low"`
	Balanced time.Duration `mapstructure:"balanced" json:"balanced"`
	High     time.Duration `mapstructure:"high" json:"high"`
}

// DefaultTimeouts grows with fidelity since the wrapped tools take longer.
var DefaultTimeouts = Timeouts{Low: 30 * time.Second, Balanced: 60 * time.Second, High: 120 * time.Second}

// For returns the budget for q, falling back to the defaults for unset tiers.
func (t Timeouts) For(q domain.Quality) time.Duration {
	var d, def time.Duration
	switch q {
	case domain.QualityLow:
		d, def = t.Low, DefaultTimeouts.Low
	case domain.QualityHigh:
		d, def = t.High, DefaultTimeouts.High
	default:
		d, def = t.Balanced, DefaultTimeouts.Balanced
	}
	if d <= 0 {
		return def
	}
	return d
}

// EngineInfo describes a registered engine for listings.
type EngineInfo struct {
	Name      engine.Choice `json:"name"`
	Available bool          `json:"available"`
	Enabled   bool          `json:"enabled"`
}

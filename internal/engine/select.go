package engine

import (
	"fmt"
	"strings"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// DefaultPDFPriority is the engine order tried for PDF sources when layout
// preservation is requested.
var DefaultPDFPriority = []Choice{AILayout, OfficeSuite, MarkupProcessor}

// Preferences carries the per-job knobs that influence selection.
type Preferences struct {
	PreserveLayout bool
	OCR            bool
	// PDFPriority overrides DefaultPDFPriority when non-empty.
	PDFPriority []Choice
}

// ParsePriority validates a configured PDF priority list. Only the engines
// that can read PDFs into documents are allowed, each at most once.
func ParsePriority(names []string) ([]Choice, error) {
	if len(names) == 0 {
		return append([]Choice(nil), DefaultPDFPriority...), nil
	}
	seen := make(map[Choice]bool)
	out := make([]Choice, 0, len(names))
	for _, n := range names {
		c, err := ParseChoice(n)
		if err != nil {
			return nil, err
		}
		if c != AILayout && c != OfficeSuite && c != MarkupProcessor {
			return nil, fmt.Errorf("engine %s cannot appear in the pdf priority list", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("engine %s listed twice in the pdf priority list", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// Step is one engine invocation of a route.
type Step struct {
	Engine Choice        `json:"engine"`
	From   format.Format `json:"from"`
	To     format.Format `json:"to"`
}

// Route is the ordered list of engine invocations that turn the source into
// the target. Most routes have a single step; documents rendered to images go
// through PDF first.
type Route struct {
	Steps []Step `json:"steps"`
}

// Engine is the engine of the first step.
func (r Route) Engine() Choice {
	if len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[0].Engine
}

func (r Route) String() string {
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		parts[i] = fmt.Sprintf("%s(%s->%s)", s.Engine, s.From, s.To)
	}
	return strings.Join(parts, " | ")
}

// Select picks the route for src -> dst.
func Select(src, dst format.Format, prefs Preferences, caps Capabilities) (Route, error) {
	if !format.Supported(src, dst) {
		return Route{}, domain.Unsupported(fmt.Sprintf("%s -> %s", orUnknown(src), orUnknown(dst)))
	}
	cands := Candidates(src, dst, prefs)
	for _, c := range cands {
		if caps.Serves(c, src, dst) {
			return Route{Steps: []Step{{Engine: c, From: src, To: dst}}}, nil
		}
	}
	if dst.IsRaster() && src.IsDocument() && src != format.PDF && format.Supported(src, format.PDF) {
		first, err := Select(src, format.PDF, prefs, caps)
		if err == nil && caps.Serves(ImageLibrary, format.PDF, dst) {
			steps := append(first.Steps, Step{Engine: ImageLibrary, From: format.PDF, To: dst})
			return Route{Steps: steps}, nil
		}
	}
	return Route{}, domain.Unavailable(
		fmt.Sprintf("no available engine for %s -> %s (tried %s)", src, dst, joinChoices(cands)), nil)
}

// Candidates returns the engines considered for src -> dst in preference
// order, before availability is taken into account.
func Candidates(src, dst format.Format, prefs Preferences) []Choice {
	switch {
	case src.IsRaster():
		return []Choice{ImageLibrary}
	case src.IsVector():
		return []Choice{VectorFallback, OfficeSuite}
	case src == format.PDF && dst.IsRaster():
		return []Choice{ImageLibrary, OfficeSuite}
	case src == format.PDF && (prefs.PreserveLayout || prefs.OCR):
		prio := prefs.PDFPriority
		if len(prio) == 0 {
			prio = DefaultPDFPriority
		}
		return withFallbacks(prio, OfficeSuite, MarkupProcessor)
	case src == format.PDF:
		return []Choice{OfficeSuite, MarkupProcessor}
	case src == format.Markdown && dst == format.PDF:
		return []Choice{DirectMarkdown, MarkupProcessor, OfficeSuite}
	case src.IsOffice() || dst.IsOffice():
		return []Choice{OfficeSuite, MarkupProcessor}
	default:
		return []Choice{MarkupProcessor, OfficeSuite}
	}
}

func withFallbacks(prio []Choice, fallbacks ...Choice) []Choice {
	out := append([]Choice(nil), prio...)
	for _, f := range fallbacks {
		found := false
		for _, p := range out {
			if p == f {
				found = true
				break
			}
		}
		if !found {
			out = append(out, f)
		}
	}
	return out
}

func joinChoices(cs []Choice) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func orUnknown(f format.Format) string {
	if f == "" {
		return "unknown"
	}
	return string(f)
}

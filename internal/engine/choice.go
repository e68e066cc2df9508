// Package engine decides which conversion engine handles a given pair of
// formats. Nothing in here touches the filesystem or spawns processes: the
// availability of each engine is probed once by the caller and handed in as
// a Capabilities value.
package engine

import (
	"fmt"
	"strings"

	"github.com/ah-its-andy/docconv/internal/format"
)

// Choice names a conversion engine.
type Choice string

const (
	AILayout        Choice = "ai_layout"
	OfficeSuite     Choice = "office_suite"
	MarkupProcessor Choice = "markup_processor"
	ImageLibrary    Choice = "image_library"
	VectorFallback  Choice = "vector_fallback"
	DirectMarkdown  Choice = "direct_markdown"
)

// Choices lists every engine in a stable order.
var Choices = []Choice{AILayout, OfficeSuite, MarkupProcessor, ImageLibrary, VectorFallback, DirectMarkdown}

func (c Choice) String() string { return string(c) }

// ParseChoice accepts the canonical names plus a few short forms.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ai_layout", "ai", "docling", "layout":
		return AILayout, nil
	case "office_suite", "office", "libreoffice", "soffice":
		return OfficeSuite, nil
	case "markup_processor", "markup", "pandoc":
		return MarkupProcessor, nil
	case "image_library", "image":
		return ImageLibrary, nil
	case "vector_fallback", "vector", "svg":
		return VectorFallback, nil
	case "direct_markdown", "mdpdf":
		return DirectMarkdown, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// Handles reports whether engine c can in principle convert src to dst when
// all of its tools are installed.
func Handles(c Choice, src, dst format.Format) bool {
	if src == dst {
		return false
	}
	switch c {
	case AILayout:
		return src == format.PDF && in(dst, format.Markdown, format.HTML, format.TXT, format.DOCX)
	case OfficeSuite:
		if src == format.Markdown {
			// opened as cleaned plain text, so only a flat PDF comes out
			return dst == format.PDF
		}
		return officeIn(src) && officeOut(dst) && officeFamily(src, dst)
	case MarkupProcessor:
		if src == format.PDF {
			return in(dst, format.TXT, format.Markdown, format.HTML)
		}
		return pandocIn(src) && pandocOut(dst)
	case ImageLibrary:
		if src == format.PDF {
			return in(dst, format.JPG, format.PNG)
		}
		return src.IsRaster() && (dst.IsRaster() || dst == format.PDF)
	case VectorFallback:
		return src == format.SVG && in(dst, format.PDF, format.PNG, format.JPG)
	case DirectMarkdown:
		return src == format.Markdown && dst == format.PDF
	}
	return false
}

// NativeMarkup reports the markup pairs that are handled in-process, without
// pandoc.
func NativeMarkup(src, dst format.Format) bool {
	switch src {
	case format.PDF:
		return in(dst, format.TXT, format.Markdown, format.HTML)
	case format.HTML:
		return in(dst, format.Markdown, format.TXT)
	case format.Markdown:
		return in(dst, format.HTML, format.TXT)
	case format.TXT:
		return in(dst, format.Markdown, format.HTML)
	}
	return false
}

func officeIn(f format.Format) bool {
	return f.IsOffice() || in(f, format.HTML, format.TXT, format.RTF, format.PDF, format.SVG, format.CSV)
}

func officeOut(f format.Format) bool {
	return (f.IsOffice() && f != format.ODG) ||
		in(f, format.PDF, format.CSV, format.HTML, format.TXT, format.RTF, format.SVG, format.PNG, format.JPG)
}

// officeFamily rejects pairs that cross document families (text to slides,
// slides to spreadsheet). PDF imports are allowed into any family.
func officeFamily(src, dst format.Format) bool {
	switch {
	case src == format.PDF:
		return dst != format.TXT
	case in(dst, format.PPTX, format.ODP):
		return in(src, format.PPTX, format.ODP)
	case in(dst, format.XLSX, format.XLS, format.ODS, format.CSV):
		return src.IsSpreadsheet()
	}
	return true
}

func pandocIn(f format.Format) bool {
	return in(f, format.Markdown, format.HTML, format.TXT, format.RTF, format.DOCX, format.ODT, format.EPUB)
}

func pandocOut(f format.Format) bool {
	return in(f, format.Markdown, format.HTML, format.TXT, format.DOCX, format.ODT, format.RTF, format.PPTX, format.PDF)
}

func in(f format.Format, set ...format.Format) bool {
	for _, s := range set {
		if f == s {
			return true
		}
	}
	return false
}

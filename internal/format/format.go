// Package format holds the format tags understood by docconv and the table of
// supported conversions between them.
package format

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Format is a normalized, lowercase format tag such as "pdf" or "markdown".
type Format string

const (
	PDF      Format = "pdf"
	DOCX     Format = "docx"
	PPTX     Format = "pptx"
	ODT      Format = "odt"
	ODS      Format = "ods"
	ODP      Format = "odp"
	ODG      Format = "odg"
	XLSX     Format = "xlsx"
	XLS      Format = "xls"
	CSV      Format = "csv"
	HTML     Format = "html"
	Markdown Format = "markdown"
	TXT      Format = "txt"
	RTF      Format = "rtf"
	EPUB     Format = "epub"
	JPG      Format = "jpg"
	PNG      Format = "png"
	GIF      Format = "gif"
	HEIC     Format = "heic"
	SVG      Format = "svg"
)

var aliases = map[string]Format{
	"jpeg": JPG,
	"md":   Markdown,
	"htm":  HTML,
	"heif": HEIC,
	"text": TXT,
}

// supported maps each source format to the targets it can be converted to.
var supported = map[Format][]Format{
	PDF:      {DOCX, PPTX, HTML, Markdown, ODT, ODS, ODP, JPG, PNG, TXT},
	DOCX:     {PDF, PPTX, HTML, Markdown, ODT, TXT, RTF, JPG, PNG},
	PPTX:     {PDF, DOCX, HTML, ODT, ODP, JPG, PNG},
	ODT:      {PDF, DOCX, PPTX, HTML, TXT, RTF, JPG, PNG},
	ODS:      {PDF, XLSX, XLS, CSV, HTML, JPG, PNG},
	ODP:      {PDF, PPTX, HTML, JPG, PNG},
	ODG:      {PDF, SVG, PNG, JPG},
	HTML:     {PDF, DOCX, PPTX, Markdown, TXT, JPG, PNG},
	Markdown: {PDF, DOCX, PPTX, HTML, TXT, JPG, PNG},
	TXT:      {PDF, DOCX, HTML, Markdown, RTF, JPG, PNG},
	RTF:      {PDF, DOCX, ODT, TXT, HTML, JPG, PNG},
	XLSX:     {PDF, ODS, XLS, CSV, HTML, JPG, PNG},
	XLS:      {PDF, XLSX, ODS, CSV, HTML, JPG, PNG},
	EPUB:     {PDF, HTML, TXT, JPG, PNG},
	JPG:      {PDF, PNG, HEIC, GIF},
	PNG:      {PDF, JPG, HEIC, GIF},
	GIF:      {PDF, PNG, JPG, HEIC},
	HEIC:     {JPG, PNG, PDF, GIF},
	SVG:      {PDF, PNG, JPG},
}

// known holds every format that appears anywhere in the table.
var known = func() map[Format]bool {
	m := make(map[Format]bool)
	for src, dsts := range supported {
		m[src] = true
		for _, d := range dsts {
			m[d] = true
		}
	}
	return m
}()

// Parse normalizes a user supplied format name ("JPEG", ".md", "htm").
func Parse(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return "", fmt.Errorf("empty format")
	}
	if f, ok := aliases[s]; ok {
		return f, nil
	}
	f := Format(s)
	if !known[f] {
		return "", fmt.Errorf("unknown format %q", s)
	}
	return f, nil
}

// FromPath derives the format from a file extension. It returns "" when the
// extension is missing or unknown.
func FromPath(path string) Format {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	f, err := Parse(ext)
	if err != nil {
		return ""
	}
	return f
}

// Extension returns the file extension (without dot) used for output files.
func (f Format) Extension() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

func (f Format) String() string { return string(f) }

// Known reports whether f is a format docconv knows about.
func (f Format) Known() bool { return known[f] }

func (f Format) IsPDF() bool { return f == PDF }

func (f Format) IsOffice() bool {
	switch f {
	case DOCX, PPTX, ODT, ODS, ODP, ODG, XLSX, XLS:
		return true
	}
	return false
}

func (f Format) IsSpreadsheet() bool {
	switch f {
	case ODS, XLSX, XLS, CSV:
		return true
	}
	return false
}

func (f Format) IsMarkup() bool {
	switch f {
	case Markdown, HTML, TXT, RTF:
		return true
	}
	return false
}

// IsText is true for plain-text encodings, which content sniffing cannot
// tell apart.
func (f Format) IsText() bool {
	switch f {
	case Markdown, HTML, TXT, CSV:
		return true
	}
	return false
}

func (f Format) IsRaster() bool {
	switch f {
	case JPG, PNG, GIF, HEIC:
		return true
	}
	return false
}

func (f Format) IsVector() bool { return f == SVG }

func (f Format) IsEbook() bool { return f == EPUB }

// IsDocument is true for anything that is not an image.
func (f Format) IsDocument() bool {
	return f.Known() && !f.IsRaster() && !f.IsVector()
}

// Supported reports whether src can be converted to dst.
func Supported(src, dst Format) bool {
	for _, t := range supported[src] {
		if t == dst {
			return true
		}
	}
	return false
}

// Targets lists the formats src can be converted to, in table order.
func Targets(src Format) []Format {
	out := make([]Format, len(supported[src]))
	copy(out, supported[src])
	return out
}

// Sources lists every convertible source format, sorted.
func Sources() []Format {
	out := make([]Format, 0, len(supported))
	for f := range supported {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All lists every known format, sorted.
func All() []Format {
	out := make([]Format, 0, len(known))
	for f := range known {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

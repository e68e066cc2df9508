// Package analyzer inspects input files without modifying them.
package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// Info describes one file. Counts the file does not carry, or that could not
// be read, are left empty and noted in Warnings.
type Info struct {
	Path      string        `json:"path"`
	Name      string        `json:"name"`
	Format    format.Format `json:"format"`
	MIME      string        `json:"mime"`
	SizeBytes int64         `json:"size_bytes"`
	Size      string        `json:"size"`
	Modified  time.Time     `json:"modified"`
	// Pages holds pages for documents and slides for presentations.
	Pages       *int            `json:"pages,omitempty"`
	Sheets      []string        `json:"sheets,omitempty"`
	Width       int             `json:"width,omitempty"`
	Height      int             `json:"height,omitempty"`
	TakenAt     *time.Time      `json:"taken_at,omitempty"`
	Encrypted   bool            `json:"encrypted,omitempty"`
	Targets     []format.Format `json:"targets"`
	Recommended []format.Format `json:"recommended"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// Analyze reports format, size and counts for path. It fails with an
// UnreadableFile error when the file cannot be opened or its format cannot
// be told from content or extension.
func Analyze(path string) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, domain.Unreadable(path, err)
	}
	if fi.IsDir() {
		return nil, domain.Unreadable(path, fmt.Errorf("is a directory"))
	}
	f, mime, err := detect(path)
	if err != nil {
		return nil, domain.Unreadable(path, err)
	}
	if f == "" {
		return nil, domain.Unreadable(fmt.Sprintf("%s: unknown format (%s)", path, mime), nil)
	}

	info := &Info{
		Path:      path,
		Name:      filepath.Base(path),
		Format:    f,
		MIME:      mime,
		SizeBytes: fi.Size(),
		Size:      HumanSize(fi.Size()),
		Modified:  fi.ModTime(),
		Targets:   format.Targets(f),
	}
	info.Recommended = Recommended(f)

	var detailErr error
	switch {
	case f == format.PDF:
		detailErr = inspectPDF(path, info)
	case f == format.DOCX:
		detailErr = inspectDOCX(path, info)
	case f == format.PPTX:
		detailErr = inspectPPTX(path, info)
	case f == format.ODT || f == format.ODP || f == format.ODS || f == format.ODG:
		detailErr = inspectODF(path, f, info)
	case f == format.XLSX:
		detailErr = inspectXLSX(path, info)
	case f == format.XLS:
		detailErr = inspectXLS(path, info)
	case f.IsRaster() && f != format.HEIC:
		detailErr = inspectImage(path, info)
	}
	if detailErr != nil {
		info.Warnings = append(info.Warnings, detailErr.Error())
	}
	return info, nil
}

// detect sniffs the content first and falls back to the extension. Text
// formats cannot be told apart by content, so their extension wins.
func detect(path string) (format.Format, string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", err
	}
	mime := m.String()
	sniffed := format.FromMIME(mime)
	byExt := format.FromPath(path)
	switch {
	case sniffed == "":
		return byExt, mime, nil
	case byExt != "" && sniffed.IsText() && byExt.IsText():
		return byExt, mime, nil
	}
	return sniffed, mime, nil
}

var recommendations = map[format.Format][]format.Format{
	format.PDF:      {format.DOCX, format.HTML, format.Markdown},
	format.DOCX:     {format.PDF, format.HTML, format.ODT},
	format.PPTX:     {format.PDF, format.HTML},
	format.JPG:      {format.PDF},
	format.PNG:      {format.PDF},
	format.HEIC:     {format.JPG, format.PDF},
	format.HTML:     {format.PDF, format.DOCX},
	format.Markdown: {format.PDF, format.DOCX, format.HTML},
	format.XLSX:     {format.PDF, format.CSV},
}

// Recommended lists the usual targets for f, PDF when nothing specific
// applies. Only supported targets are returned.
func Recommended(f format.Format) []format.Format {
	want, ok := recommendations[f]
	if !ok {
		want = []format.Format{format.PDF}
	}
	out := make([]format.Format, 0, len(want))
	for _, t := range want {
		if format.Supported(f, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		if targets := format.Targets(f); len(targets) > 0 {
			out = append(out, targets[0])
		}
	}
	return out
}

// HumanSize formats n bytes with one decimal, e.g. "1.5 MB".
func HumanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

package converter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
)

// LayoutEngine runs the docling CLI, which rebuilds document structure
// (headings, tables, reading order) from PDFs.
type LayoutEngine struct {
	tb *Toolbox
}

func (e *LayoutEngine) Choice() engine.Choice { return engine.AILayout }

func (e *LayoutEngine) Convert(ctx context.Context, t Task) error {
	docling, err := e.tb.Tool(engine.ToolDocling)
	if err != nil {
		return err
	}
	to, ext := "md", "md"
	switch t.To {
	case format.HTML:
		to, ext = "html", "html"
	case format.TXT:
		to, ext = "text", "txt"
	}
	outDir := filepath.Join(t.WorkDir, "layout")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := runTool(ctx, e.tb.exec, t.Log, t.WorkDir, docling, layoutArgs(t, to, outDir)...); err != nil {
		return err
	}
	out, err := findOutput(outDir, stemOf(t.SrcPath), ext)
	if err != nil {
		return err
	}
	if t.To != format.DOCX {
		return os.Rename(out, t.DstPath)
	}
	// docx goes through the recovered markdown
	markup, err := e.tb.Engine(engine.MarkupProcessor)
	if err != nil {
		return err
	}
	next := t
	next.SrcPath = out
	next.From = format.Markdown
	return markup.Convert(ctx, next)
}

func layoutArgs(t Task, to, outDir string) []string {
	args := []string{t.SrcPath, "--to", to, "--output", outDir}
	if t.OCR {
		args = append(args, "--ocr")
	} else {
		args = append(args, "--no-ocr")
	}
	if t.Quality == domain.QualityHigh {
		args = append(args, "--table-mode", "accurate")
	} else {
		args = append(args, "--table-mode", "fast")
	}
	return args
}

package converter

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	mdconv "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
)

// MarkupEngine converts between text and markup formats. pandoc does the
// heavy lifting; a handful of pairs are handled in-process so the engine
// stays useful without it.
type MarkupEngine struct {
	tb *Toolbox
}

func (e *MarkupEngine) Choice() engine.Choice { return engine.MarkupProcessor }

var pandocReaders = map[format.Format]string{
	format.Markdown: "markdown",
	format.TXT:      "markdown",
	format.HTML:     "html",
	format.RTF:      "rtf",
	format.DOCX:     "docx",
	format.ODT:      "odt",
	format.EPUB:     "epub",
}

var pandocWriters = map[format.Format]string{
	format.Markdown: "gfm",
	format.HTML:     "html5",
	format.TXT:      "plain",
	format.DOCX:     "docx",
	format.ODT:      "odt",
	format.RTF:      "rtf",
	format.PPTX:     "pptx",
}

func (e *MarkupEngine) Convert(ctx context.Context, t Task) error {
	src := t.SrcPath
	if t.From == format.Markdown || t.From == format.TXT {
		cleaned, err := cleanCopy(t)
		if err != nil {
			return err
		}
		src = cleaned
	}
	pandoc, perr := e.tb.Tool(engine.ToolPandoc)
	if t.From == format.PDF || (perr != nil && engine.NativeMarkup(t.From, t.To)) {
		return convertNative(ctx, src, t)
	}
	if perr != nil {
		return perr
	}
	return runTool(ctx, e.tb.exec, t.Log, t.WorkDir, pandoc, e.pandocArgs(src, t)...)
}

func (e *MarkupEngine) pandocArgs(src string, t Task) []string {
	args := []string{"-f", pandocReaders[t.From]}
	if w, ok := pandocWriters[t.To]; ok {
		args = append(args, "-t", w)
	}
	if t.To == format.PDF && e.tb.opts.PDFEngine != "" {
		args = append(args, "--pdf-engine="+e.tb.opts.PDFEngine)
	}
	switch t.Quality {
	case domain.QualityHigh:
		args = append(args, "--standalone", "--toc", "--number-sections")
	case domain.QualityLow:
		args = append(args, "--no-highlight")
	default:
		if t.To == format.HTML {
			args = append(args, "--standalone")
		}
	}
	return append(args, "-o", t.DstPath, src)
}

// cleanCopy writes a BOM-free UTF-8 copy of a text source into the work dir.
func cleanCopy(t Task) (string, error) {
	data, err := os.ReadFile(t.SrcPath)
	if err != nil {
		return "", domain.Unreadable(t.SrcPath, err)
	}
	cleaned, charset := cleanText(data)
	if t.Log != nil && charset != "utf-8" {
		fmt.Fprintf(t.Log, "decoded %s from %s\n", filepath.Base(t.SrcPath), charset)
	}
	dst := filepath.Join(t.WorkDir, "clean-"+filepath.Base(t.SrcPath))
	if err := os.WriteFile(dst, cleaned, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

func convertNative(ctx context.Context, src string, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var text string
	var err error
	switch t.From {
	case format.PDF:
		var pages []string
		pages, err = pdfPages(src)
		if err == nil {
			text = renderPages(pages, t.To)
		}
	case format.HTML:
		var data []byte
		data, err = os.ReadFile(src)
		if err == nil {
			text, err = htmlToMarkdown(string(data))
		}
	case format.Markdown:
		var data []byte
		data, err = os.ReadFile(src)
		if err == nil && t.To == format.HTML {
			text, err = markdownToHTML(data)
		} else {
			text = string(data)
		}
	case format.TXT:
		var data []byte
		data, err = os.ReadFile(src)
		if err == nil && t.To == format.HTML {
			text = wrapHTML("<pre>" + html.EscapeString(string(data)) + "</pre>")
		} else {
			text = string(data)
		}
	default:
		return domain.Unavailable(fmt.Sprintf("pandoc required for %s -> %s", t.From, t.To), nil)
	}
	if err != nil {
		return domain.Failed("native "+string(t.From)+" conversion", err)
	}
	return os.WriteFile(t.DstPath, []byte(text), 0o644)
}

// pdfPages extracts the plain text of every page. The PDF parser panics on
// some malformed files; that is reported as an error.
func pdfPages(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(s))
	}
	return pages, nil
}

func renderPages(pages []string, to format.Format) string {
	switch to {
	case format.HTML:
		var b strings.Builder
		for i, p := range pages {
			fmt.Fprintf(&b, "<section id=\"page-%d\">\n", i+1)
			for _, para := range strings.Split(p, "\n\n") {
				if para = strings.TrimSpace(para); para != "" {
					fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(para))
				}
			}
			b.WriteString("</section>\n")
		}
		return wrapHTML(b.String())
	case format.Markdown:
		return strings.Join(pages, "\n\n---\n\n") + "\n"
	default:
		return strings.Join(pages, "\n\f\n") + "\n"
	}
}

func htmlToMarkdown(s string) (string, error) {
	conv := mdconv.NewConverter(
		mdconv.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle("atx"),
			),
			table.NewTablePlugin(),
		),
	)
	return conv.ConvertString(s)
}

func markdownToHTML(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return "", err
	}
	return wrapHTML(buf.String()), nil
}

func wrapHTML(body string) string {
	return "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"></head>\n<body>\n" + body + "</body>\n</html>\n"
}

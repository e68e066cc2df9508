package converter

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
)

// MarkdownPDFEngine lays markdown out as PDF directly, without an office
// suite or LaTeX. Output depends only on the input bytes.
type MarkdownPDFEngine struct {
	// Font is a TrueType file with wide unicode coverage. Without it only
	// text that cp1252 can encode is laid out.
	Font string
}

func (e *MarkdownPDFEngine) Choice() engine.Choice { return engine.DirectMarkdown }

func (e *MarkdownPDFEngine) Convert(ctx context.Context, t Task) error {
	data, err := os.ReadFile(t.SrcPath)
	if err != nil {
		return domain.Unreadable(t.SrcPath, err)
	}
	data, _ = cleanText(data)
	if err := ctx.Err(); err != nil {
		return err
	}
	var font []byte
	if e.Font != "" {
		if font, err = os.ReadFile(e.Font); err != nil {
			return domain.Failed("read font", err)
		}
	} else if r, ok := firstUnencodable(data); ok {
		return domain.Failed("layout markdown",
			fmt.Errorf("%q is outside the built-in fonts, set engines.font to a unicode TrueType font", r))
	}
	doc, err := renderMarkdownPDF(data, font)
	if err != nil {
		return domain.Failed("layout markdown", err)
	}
	if err := doc.OutputFileAndClose(t.DstPath); err != nil {
		return domain.Failed("write pdf", err)
	}
	return nil
}

var headingSizes = map[int]float64{1: 20, 2: 16, 3: 14, 4: 12, 5: 11, 6: 11}

const (
	bodySize   = 11
	lineHeight = 5.5
)

// unicodeFamily names the configured TrueType font inside the document.
const unicodeFamily = "body"

type mdWriter struct {
	doc    *fpdf.Fpdf
	src    []byte
	tr     func(string) string
	sans   string
	mono   string
	indent float64
}

// firstUnencodable returns the first rune the core PDF fonts cannot show.
func firstUnencodable(src []byte) (rune, bool) {
	for _, r := range string(src) {
		if r < 0x80 {
			continue
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return r, true
		}
	}
	return 0, false
}

func renderMarkdownPDF(src, font []byte) (*fpdf.Fpdf, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreationDate(pdfEpoch)
	doc.SetModificationDate(pdfEpoch)
	doc.SetCatalogSort(true)
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	w := &mdWriter{doc: doc, src: src, sans: "Helvetica", mono: "Courier"}
	if len(font) > 0 {
		doc.AddUTF8FontFromBytes(unicodeFamily, "", font)
		doc.AddUTF8FontFromBytes(unicodeFamily, "B", font)
		w.sans, w.mono = unicodeFamily, unicodeFamily
		w.tr = func(s string) string { return s }
	} else {
		w.tr = doc.UnicodeTranslatorFromDescriptor("")
	}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n)
	}
	return doc, doc.Error()
}

func (w *mdWriter) block(n ast.Node) {
	doc := w.doc
	switch n := n.(type) {
	case *ast.Heading:
		size := headingSizes[n.Level]
		doc.Ln(2)
		doc.SetFont(w.sans, "B", size)
		w.cell(inlineText(n, w.src), size*0.5)
		doc.Ln(1)
	case *ast.Paragraph, *ast.TextBlock:
		doc.SetFont(w.sans, "", bodySize)
		w.cell(inlineText(n, w.src), lineHeight)
		doc.Ln(2)
	case *ast.List:
		num := n.Start
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "• "
			if n.IsOrdered() {
				marker = strconv.Itoa(num) + ". "
				num++
			}
			w.listItem(item, marker)
		}
		doc.Ln(1)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		doc.SetFont(w.mono, "", 9)
		doc.SetFillColor(242, 242, 242)
		w.fill(blockLines(n, w.src), 4.5)
		doc.Ln(2)
	case *ast.Blockquote:
		w.indent += 8
		doc.SetTextColor(90, 90, 90)
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}
		doc.SetTextColor(0, 0, 0)
		w.indent -= 8
	case *ast.ThematicBreak:
		y := doc.GetY() + 2
		left, _, right, _ := doc.GetMargins()
		pw, _ := doc.GetPageSize()
		doc.Line(left, y, pw-right, y)
		doc.Ln(5)
	case *east.Table:
		w.table(n)
	case *ast.HTMLBlock:
		doc.SetFont(w.mono, "", 9)
		w.cell(blockLines(n, w.src), 4.5)
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}
	}
}

func (w *mdWriter) listItem(item ast.Node, marker string) {
	doc := w.doc
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*ast.List); ok {
			w.indent += 6
			w.block(c)
			w.indent -= 6
			continue
		}
		doc.SetFont(w.sans, "", bodySize)
		w.cell(marker+inlineText(c, w.src), lineHeight)
		marker = "  "
	}
}

func (w *mdWriter) table(t *east.Table) {
	doc := w.doc
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, inlineText(c, w.src))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	left, _, right, _ := doc.GetMargins()
	pw, _ := doc.GetPageSize()
	colW := (pw - left - right - w.indent) / float64(len(rows[0]))
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		doc.SetFont(w.sans, style, 10)
		doc.SetX(left + w.indent)
		for _, cell := range row {
			doc.CellFormat(colW, 7, w.tr(cell), "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}
	doc.Ln(2)
}

func (w *mdWriter) cell(s string, h float64) {
	left, _, _, _ := w.doc.GetMargins()
	w.doc.SetX(left + w.indent)
	w.doc.MultiCell(0, h, w.tr(s), "", "L", false)
}

func (w *mdWriter) fill(s string, h float64) {
	left, _, _, _ := w.doc.GetMargins()
	w.doc.SetX(left + w.indent)
	w.doc.MultiCell(0, h, w.tr(s), "", "L", true)
}

// inlineText flattens the inline children of n to plain text.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.HardLineBreak() {
				b.WriteByte('\n')
			} else if n.SoftLineBreak() {
				b.WriteByte(' ')
			}
			return
		case *ast.String:
			b.Write(n.Value)
			return
		case *ast.AutoLink:
			b.Write(n.URL(src))
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func blockLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimRight(b.String(), "\n")
}

package converter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
)

// OfficeEngine drives LibreOffice in headless mode.
type OfficeEngine struct {
	tb *Toolbox
}

func (e *OfficeEngine) Choice() engine.Choice { return engine.OfficeSuite }

var officeFlags = []string{
	"--headless",
	"--invisible",
	"--nocrashreport",
	"--nodefault",
	"--nofirststartwizard",
	"--nolockcheck",
	"--nologo",
	"--norestore",
}

// officeFilters pins export filters where the bare extension is ambiguous.
var officeFilters = map[format.Format]string{
	format.TXT:  "txt:Text (encoded):UTF8",
	format.CSV:  "csv:Text - txt - csv (StarCalc):44,34,76,1",
	format.DOCX: "docx:MS Word 2007 XML",
	format.PPTX: "pptx:Impress MS PowerPoint 2007 XML",
	format.XLSX: "xlsx:Calc MS Excel 2007 XML",
	format.XLS:  "xls:MS Excel 97",
}

func (e *OfficeEngine) Convert(ctx context.Context, t Task) error {
	soffice, err := e.tb.Tool(engine.ToolSoffice)
	if err != nil {
		return err
	}
	profile, err := e.tb.ProfileDir()
	if err != nil {
		return err
	}
	outDir := filepath.Join(t.WorkDir, "office")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	src := t.SrcPath
	if t.From == format.Markdown {
		if src, err = cleanCopy(t); err != nil {
			return err
		}
	}
	args := officeArgs(profile, outDir, src, t)
	if err := runTool(ctx, e.tb.exec, t.Log, t.WorkDir, soffice, args...); err != nil {
		return err
	}
	out, err := findOutput(outDir, stemOf(src), t.To.Extension())
	if err != nil {
		return err
	}
	return os.Rename(out, t.DstPath)
}

func officeArgs(profile, outDir, src string, t Task) []string {
	args := []string{"-env:UserInstallation=" + fileURL(profile)}
	args = append(args, officeFlags...)
	switch t.From {
	case format.PDF:
		args = append(args, "--infilter="+pdfImportFilter(t.To))
	case format.Markdown:
		args = append(args, "--infilter=Text (encoded):UTF8")
	}
	filter := officeFilters[t.To]
	if filter == "" {
		filter = t.To.Extension()
	}
	return append(args, "--convert-to", filter, "--outdir", outDir, src)
}

// pdfImportFilter picks the LibreOffice module that opens a PDF, which
// decides what it can be exported to.
func pdfImportFilter(to format.Format) string {
	switch to {
	case format.DOCX, format.ODT, format.RTF, format.HTML:
		return "writer_pdf_import"
	case format.PPTX, format.ODP:
		return "impress_pdf_import"
	default:
		return "draw_pdf_import"
	}
}

func fileURL(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

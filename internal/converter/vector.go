package converter

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"path/filepath"

	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
)

// VectorEngine rasterizes SVG with rsvg-convert.
type VectorEngine struct {
	tb *Toolbox
}

func (e *VectorEngine) Choice() engine.Choice { return engine.VectorFallback }

func (e *VectorEngine) Convert(ctx context.Context, t Task) error {
	rsvg, err := e.tb.Tool(engine.ToolRsvg)
	if err != nil {
		return err
	}
	params := ParamsFor(t.Quality)
	dpi := fmt.Sprintf("%.0f", params.DPI)
	out, kind := t.DstPath, "png"
	switch t.To {
	case format.PDF:
		kind = "pdf"
	case format.JPG:
		out = filepath.Join(t.WorkDir, "raster.png")
	}
	args := []string{"-f", kind, "-d", dpi, "-p", dpi, "-b", "white", "-o", out, t.SrcPath}
	if err := runTool(ctx, e.tb.exec, t.Log, t.WorkDir, rsvg, args...); err != nil {
		return err
	}
	if t.To != format.JPG {
		return nil
	}
	img, err := decodeFile(out)
	if err != nil {
		return err
	}
	return writeFile(t.DstPath, func(b *bytes.Buffer) error {
		return jpeg.Encode(b, flatten(img), &jpeg.Options{Quality: params.JPEGQuality})
	})
}

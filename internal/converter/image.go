package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/format"
)

// pdfEpoch is stamped into generated PDFs so identical input gives identical
// bytes.
var pdfEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ImageEngine transcodes raster images in-process. HEIC goes through the
// libheif command line tools; PDF pages are rendered with MuPDF.
type ImageEngine struct {
	tb *Toolbox
}

func (e *ImageEngine) Choice() engine.Choice { return engine.ImageLibrary }

func (e *ImageEngine) Convert(ctx context.Context, t Task) error {
	params := ParamsFor(t.Quality)
	img, err := e.load(ctx, t, params)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store(ctx, t, img, params)
}

func (e *ImageEngine) load(ctx context.Context, t Task, params QualityParams) (image.Image, error) {
	switch t.From {
	case format.PDF:
		img, err := renderPDFPage(t.SrcPath, 0, params.DPI)
		if err != nil {
			return nil, domain.Failed("render pdf page", err)
		}
		return img, nil
	case format.HEIC:
		dec, err := e.tb.Tool(engine.ToolHeifDec)
		if err != nil {
			return nil, err
		}
		tmp := filepath.Join(t.WorkDir, "decoded.png")
		if err := runTool(ctx, e.tb.exec, t.Log, t.WorkDir, dec, t.SrcPath, tmp); err != nil {
			return nil, err
		}
		return decodeFile(tmp)
	default:
		return decodeFile(t.SrcPath)
	}
}

func (e *ImageEngine) store(ctx context.Context, t Task, img image.Image, params QualityParams) error {
	switch t.To {
	case format.JPG:
		return writeFile(t.DstPath, func(b *bytes.Buffer) error {
			return jpeg.Encode(b, flatten(img), &jpeg.Options{Quality: params.JPEGQuality})
		})
	case format.PNG:
		return writeFile(t.DstPath, func(b *bytes.Buffer) error {
			enc := png.Encoder{CompressionLevel: pngLevel(params.PNGCompression)}
			return enc.Encode(b, img)
		})
	case format.GIF:
		return writeFile(t.DstPath, func(b *bytes.Buffer) error {
			return gif.Encode(b, img, &gif.Options{NumColors: 256})
		})
	case format.PDF:
		return imageToPDF(img, params.DPI, t.DstPath)
	case format.HEIC:
		enc, err := e.tb.Tool(engine.ToolHeifEnc)
		if err != nil {
			return err
		}
		tmp := filepath.Join(t.WorkDir, "encode.png")
		if err := writeFile(tmp, func(b *bytes.Buffer) error { return png.Encode(b, img) }); err != nil {
			return err
		}
		return runTool(ctx, e.tb.exec, t.Log, t.WorkDir, enc, "-q", strconv.Itoa(params.JPEGQuality), "-o", t.DstPath, tmp)
	}
	return domain.Unsupported(fmt.Sprintf("image target %s", t.To))
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Unreadable(path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, domain.Failed("decode "+filepath.Base(path), err)
	}
	return img, nil
}

func writeFile(path string, encode func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return domain.Failed("encode "+filepath.Base(path), err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// flatten composites img onto white; JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

func pngLevel(n int) png.CompressionLevel {
	switch {
	case n <= 1:
		return png.BestSpeed
	case n >= 9:
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}

// imageToPDF writes img as a single PDF page sized to the image at dpi.
func imageToPDF(img image.Image, dpi float64, dst string) error {
	if dpi <= 0 {
		dpi = 150
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.Failed("encode page image", err)
	}
	b := img.Bounds()
	w := float64(b.Dx()) * 72 / dpi
	h := float64(b.Dy()) * 72 / dpi
	orientation := "P"
	if w > h {
		orientation = "L"
	}

	doc := fpdf.New(orientation, "pt", "", "")
	doc.SetCreationDate(pdfEpoch)
	doc.SetModificationDate(pdfEpoch)
	doc.SetCatalogSort(true)
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPageFormat(orientation, fpdf.SizeType{Wd: w, Ht: h})
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("page", opts, &buf)
	doc.ImageOptions("page", 0, 0, w, h, false, opts, 0, "")
	if err := doc.OutputFileAndClose(dst); err != nil {
		return domain.Failed("write pdf", err)
	}
	return nil
}

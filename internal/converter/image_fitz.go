package converter

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// pdfRasterAvailable reports whether renderPDFPage works in this build.
var pdfRasterAvailable = true

// renderPDFPage renders one zero-based page at dpi.
func renderPDFPage(path string, page int, dpi float64) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()
	if doc.NumPage() <= page {
		return nil, fmt.Errorf("pdf has %d pages, want page %d", doc.NumPage(), page+1)
	}
	return doc.ImageDPI(page, dpi)
}

package analyzer

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/extrame/xls"
	"github.com/ledongthuc/pdf"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/xuri/excelize/v2"

	"github.com/ah-its-andy/docconv/internal/format"
)

func inspectPDF(path string, info *Info) (err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			info.Encrypted = true
			return nil
		}
		return fmt.Errorf("read pdf: %w", err)
	}
	n := r.NumPage()
	info.Pages = &n
	info.Encrypted = r.Trailer().Key("Encrypt").Kind() != pdf.Null
	return nil
}

type appProps struct {
	Pages  int `xml:"Pages"`
	Slides int `xml:"Slides"`
}

func readAppProps(zr *zip.ReadCloser) (appProps, error) {
	var props appProps
	data, err := readZipFile(zr, "docProps/app.xml")
	if err != nil {
		return props, err
	}
	if err := xml.Unmarshal(data, &props); err != nil {
		return props, fmt.Errorf("parse app.xml: %w", err)
	}
	return props, nil
}

func inspectDOCX(path string, info *Info) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()
	props, err := readAppProps(zr)
	if err != nil {
		return err
	}
	// Word writes the count on save; 0 means it never did
	if props.Pages > 0 {
		info.Pages = &props.Pages
	}
	return nil
}

var slideEntry = regexp.MustCompile(`^ppt/slides/slide\d+\.xml$`)

func inspectPPTX(path string, info *Info) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()
	n := 0
	for _, f := range zr.File {
		if slideEntry.MatchString(f.Name) {
			n++
		}
	}
	info.Pages = &n
	return nil
}

func inspectODF(path string, f format.Format, info *Info) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f, err)
	}
	defer zr.Close()
	switch f {
	case format.ODT:
		meta, err := readZipFile(zr, "meta.xml")
		if err != nil {
			return err
		}
		if n, ok := odfStatistic(meta, "page-count"); ok {
			info.Pages = &n
		}
		return nil
	}

	content, err := readZipFile(zr, "content.xml")
	if err != nil {
		return err
	}
	pages, tables, err := odfBody(content)
	if err != nil {
		return err
	}
	switch f {
	case format.ODS:
		info.Sheets = tables
	default:
		info.Pages = &pages
	}
	return nil
}

// odfStatistic reads one attribute of meta:document-statistic.
func odfStatistic(meta []byte, attr string) (int, bool) {
	dec := xml.NewDecoder(bytes.NewReader(meta))
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, false
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "document-statistic" {
			continue
		}
		for _, a := range se.Attr {
			if a.Name.Local == attr {
				n, err := strconv.Atoi(a.Value)
				return n, err == nil
			}
		}
		return 0, false
	}
}

// odfBody counts draw:page elements and collects table:table names.
func odfBody(content []byte) (int, []string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	pages := 0
	var tables []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return pages, tables, nil
		}
		if err != nil {
			return 0, nil, fmt.Errorf("parse content.xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case se.Name.Local == "page" && strings.Contains(se.Name.Space, "drawing"):
			pages++
		case se.Name.Local == "table" && strings.Contains(se.Name.Space, "table"):
			for _, a := range se.Attr {
				if a.Name.Local == "name" {
					tables = append(tables, a.Value)
				}
			}
		}
	}
}

func readZipFile(zr *zip.ReadCloser, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, 32<<20))
	}
	return nil, fmt.Errorf("%s not found", name)
}

func inspectXLSX(path string, info *Info) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	info.Sheets = f.GetSheetList()
	return nil
}

func inspectXLS(path string, info *Info) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read xls: %v", r)
		}
	}()
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return fmt.Errorf("open xls: %w", err)
	}
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		info.Sheets = append(info.Sheets, name)
	}
	return nil
}

func inspectImage(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	info.Width, info.Height = cfg.Width, cfg.Height

	if info.Format != format.JPG {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	x, err := exif.Decode(f)
	if err != nil {
		// most images simply carry no EXIF block
		return nil
	}
	if tm, err := x.DateTime(); err == nil {
		info.TakenAt = &tm
	}
	return nil
}

package analyzer

import (
	"archive/zip"
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

type entry struct{ name, body string }

func writeZip(t *testing.T, path string, entries ...entry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.name == "mimetype" {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestAnalyzePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < 3; i++ {
		doc.AddPage()
		doc.Cell(40, 10, "page")
	}
	require.NoError(t, doc.OutputFileAndClose(path))

	info, err := Analyze(path)
	require.NoError(t, err)
	assert.Equal(t, format.PDF, info.Format)
	assert.Equal(t, "application/pdf", info.MIME)
	require.NotNil(t, info.Pages)
	assert.Equal(t, 3, *info.Pages)
	assert.False(t, info.Encrypted)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, []format.Format{format.DOCX, format.HTML, format.Markdown}, info.Recommended)
	assert.Contains(t, info.Targets, format.TXT)
}

func TestAnalyzeOfficeCounts(t *testing.T) {
	dir := t.TempDir()
	const slide = `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`
	tests := []struct {
		name   string
		path   string
		format format.Format
		pages  int
		sheets []string
	}{
		{
			name: "docx from app.xml",
			path: writeZip(t, filepath.Join(dir, "memo.docx"),
				entry{"[Content_Types].xml", `<Types/>`},
				entry{"word/document.xml", `<w:document/>`},
				entry{"docProps/app.xml", `<Properties><Pages>4</Pages><Words>120</Words></Properties>`}),
			format: format.DOCX,
			pages:  4,
		},
		{
			name: "pptx counts slide parts",
			path: writeZip(t, filepath.Join(dir, "deck.pptx"),
				entry{"[Content_Types].xml", `<Types/>`},
				entry{"ppt/presentation.xml", `<p:presentation/>`},
				entry{"ppt/slides/slide1.xml", slide},
				entry{"ppt/slides/slide2.xml", slide},
				entry{"ppt/slides/slide3.xml", slide},
				entry{"ppt/slides/_rels/slide1.xml.rels", `<Relationships/>`}),
			format: format.PPTX,
			pages:  3,
		},
		{
			name: "odt page-count",
			path: writeZip(t, filepath.Join(dir, "letter.odt"),
				entry{"mimetype", "application/vnd.oasis.opendocument.text"},
				entry{"meta.xml", `<office:document-meta xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0"><office:meta><meta:document-statistic meta:page-count="2" meta:word-count="10"/></office:meta></office:document-meta>`},
				entry{"content.xml", `<office:document-content/>`}),
			format: format.ODT,
			pages:  2,
		},
		{
			name: "odp draw pages",
			path: writeZip(t, filepath.Join(dir, "talk.odp"),
				entry{"mimetype", "application/vnd.oasis.opendocument.presentation"},
				entry{"content.xml", `<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"><office:body><office:presentation><draw:page draw:name="a"/><draw:page draw:name="b"/></office:presentation></office:body></office:document-content>`}),
			format: format.ODP,
			pages:  2,
		},
		{
			name: "ods table names",
			path: writeZip(t, filepath.Join(dir, "budget.ods"),
				entry{"mimetype", "application/vnd.oasis.opendocument.spreadsheet"},
				entry{"content.xml", `<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"><office:body><office:spreadsheet><table:table table:name="Income"/><table:table table:name="Costs"/></office:spreadsheet></office:body></office:document-content>`}),
			format: format.ODS,
			pages:  -1,
			sheets: []string{"Income", "Costs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Analyze(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.format, info.Format)
			assert.Empty(t, info.Warnings)
			if tt.pages >= 0 {
				require.NotNil(t, info.Pages)
				assert.Equal(t, tt.pages, *info.Pages)
			} else {
				assert.Nil(t, info.Pages)
			}
			assert.Equal(t, tt.sheets, info.Sheets)
		})
	}
}

func TestAnalyzeXLSXSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	info, err := Analyze(path)
	require.NoError(t, err)
	assert.Equal(t, format.XLSX, info.Format)
	assert.Equal(t, []string{"Sheet1", "Data"}, info.Sheets)
	assert.Nil(t, info.Pages)
}

func TestAnalyzeImages(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))

	var jb, pb bytes.Buffer
	require.NoError(t, jpeg.Encode(&jb, img, nil))
	require.NoError(t, png.Encode(&pb, img))
	jpgPath := filepath.Join(dir, "photo.jpeg")
	require.NoError(t, os.WriteFile(jpgPath, jb.Bytes(), 0o644))
	// content wins over a misleading extension
	pngPath := filepath.Join(dir, "scan.jpg")
	require.NoError(t, os.WriteFile(pngPath, pb.Bytes(), 0o644))

	info, err := Analyze(jpgPath)
	require.NoError(t, err)
	assert.Equal(t, format.JPG, info.Format)
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 30, info.Height)
	assert.Nil(t, info.TakenAt)
	assert.Nil(t, info.Pages)

	info, err = Analyze(pngPath)
	require.NoError(t, err)
	assert.Equal(t, format.PNG, info.Format)
	assert.Equal(t, "image/png", info.MIME)
}

func TestAnalyzeTextUsesExtension(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(md, []byte("<p>looks like html</p>\n# but is markdown\n"), 0o644))

	info, err := Analyze(md)
	require.NoError(t, err)
	assert.Equal(t, format.Markdown, info.Format)
	assert.Nil(t, info.Pages)
	assert.Equal(t, []format.Format{format.PDF, format.DOCX, format.HTML}, info.Recommended)
}

func TestAnalyzeUnreadable(t *testing.T) {
	dir := t.TempDir()
	blob := filepath.Join(dir, "blob.xyz")
	require.NoError(t, os.WriteFile(blob, []byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x10}, 0o644))

	for _, path := range []string{blob, filepath.Join(dir, "missing.pdf"), dir} {
		_, err := Analyze(path)
		assert.ErrorIs(t, err, domain.ErrUnreadableFile, path)
	}
}

func TestAnalyzeBrokenPDFIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj garbage"), 0o644))

	info, err := Analyze(path)
	require.NoError(t, err)
	assert.Equal(t, format.PDF, info.Format)
	assert.Nil(t, info.Pages)
	assert.NotEmpty(t, info.Warnings)
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0.0 B"},
		{512, "512.0 B"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
		{2 << 40, "2.0 TB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanSize(tt.n))
	}
}

func TestRecommendedOnlySupported(t *testing.T) {
	assert.Equal(t, []format.Format{format.JPG, format.PDF}, Recommended(format.HEIC))
	assert.Equal(t, []format.Format{format.PDF}, Recommended(format.EPUB))
	for _, f := range format.Sources() {
		for _, r := range Recommended(f) {
			assert.True(t, format.Supported(f, r), "%s -> %s", f, r)
		}
	}
}

func TestEstimateFor(t *testing.T) {
	small := &Info{SizeBytes: 100 << 10}
	big := &Info{SizeBytes: 40 << 20}

	e := EstimateFor(small, format.PDF, domain.QualityBalanced)
	assert.Equal(t, time.Second, e.Duration)
	assert.Equal(t, ComplexityLow, e.Complexity)

	e = EstimateFor(big, format.PDF, domain.QualityBalanced)
	assert.Equal(t, 80*time.Second, e.Duration)
	assert.Equal(t, ComplexityHigh, e.Complexity)

	assert.Less(t, EstimateFor(big, format.PDF, domain.QualityLow).Duration, EstimateFor(big, format.PDF, domain.QualityHigh).Duration)
	assert.Equal(t, ComplexityMedium, EstimateFor(&Info{SizeBytes: 5 << 20}, format.HTML, "").Complexity)
}

func TestInfoEstimate(t *testing.T) {
	info := &Info{SizeBytes: 10 << 20, Recommended: []format.Format{format.HTML}}
	assert.Equal(t, 5*time.Second, info.Estimate(domain.QualityBalanced))
	assert.Equal(t, 20*time.Second, (&Info{SizeBytes: 10 << 20}).Estimate(domain.QualityBalanced))
}

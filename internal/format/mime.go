package format

import "strings"

var mimeFormats = map[string]Format{
	"application/pdf": PDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   DOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": PPTX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         XLSX,
	"application/vnd.ms-excel":                          XLS,
	"application/vnd.oasis.opendocument.text":           ODT,
	"application/vnd.oasis.opendocument.spreadsheet":    ODS,
	"application/vnd.oasis.opendocument.presentation":   ODP,
	"application/vnd.oasis.opendocument.graphics":       ODG,
	"application/epub+zip":                              EPUB,
	"application/rtf":                                   RTF,
	"text/rtf":                                          RTF,
	"text/html":                                         HTML,
	"text/markdown":                                     Markdown,
	"text/csv":                                          CSV,
	"image/jpeg":                                        JPG,
	"image/png":                                         PNG,
	"image/gif":                                         GIF,
	"image/heic":                                        HEIC,
	"image/heif":                                        HEIC,
	"image/svg+xml":                                     SVG,
}

// FromMIME maps a MIME type (parameters allowed) to a format. Generic
// containers such as "application/zip" or "text/plain" return "" so callers
// can fall back to the file extension.
func FromMIME(mime string) Format {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mimeFormats[strings.TrimSpace(strings.ToLower(mime))]
}

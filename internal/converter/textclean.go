package converter

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// cleanText returns data as BOM-free UTF-8 with LF line endings, along with
// the charset it was decoded from. Markdown engines choke on BOMs and
// legacy code pages.
func cleanText(data []byte) ([]byte, string) {
	charset := "utf-8"
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		charset = "utf-16le"
		data = decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), data)
	case bytes.HasPrefix(data, bomUTF16BE):
		charset = "utf-16be"
		data = decodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM), data)
	case !utf8.Valid(data):
		if res, err := chardet.NewTextDetector().DetectBest(data); err == nil {
			if enc := lookupEncoding(res.Charset); enc != nil {
				charset = strings.ToLower(res.Charset)
				data = decodeWith(enc, data)
			}
		}
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return data, charset
}

func decodeWith(enc encoding.Encoding, data []byte) []byte {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return bytes.TrimPrefix(out, bomUTF8)
}

func lookupEncoding(charset string) encoding.Encoding {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc
}

package header

import (
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeWords decodes RFC 2047 encoded-words (=?charset?encoding?text?=) in a
// header value. Text outside encoded-words is kept as UTF-8 with invalid
// sequences dropped. If decoding fails the raw value is returned.
func DecodeWords(raw string) string {
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return strings.ToValidUTF8(raw, "")
	}
	return strings.ToValidUTF8(decoded, "")
}

// ExtractAddress returns the address inside the first non-empty angle
// bracket pair of a "Name <addr>" field, or the trimmed field when there is
// none.
func ExtractAddress(field string) string {
	rest := field
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			return strings.TrimSpace(field)
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return strings.TrimSpace(field)
		}
		if end > 0 {
			return strings.TrimSpace(rest[:end])
		}
		rest = rest[1:]
	}
}

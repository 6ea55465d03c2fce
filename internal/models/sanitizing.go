package models

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// DecodeHeader turns a raw overview field (Subject, From) into UTF-8.
// RFC 2047 encoded-words are decoded with extended charset support and
// stray 8-bit text is treated as Latin-1.
func DecodeHeader(text string) string {
	decoded, err := headerDecoder.DecodeHeader(text)
	if err != nil {
		decoded = text
	}
	if utf8.ValidString(decoded) {
		return decoded
	}
	result, _, err := transform.String(charmap.ISO8859_1.NewDecoder(), decoded)
	if err != nil {
		return strings.ToValidUTF8(decoded, "�")
	}
	return result
}

// charsetReader resolves charsets mime.WordDecoder does not know about
// through golang.org/x/text/encoding/htmlindex.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	charset = normalizeCharsetName(charset)
	if charset == "utf-8" {
		return input, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset: %s", charset)
	}
	if enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// normalizeCharsetName normalizes charset names to match htmlindex expectations
func normalizeCharsetName(charset string) string {
	normalized := strings.ToLower(strings.TrimSpace(charset))

	switch normalized {
	case "iso-8859-15", "iso8859-15", "iso_8859-15", "latin-9", "latin9":
		return "iso-8859-15"
	case "iso-8859-1", "iso8859-1", "iso_8859-1", "latin-1", "latin1":
		return "iso-8859-1"
	case "iso-8859-2", "iso8859-2", "iso_8859-2", "latin-2", "latin2":
		return "iso-8859-2"
	case "windows-1252", "cp1252", "win1252":
		return "windows-1252"
	case "windows-1251", "cp1251", "win1251":
		return "windows-1251"
	case "utf-8", "utf8":
		return "utf-8"
	case "us-ascii", "ascii":
		return "windows-1252" // superset of ASCII
	default:
		return normalized
	}
}

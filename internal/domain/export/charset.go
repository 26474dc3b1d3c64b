package export

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	CharsetUTF8        = "utf-8"
	CharsetWindows1252 = "windows-1252"
)

var ErrUnsupportedCharset = errors.New("unsupported export charset")

// EncodeCharset converts encoded file content into the requested charset.
// Windows-1252 is what most desktop accounting imports expect; characters it
// cannot represent are replaced rather than failing the export.
func EncodeCharset(content, charset string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", CharsetUTF8, "utf8":
		return []byte(content), nil
	case CharsetWindows1252, "cp1252":
		out, err := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()).String(content)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}
	return nil, ErrUnsupportedCharset
}

// DecodeCharset is the inverse of EncodeCharset.
func DecodeCharset(raw []byte, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", CharsetUTF8, "utf8":
		return string(raw), nil
	case CharsetWindows1252, "cp1252":
		return charmap.Windows1252.NewDecoder().String(string(raw))
	}
	return "", ErrUnsupportedCharset
}

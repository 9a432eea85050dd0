package normalize

import (
	"context"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// readText reads a plain-text or markdown file. Invalid bytes never fail the
// read: UTF-8 input keeps its valid runes, anything without a single
// multi-byte sequence is decoded as Windows-1252.
func readText(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeText(b), nil
}

func decodeText(b []byte) string {
	if utf8.Valid(b) || looksUTF8(b) {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// looksUTF8 reports whether b holds at least one valid multi-byte sequence.
func looksUTF8(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r != utf8.RuneError && size > 1 {
			return true
		}
		b = b[size:]
	}
	return false
}

// Sanitize makes s safe for JSON and network serialization: invalid UTF-8
// (including encoded surrogate halves) is dropped, as are replacement
// characters, noncharacters and control characters other than tab, newline
// and carriage return. The result is NFC-normalized.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case unicode.Is(unicode.Cc, r):
			return -1
		case r == utf8.RuneError, r == 0xFFFE, r == 0xFFFF:
			return -1
		case r >= 0xD800 && r <= 0xDFFF:
			return -1
		}
		return r
	}, s)
	return norm.NFC.String(s)
}

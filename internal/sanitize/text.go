// Package sanitize turns upstream HTML-ish descriptions into plain display text.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// MaxLength is the display length of a cropped description, marker included.
const MaxLength = 180

const cropMarker = "..."

// maxPasses bounds the fixpoint loop in ClearText. Each pass never grows
// the text, so real input settles in two or three.
const maxPasses = 16

var (
	breakTag   = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag     = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// ClearText strips markup, decodes entities and percent-escapes, and
// collapses whitespace. It never fails: anything it cannot decode is kept
// as is. Passes repeat until the text stops changing, so escaped markup
// and double-encoded input come out fully decoded and ClearText(ClearText(s))
// equals ClearText(s).
func ClearText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := raw
	for i := 0; i < maxPasses; i++ {
		next := clearPass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func clearPass(s string) string {
	s = breakTag.ReplaceAllString(s, " ")
	s = stripMarkup(s)
	s = percentDecode(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CropText shortens text to MaxLength runes, ending with "...".
func CropText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxLength {
		return text
	}

	head := string(runes[:MaxLength-len(cropMarker)])
	head = strings.TrimRightFunc(head, unicode.IsSpace)
	return head + cropMarker
}

// stripMarkup drops tags and decodes entities by letting the HTML parser
// build a document and reading back its text nodes.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return html.UnescapeString(anyTag.ReplaceAllString(s, ""))
	}
	return doc.Text()
}

// percentDecode decodes each valid %XX escape and turns '+' into a space.
// A '%' not followed by two hex digits is kept literally, so one stray
// percent sign does not block the rest of the string.
func percentDecode(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

package intake

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy strips every element and escapes the remaining text, so the
// output is safe to interpolate into HTML email bodies. bluemonday policies
// are safe for concurrent use once built.
var strictPolicy = bluemonday.StrictPolicy()

// Sanitize removes markup and script content from s and trims the result.
// A '<' that cannot open a tag is kept as text, so "x<y" survives as
// "x&lt;y". Tag-shaped text such as "<b and c>" is still treated as markup.
// Sanitize(Sanitize(s)) == Sanitize(s) for all s.
func Sanitize(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(escapeStrayAngles(strings.TrimSpace(s))))
}

// escapeStrayAngles escapes every '<' that is not followed by a tag start
// ('/', '!', '?' or an ASCII letter) and a '>' before the next '<'.
func escapeStrayAngles(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if s[i] == '<' && !opensTag(s[i+1:]) {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func opensTag(rest string) bool {
	if rest == "" {
		return false
	}
	switch c := rest[0]; {
	case c == '/' || c == '!' || c == '?':
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
	default:
		return false
	}
	end := strings.IndexAny(rest, "<>")
	return end >= 0 && rest[end] == '>'
}

// stripControl drops C0 control characters and DEL, keeping tab, LF and CR.
// Postgres text columns reject NUL outright.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\t' && r != '\n' && r != '\r') || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

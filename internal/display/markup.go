package display

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is a run of message text with uniform emphasis
type Span struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// ParseMarkup splits a message into spans. It understands **bold**,
// __bold__, *italic* and _italic_. Markers that do not close, and
// underscores inside words, are kept as literal text.
func ParseMarkup(s string) []Span {
	if s == "" {
		return nil
	}
	var spans []Span
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			spans = append(spans, Span{Text: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(s); {
		if sp, next, ok := emphasisAt(s, i); ok {
			flush()
			spans = append(spans, sp)
			i = next
			continue
		}
		plain.WriteByte(s[i])
		i++
	}
	flush()
	return spans
}

// emphasisAt parses an emphasis span starting at i, preferring the double
// marker over the single one
func emphasisAt(s string, i int) (Span, int, bool) {
	c := s[i]
	if c != '*' && c != '_' {
		return Span{}, 0, false
	}
	for _, width := range []int{2, 1} {
		marker := strings.Repeat(string(c), width)
		if !strings.HasPrefix(s[i:], marker) {
			continue
		}
		if end, ok := closing(s, i, marker); ok {
			return Span{
				Text:   s[i+width : end],
				Bold:   width == 2,
				Italic: width == 1,
			}, end + width, true
		}
	}
	return Span{}, 0, false
}

// closing finds the end of an emphasis opened by marker at start
func closing(s string, start int, marker string) (int, bool) {
	width := len(marker)
	open := start + width
	if open >= len(s) {
		return 0, false
	}
	after, _ := utf8.DecodeRuneInString(s[open:])
	if unicode.IsSpace(after) {
		return 0, false
	}
	if marker[0] == '_' && start > 0 {
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(before) {
			return 0, false
		}
	}

	for j := open + 1; j+width <= len(s); j++ {
		if s[j:j+width] != marker {
			continue
		}
		// Skip the inner half of a longer marker run
		if j+width < len(s) && s[j+width] == marker[0] {
			continue
		}
		before, _ := utf8.DecodeLastRuneInString(s[:j])
		if unicode.IsSpace(before) {
			continue
		}
		if marker[0] == '_' && j+width < len(s) {
			following, _ := utf8.DecodeRuneInString(s[j+width:])
			if isWordRune(following) {
				continue
			}
		}
		return j, true
	}
	return 0, false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// PlainText drops emphasis markers from a message
func PlainText(s string) string {
	var b strings.Builder
	for _, sp := range ParseMarkup(s) {
		b.WriteString(sp.Text)
	}
	return b.String()
}

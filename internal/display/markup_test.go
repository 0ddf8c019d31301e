package display

import (
	"reflect"
	"testing"
)

func TestParseMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Span
	}{
		{"empty", "", nil},
		{"plain", "GET /users", []Span{{Text: "GET /users"}}},
		{"bold", "**bold**", []Span{{Text: "bold", Bold: true}}},
		{
			"italic in text",
			"some *italic* text",
			[]Span{{Text: "some "}, {Text: "italic", Italic: true}, {Text: " text"}},
		},
		{
			"underscore forms",
			"_it_ and __bd__",
			[]Span{{Text: "it", Italic: true}, {Text: " and "}, {Text: "bd", Bold: true}},
		},
		{"intraword underscores", "snake_case_name", []Span{{Text: "snake_case_name"}}},
		{"spaced asterisk", "a * b", []Span{{Text: "a * b"}}},
		{"unclosed", "**unclosed", []Span{{Text: "**unclosed"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMarkup(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseMarkup(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	if got := PlainText("**bold** and *it*"); got != "bold and it" {
		t.Errorf("PlainText = %q, want %q", got, "bold and it")
	}
}

package codec

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		wantSub  string
	}{
		{"inline count mismatch", "items[3]: a,b", 1, "expected 3 values, found 2"},
		{"tabular missing rows", "rows[2]{a}:\n  1", 1, "expected 2 rows, found 1"},
		{"tabular extra rows", "rows[1]{a}:\n  1\n  2", 3, "expected 1 rows, found more"},
		{"row arity mismatch", "rows[1]{a,b}:\n  1,2,3", 2, "row has 3 values, expected 2"},
		{"block missing items", "x[2]:\n  - 1", 1, "expected 2 list items, found 1"},
		{"block extra items", "x[1]:\n  - 1\n  - 2", 3, "expected 1 list items, found more"},
		{"duplicate key", "a: 1\na: 2", 2, `duplicate key "a"`},
		{"duplicate field", "t[1]{a,a}:\n  1,2", 1, `duplicate field "a"`},
		{"unterminated quote", `k: "unclosed`, 1, "unterminated quoted string"},
		{"text after closing quote", `k: "a"x`, 1, "unexpected text after closing quote"},
		{"invalid escape", `k: "a\qb"`, 1, `invalid escape '\q'`},
		{"odd indentation", "a:\n   b: 2", 2, "not a multiple"},
		{"stray indentation", "a: 1\n  b: 2", 2, "unexpected indentation"},
		{"tab indentation", "a:\n\tb: 1", 2, "tab in indentation"},
		{"blank interior line", "a: 1\n\nb: 2", 2, "blank line"},
		{"integer overflow", "9223372036854775808", 1, "out of range"},
		{"number overflow", strings.Repeat("9", 400) + ".0", 1, "out of range"},
		{"malformed count", "x[a]: 1", 1, `malformed list count "a"`},
		{"missing bracket close", "x[2: 1,2", 1, "missing ']'"},
		{"missing block under key", "a:", 1, `expected indented block under key "a"`},
		{"missing block under item", "x[1]:\n  -", 2, "expected indented block under list item"},
		{"item without dash", "x[1]:\n  y: 2", 2, "expected list item"},
		{"dash without space", "x[1]:\n  -1", 2, "expected list item"},
		{"unquoted bracket value", "k: [2]: a,b", 1, "unquoted value starting with '['"},
		{"empty inline cell", "x[2]: a,", 1, "empty value"},
		{"empty map token in cell", "x[2]: 1,{}", 1, "unexpected '{}'"},
		{"fields on empty list", "x[0]{a}:", 1, "field list on empty list"},
		{"rows without fields", "x[2]{}:", 1, "empty field list"},
		{"content after root scalar", "hello\nworld", 2, "unexpected content after document"},
		{"content after root empty map", "{}\na: 1", 2, "unexpected content after document"},
		{"not a key line in map", "a: 1\nb", 2, "expected a 'key: value'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode(tt.input)
			if err == nil {
				t.Fatalf("Decode(%q) succeeded with %#v, want error", tt.input, v)
			}
			var derr *DecodeError
			if !errors.As(err, &derr) {
				t.Fatalf("error type = %T, want *DecodeError", err)
			}
			if derr.Line != tt.wantLine {
				t.Errorf("error line = %d, want %d (err: %v)", derr.Line, tt.wantLine, derr)
			}
			if !strings.Contains(derr.Reason, tt.wantSub) {
				t.Errorf("error reason %q does not mention %q", derr.Reason, tt.wantSub)
			}
		})
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	for _, input := range []string{"", "\n", "  \n\n"} {
		v, err := Decode(input)
		if err == nil {
			t.Fatalf("Decode(%q) = %#v, want error", input, v)
		}
		var derr *DecodeError
		if !errors.As(err, &derr) || derr.Reason != "empty input" {
			t.Errorf("Decode(%q) error = %v, want empty input", input, err)
		}
	}
}

// Forms the encoder never emits but the grammar reads unambiguously.
func TestDecodeAcceptedVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"bare colon inside root scalar", "a:b", String("a:b")},
		{"leading zero is a string", "07", String("07")},
		{"block form of empty list", "x[0]:", NewMap().Set("x", List{})},
		{"crlf line endings", "a: 1\r\nb: 2\r\n", NewMap().Set("a", Int(1)).Set("b", Int(2))},
		{"trailing newline", "a: 1\n", NewMap().Set("a", Int(1))},
		{"trailing blank lines", "a: 1\n\n  \n", NewMap().Set("a", Int(1))},
		{"unquoted key with colon", "a:b: c", NewMap().Set("a:b", String("c"))},
		{"dash text as root scalar", "- x", String("- x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			if err != nil {
				t.Fatalf("Decode(%q) failed: %v", tt.input, err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeNeverPartial(t *testing.T) {
	// The document fails on its last line; nothing of it should surface.
	input := "a: 1\nb: 2\nc: \"unclosed"
	v, err := Decode(input)
	if err == nil {
		t.Fatal("want error")
	}
	if v != nil {
		t.Fatalf("got partial value %#v alongside error", v)
	}
}

func TestDecodeErrorMessageFormat(t *testing.T) {
	_, err := Decode("a: 1\na: 2")
	if err == nil {
		t.Fatal("want error")
	}
	if got := err.Error(); !strings.HasPrefix(got, "line 2: ") {
		t.Errorf("Error() = %q, want line-prefixed message", got)
	}
}

package review

import (
	"fmt"
	"strings"

	"curator/pkg/codec"
)

// placeholderMarkers are draft artifacts a reviewer sometimes leaves in an
// edited payload. An override is a final resolution, so any of these in a
// string leaf rejects the whole override.
var placeholderMarkers = []string{"TODO", "FIXME", "XXX", "[TBD]"}

// validateOverride checks an approval override for draft artifacts before
// anything is written: placeholder markers and unbalanced triple-backtick
// fences in string leaves. Clarification answers are exempt from this check;
// the human answer is authoritative.
func validateOverride(v codec.Value) error {
	return walkStrings(v, func(s string) error {
		for _, marker := range placeholderMarkers {
			if strings.Contains(s, marker) {
				return fmt.Errorf("override contains placeholder marker %q", marker)
			}
		}
		if strings.Count(s, "```")%2 != 0 {
			return fmt.Errorf("override contains an unbalanced code fence")
		}
		return nil
	})
}

// walkStrings applies fn to every string leaf of v, stopping at the first
// error.
func walkStrings(v codec.Value, fn func(string) error) error {
	switch t := v.(type) {
	case codec.String:
		return fn(string(t))
	case codec.List:
		for _, e := range t {
			if err := walkStrings(e, fn); err != nil {
				return err
			}
		}
		return nil
	case *codec.Map:
		var werr error
		t.Range(func(_ string, value codec.Value) bool {
			werr = walkStrings(value, fn)
			return werr == nil
		})
		return werr
	default:
		return nil
	}
}

package codec

import (
	"strconv"
	"strings"
)

// Wire constants. Changing any of these breaks compatibility with stored
// payloads and cache signatures.
const (
	delimiter  = ','
	quoteChar  = '"'
	indentUnit = "  "

	emptyMapToken = "{}"
)

// Encode renders v in the compact text form. The output has no trailing
// newline. Encode is total over the Value universe and deterministic: equal
// values with equal key order produce identical text.
func Encode(v Value) string {
	e := &encoder{}
	e.encodeRoot(v)
	return strings.Join(e.lines, "\n")
}

type encoder struct {
	lines []string
}

func (e *encoder) emit(depth int, text string) {
	e.lines = append(e.lines, strings.Repeat(indentUnit, depth)+text)
}

func (e *encoder) encodeRoot(v Value) {
	switch t := v.(type) {
	case *Map:
		if t.Len() == 0 {
			e.emit(0, emptyMapToken)
			return
		}
		e.encodeMapBody(t, 0)
	case List:
		e.encodeList("", t, 0)
	case String:
		e.emit(0, encodeRootString(string(t)))
	default:
		e.emit(0, encodeScalar(v))
	}
}

// encodeMapBody emits one line per key at the given depth.
func (e *encoder) encodeMapBody(m *Map, depth int) {
	m.Range(func(key string, value Value) bool {
		k := encodeKey(key)
		switch t := value.(type) {
		case *Map:
			if t.Len() == 0 {
				e.emit(depth, k+": "+emptyMapToken)
			} else {
				e.emit(depth, k+":")
				e.encodeMapBody(t, depth+1)
			}
		case List:
			e.encodeList(k, t, depth)
		default:
			e.emit(depth, k+": "+encodeScalar(t))
		}
		return true
	})
}

// encodeList emits a list whose header line carries the given prefix: an
// encoded key inside a map body, "- " inside a block list, or empty at root.
// Child lines go one level below the header.
func (e *encoder) encodeList(prefix string, l List, depth int) {
	n := len(l)
	if n == 0 {
		e.emit(depth, prefix+"[0]{}:")
		return
	}
	if fields, ok := tabularFields(l); ok {
		e.encodeTabular(prefix, l, fields, depth)
		return
	}
	if allScalars(l) {
		cells := make([]string, n)
		for i, v := range l {
			cells[i] = encodeScalar(v)
		}
		e.emit(depth, prefix+"["+strconv.Itoa(n)+"]: "+strings.Join(cells, string(delimiter)))
		return
	}
	e.emit(depth, prefix+"["+strconv.Itoa(n)+"]:")
	for _, v := range l {
		switch t := v.(type) {
		case *Map:
			if t.Len() == 0 {
				e.emit(depth+1, "- "+emptyMapToken)
			} else {
				e.emit(depth+1, "-")
				e.encodeMapBody(t, depth+2)
			}
		case List:
			e.encodeList("- ", t, depth+1)
		default:
			e.emit(depth+1, "- "+encodeScalar(t))
		}
	}
}

func (e *encoder) encodeTabular(prefix string, l List, fields []string, depth int) {
	heads := make([]string, len(fields))
	for i, f := range fields {
		heads[i] = encodeKey(f)
	}
	e.emit(depth, prefix+"["+strconv.Itoa(len(l))+"]{"+strings.Join(heads, string(delimiter))+"}:")
	for _, v := range l {
		m := v.(*Map)
		cells := make([]string, len(fields))
		for i, f := range fields {
			fv, _ := m.Get(f)
			cells[i] = encodeScalar(fv)
		}
		e.emit(depth+1, strings.Join(cells, string(delimiter)))
	}
}

// tabularFields reports whether l qualifies for the tabular form: every
// element a non-empty map over the same key set with scalar values only.
// The returned field order is the first element's insertion order.
func tabularFields(l List) ([]string, bool) {
	first, ok := l[0].(*Map)
	if !ok || first.Len() == 0 {
		return nil, false
	}
	fields := first.Keys()
	for _, v := range l {
		m, ok := v.(*Map)
		if !ok || m.Len() != len(fields) {
			return nil, false
		}
		for _, f := range fields {
			fv, present := m.Get(f)
			if !present || !isScalar(fv) {
				return nil, false
			}
		}
	}
	return fields, true
}

func allScalars(l List) bool {
	for _, v := range l {
		if !isScalar(v) {
			return false
		}
	}
	return true
}

func isScalar(v Value) bool {
	switch v.(type) {
	case Null, Bool, Int, Float, String:
		return true
	default:
		return false
	}
}

// encodeScalar renders a scalar for value, cell, and list-item positions.
func encodeScalar(v Value) string {
	switch t := v.(type) {
	case Null:
		return "null"
	case Bool:
		if t {
			return "true"
		}
		return "false"
	case Int:
		return strconv.FormatInt(int64(t), 10)
	case Float:
		return formatFloat(float64(t))
	case String:
		s := string(t)
		if stringNeedsQuote(s) {
			return quote(s)
		}
		return s
	default:
		return "null"
	}
}

// formatFloat keeps fractional-class numbers fractional: the shortest exact
// decimal form, with ".0" appended when that form has no fraction part.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// stringNeedsQuote reports whether s is ambiguous when written bare: it
// would read back as a different kind, collide with structural syntax, or
// lose leading/trailing whitespace.
func stringNeedsQuote(s string) bool {
	if s == "" {
		return true
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	if strings.ContainsAny(s, "\",\n\r") {
		return true
	}
	if s == "null" || s == "true" || s == "false" || s == emptyMapToken {
		return true
	}
	if isCanonicalNumber(s) {
		return true
	}
	if s[0] == '[' {
		return true
	}
	return false
}

// encodeRootString additionally quotes strings that would read back as a
// single-key map line at root position.
func encodeRootString(s string) string {
	if stringNeedsQuote(s) || strings.Contains(s, ": ") || strings.HasSuffix(s, ":") {
		return quote(s)
	}
	return s
}

// encodeKey renders a map key or tabular field name. Keys quote on anything
// that would confuse the key scanner; a bare key never contains the
// separator characters.
func encodeKey(k string) string {
	if k == "" {
		return quote(k)
	}
	if strings.TrimSpace(k) != k {
		return quote(k)
	}
	if strings.ContainsAny(k, ":[{}\",\n\r") {
		return quote(k)
	}
	return k
}

// quote wraps s in double quotes, escaping the characters that carry
// structure: backslash, quote, newline, carriage return, and the cell
// delimiter.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(quoteChar)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case rune(quoteChar):
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case rune(delimiter):
			b.WriteString(`\,`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quoteChar)
	return b.String()
}

// isCanonicalNumber reports whether s matches the number grammar:
// an optional minus, an integer part with no leading zeros, and an optional
// fraction part with at least one digit.
func isCanonicalNumber(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	switch {
	case s[i] == '0':
		i++
	case s[i] >= '1' && s[i] <= '9':
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	default:
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != '.' {
		return false
	}
	i++
	if i == len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

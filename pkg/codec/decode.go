package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeError reports the first point at which input text stops being valid.
// Line is 1-based; 0 means the input as a whole (empty document).
type DecodeError struct {
	Line   int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Line == 0 {
		return e.Reason
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func errf(line int, format string, args ...any) *DecodeError {
	return &DecodeError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// Decode parses text produced by Encode (or hand-written in the same form)
// back into a Value. Decoding is strict: malformed input returns a
// DecodeError and no value, never a partial result.
func Decode(text string) (Value, error) {
	lines, err := splitLines(text)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &DecodeError{Line: 0, Reason: "empty input"}
	}
	p := &parser{lines: lines}
	v, err := p.parseRoot()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		return nil, errf(p.lines[p.pos].num, "unexpected content after document")
	}
	return v, nil
}

type srcLine struct {
	num   int // 1-based position in the input
	depth int
	text  string // content with indentation removed
}

type parser struct {
	lines []srcLine
	pos   int
}

// splitLines breaks the input into indent-classified lines. Trailing blank
// lines are tolerated; interior blank lines and ragged indentation are not.
func splitLines(text string) ([]srcLine, error) {
	raw := strings.Split(text, "\n")
	end := len(raw)
	for end > 0 && strings.TrimRight(raw[end-1], " \r") == "" {
		end--
	}
	lines := make([]srcLine, 0, end)
	for i := 0; i < end; i++ {
		t := strings.TrimSuffix(raw[i], "\r")
		indent := 0
		for indent < len(t) && t[indent] == ' ' {
			indent++
		}
		if indent == len(t) {
			return nil, errf(i+1, "blank line inside document")
		}
		if t[indent] == '\t' {
			return nil, errf(i+1, "tab in indentation")
		}
		if indent%len(indentUnit) != 0 {
			return nil, errf(i+1, "indentation of %d is not a multiple of %d", indent, len(indentUnit))
		}
		lines = append(lines, srcLine{num: i + 1, depth: indent / len(indentUnit), text: t[indent:]})
	}
	return lines, nil
}

func (p *parser) parseRoot() (Value, error) {
	l := p.lines[0]
	if l.depth != 0 {
		return nil, errf(l.num, "unexpected indentation")
	}
	if l.text == emptyMapToken {
		p.pos = 1
		return NewMap(), nil
	}
	if l.text[0] == '[' {
		hdr, inline, err := parseHeader(l.text, l.num)
		if err != nil {
			return nil, err
		}
		p.pos = 1
		return p.parseListBody(hdr, inline, 0, l.num)
	}
	_, _, sep, err := splitKey(l.text, l.num)
	if err == nil && sep != 0 {
		return p.parseMapBody(0)
	}
	v, err := parseScalarToken(l.text, l.num)
	if err != nil {
		return nil, err
	}
	p.pos = 1
	return v, nil
}

// parseMapBody consumes consecutive lines at exactly the given depth as
// key/value entries of one map. It stops at a dedent and errors on a stray
// indent.
func (p *parser) parseMapBody(depth int) (Value, error) {
	m := NewMap()
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.depth < depth {
			break
		}
		if l.depth > depth {
			return nil, errf(l.num, "unexpected indentation")
		}
		key, rest, sep, err := splitKey(l.text, l.num)
		if err != nil {
			return nil, err
		}
		if sep == 0 {
			return nil, errf(l.num, "expected a 'key: value' or 'key:' entry")
		}
		p.pos++
		var v Value
		switch sep {
		case ':':
			switch {
			case rest == "":
				if p.pos >= len(p.lines) || p.lines[p.pos].depth <= depth {
					return nil, errf(l.num, "expected indented block under key %q", key)
				}
				v, err = p.parseMapBody(depth + 1)
			case rest == emptyMapToken:
				v = NewMap()
			default:
				v, err = parseScalarToken(rest, l.num)
			}
		case '[':
			var hdr listHeader
			var inline string
			hdr, inline, err = parseHeader(rest, l.num)
			if err == nil {
				v, err = p.parseListBody(hdr, inline, depth, l.num)
			}
		}
		if err != nil {
			return nil, err
		}
		if _, dup := m.Get(key); dup {
			return nil, errf(l.num, "duplicate key %q", key)
		}
		m.Set(key, v)
	}
	return m, nil
}

type listHeader struct {
	count  int
	fields []string // non-nil for the tabular form
	empty  bool     // the [0]{}: form
}

// parseHeader parses a list header starting at '['. For the inline form the
// remainder after ": " is returned; for block and tabular forms inline is
// empty and the body follows on subsequent lines.
func parseHeader(s string, lineNum int) (listHeader, string, error) {
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return listHeader{}, "", errf(lineNum, "malformed list header: missing ']'")
	}
	countText := s[1:end]
	if !isCount(countText) {
		return listHeader{}, "", errf(lineNum, "malformed list count %q", countText)
	}
	count, err := strconv.Atoi(countText)
	if err != nil {
		return listHeader{}, "", errf(lineNum, "list count %q out of range", countText)
	}
	rest := s[end+1:]
	if strings.HasPrefix(rest, "{") {
		j, ok := findFieldsEnd(rest)
		if !ok {
			return listHeader{}, "", errf(lineNum, "malformed list header: missing '}'")
		}
		if rest[j+1:] != ":" {
			return listHeader{}, "", errf(lineNum, "expected ':' after field list")
		}
		fieldsText := rest[1:j]
		if fieldsText == "" {
			if count != 0 {
				return listHeader{}, "", errf(lineNum, "empty field list for %d rows", count)
			}
			return listHeader{count: 0, empty: true}, "", nil
		}
		if count == 0 {
			return listHeader{}, "", errf(lineNum, "field list on empty list")
		}
		fields, err := parseFields(fieldsText, lineNum)
		if err != nil {
			return listHeader{}, "", err
		}
		return listHeader{count: count, fields: fields}, "", nil
	}
	if rest == ":" {
		return listHeader{count: count}, "", nil
	}
	if strings.HasPrefix(rest, ": ") {
		return listHeader{count: count}, rest[2:], nil
	}
	return listHeader{}, "", errf(lineNum, "expected ':' after list count")
}

// findFieldsEnd locates the '}' closing the field list, skipping quoted
// field names. rest[0] must be '{'.
func findFieldsEnd(rest string) (int, bool) {
	inQuote := false
	for j := 1; j < len(rest); j++ {
		c := rest[j]
		if inQuote {
			if c == '\\' {
				j++
				continue
			}
			if c == quoteChar {
				inQuote = false
			}
			continue
		}
		if c == quoteChar {
			inQuote = true
			continue
		}
		if c == '}' {
			return j, true
		}
	}
	return 0, false
}

func parseFields(fieldsText string, lineNum int) ([]string, error) {
	cells, err := splitCells(fieldsText, lineNum)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(cells))
	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		var name string
		if c != "" && c[0] == quoteChar {
			decoded, rem, err := unquoteToken(c, lineNum)
			if err != nil {
				return nil, err
			}
			if rem != "" {
				return nil, errf(lineNum, "unexpected text after quoted field name")
			}
			name = decoded
		} else {
			if c == "" {
				return nil, errf(lineNum, "empty field name")
			}
			name = c
		}
		if seen[name] {
			return nil, errf(lineNum, "duplicate field %q", name)
		}
		seen[name] = true
		fields = append(fields, name)
	}
	return fields, nil
}

func (p *parser) parseListBody(hdr listHeader, inline string, headerDepth, headerLine int) (Value, error) {
	if hdr.empty {
		return List{}, nil
	}
	if inline != "" {
		cells, err := splitCells(inline, headerLine)
		if err != nil {
			return nil, err
		}
		if len(cells) != hdr.count {
			return nil, errf(headerLine, "expected %d values, found %d", hdr.count, len(cells))
		}
		out := make(List, len(cells))
		for i, c := range cells {
			v, err := parseScalarToken(c, headerLine)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	if hdr.fields != nil {
		return p.parseTabularRows(hdr, headerDepth, headerLine)
	}
	return p.parseBlockItems(hdr, headerDepth, headerLine)
}

func (p *parser) parseTabularRows(hdr listHeader, headerDepth, headerLine int) (Value, error) {
	out := make(List, 0, hdr.count)
	for r := 0; r < hdr.count; r++ {
		if p.pos >= len(p.lines) || p.lines[p.pos].depth < headerDepth+1 {
			return nil, errf(headerLine, "expected %d rows, found %d", hdr.count, r)
		}
		l := p.lines[p.pos]
		if l.depth > headerDepth+1 {
			return nil, errf(l.num, "unexpected indentation")
		}
		cells, err := splitCells(l.text, l.num)
		if err != nil {
			return nil, err
		}
		if len(cells) != len(hdr.fields) {
			return nil, errf(l.num, "row has %d values, expected %d", len(cells), len(hdr.fields))
		}
		m := NewMap()
		for i, f := range hdr.fields {
			v, err := parseScalarToken(cells[i], l.num)
			if err != nil {
				return nil, err
			}
			m.Set(f, v)
		}
		p.pos++
		out = append(out, m)
	}
	if p.pos < len(p.lines) && p.lines[p.pos].depth == headerDepth+1 {
		return nil, errf(p.lines[p.pos].num, "expected %d rows, found more", hdr.count)
	}
	return out, nil
}

func (p *parser) parseBlockItems(hdr listHeader, headerDepth, headerLine int) (Value, error) {
	out := make(List, 0, hdr.count)
	for i := 0; i < hdr.count; i++ {
		if p.pos >= len(p.lines) || p.lines[p.pos].depth < headerDepth+1 {
			return nil, errf(headerLine, "expected %d list items, found %d", hdr.count, i)
		}
		l := p.lines[p.pos]
		if l.depth > headerDepth+1 {
			return nil, errf(l.num, "unexpected indentation")
		}
		if l.text == "-" {
			p.pos++
			if p.pos >= len(p.lines) || p.lines[p.pos].depth <= headerDepth+1 {
				return nil, errf(l.num, "expected indented block under list item")
			}
			m, err := p.parseMapBody(headerDepth + 2)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
			continue
		}
		if !strings.HasPrefix(l.text, "- ") {
			return nil, errf(l.num, "expected list item")
		}
		rest := l.text[2:]
		p.pos++
		switch {
		case rest == emptyMapToken:
			out = append(out, NewMap())
		case rest != "" && rest[0] == '[':
			nested, inline, err := parseHeader(rest, l.num)
			if err != nil {
				return nil, err
			}
			v, err := p.parseListBody(nested, inline, headerDepth+1, l.num)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		default:
			v, err := parseScalarToken(rest, l.num)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	if p.pos < len(p.lines) && p.lines[p.pos].depth == headerDepth+1 && strings.HasPrefix(p.lines[p.pos].text, "-") {
		return nil, errf(p.lines[p.pos].num, "expected %d list items, found more", hdr.count)
	}
	return out, nil
}

// splitKey splits a map entry line into key and remainder. sep is ':' for
// scalar or nested-map entries (rest holds the text after ": ", empty when
// the value is an indented block), '[' for list entries (rest holds the
// header), and 0 when the line is not a key line at all.
func splitKey(text string, lineNum int) (key, rest string, sep byte, err error) {
	if text[0] == quoteChar {
		k, rem, qerr := unquoteToken(text, lineNum)
		if qerr != nil {
			return "", "", 0, qerr
		}
		if rem == "" {
			return "", "", 0, nil
		}
		switch rem[0] {
		case ':':
			if len(rem) == 1 {
				return k, "", ':', nil
			}
			if rem[1] == ' ' {
				return k, rem[2:], ':', nil
			}
			return "", "", 0, nil
		case '[':
			return k, rem, '[', nil
		default:
			return "", "", 0, nil
		}
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ':':
			if i == 0 {
				return "", "", 0, nil
			}
			if i+1 == len(text) {
				return text[:i], "", ':', nil
			}
			if text[i+1] == ' ' {
				return text[:i], text[i+2:], ':', nil
			}
		case '[':
			if i == 0 {
				return "", "", 0, nil
			}
			return text[:i], text[i:], '[', nil
		}
	}
	return "", "", 0, nil
}

// parseScalarToken parses one scalar in value, cell, or list-item position.
func parseScalarToken(s string, lineNum int) (Value, error) {
	if s == "" {
		return nil, errf(lineNum, "empty value (quote empty strings)")
	}
	if s[0] == quoteChar {
		decoded, rem, err := unquoteToken(s, lineNum)
		if err != nil {
			return nil, err
		}
		if rem != "" {
			return nil, errf(lineNum, "unexpected text after closing quote")
		}
		return String(decoded), nil
	}
	switch s {
	case "null":
		return Null{}, nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case emptyMapToken:
		return nil, errf(lineNum, "unexpected '{}' in scalar position")
	}
	if isCanonicalNumber(s) {
		if !strings.Contains(s, ".") {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errf(lineNum, "integer %s out of range", s)
			}
			return Int(n), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errf(lineNum, "number %s out of range", s)
		}
		return Float(f), nil
	}
	if s[0] == '[' {
		return nil, errf(lineNum, "unquoted value starting with '['")
	}
	return String(s), nil
}

// unquoteToken decodes a quoted token starting at s[0] and returns the text
// remaining after the closing quote.
func unquoteToken(s string, lineNum int) (string, string, error) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == '\\' {
			if i+1 >= len(s) {
				return "", "", errf(lineNum, "unterminated quoted string")
			}
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
			case quoteChar:
				b.WriteByte(quoteChar)
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case delimiter:
				b.WriteByte(delimiter)
			default:
				return "", "", errf(lineNum, "invalid escape '\\%c'", s[i+1])
			}
			i += 2
			continue
		}
		if c == quoteChar {
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
		i++
	}
	return "", "", errf(lineNum, "unterminated quoted string")
}

// splitCells splits delimiter-separated cells, honoring quotes. Returned
// cells are raw text, quotes included.
func splitCells(s string, lineNum int) ([]string, error) {
	var cells []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			if c == '\\' {
				i++
				continue
			}
			if c == quoteChar {
				inQuote = false
			}
			continue
		}
		switch c {
		case quoteChar:
			inQuote = true
		case delimiter:
			cells = append(cells, s[start:i])
			start = i + 1
		}
	}
	if inQuote {
		return nil, errf(lineNum, "unterminated quoted string")
	}
	return append(cells, s[start:]), nil
}

func isCount(s string) bool {
	if s == "" {
		return false
	}
	if s == "0" {
		return true
	}
	if s[0] < '1' || s[0] > '9' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package guardrails

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLiteral is returned by DecodeLiteral for any input outside the
// accepted literal grammar
var ErrInvalidLiteral = errors.New("invalid literal")

const maxLiteralDepth = 64

type literalKind int

const (
	kindString literalKind = iota
	kindNumber
	kindBool
	kindNull
	kindArray
	kindObject
)

type literalValue struct {
	kind literalKind
	json []byte
	// text holds the decoded value of a string literal
	text string
}

// DecodeLiteral converts a Python literal (strings, numbers, True, False,
// None, dicts, lists and tuples) to JSON. Names other than the three
// constants, calls, operators and sets are rejected.
func DecodeLiteral(s string) ([]byte, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return v.json, nil
}

type literalParser struct {
	src   string
	pos   int
	depth int
}

func (p *literalParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w at offset %d: %s", ErrInvalidLiteral, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		case '\\':
			// explicit line joining
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '\n' {
				p.pos += 2
				continue
			}
			return
		default:
			return
		}
	}
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) value() (literalValue, error) {
	if p.pos >= len(p.src) {
		return literalValue{}, p.errorf("unexpected end of input")
	}

	c := p.src[p.pos]
	switch {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"' || p.stringPrefix() > 0:
		return p.str()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isNameStart(c):
		return p.name()
	default:
		return literalValue{}, p.errorf("unexpected %q", c)
	}
}

func (p *literalParser) enter() error {
	p.depth++
	if p.depth > maxLiteralDepth {
		return p.errorf("nesting deeper than %d", maxLiteralDepth)
	}
	return nil
}

func (p *literalParser) sequence(open, closer byte) (literalValue, error) {
	if err := p.enter(); err != nil {
		return literalValue{}, err
	}
	defer func() { p.depth-- }()

	p.pos++ // open
	var items []literalValue
	sawComma := false
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			break
		}
		if len(items) > 0 && !sawComma {
			return literalValue{}, p.errorf("expected ',' or %q", closer)
		}
		item, err := p.value()
		if err != nil {
			return literalValue{}, err
		}
		items = append(items, item)

		p.skipSpace()
		sawComma = p.peek() == ','
		if sawComma {
			p.pos++
		}
	}

	// a parenthesized single value without a comma is not a tuple
	if open == '(' && len(items) == 1 && !sawComma {
		return items[0], nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item.json)
	}
	buf.WriteByte(']')
	return literalValue{kind: kindArray, json: buf.Bytes()}, nil
}

func (p *literalParser) dict() (literalValue, error) {
	if err := p.enter(); err != nil {
		return literalValue{}, err
	}
	defer func() { p.depth-- }()

	p.pos++ // {
	var keys []string
	values := make(map[string][]byte)
	sawComma := false
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			break
		}
		if len(keys) > 0 && !sawComma {
			return literalValue{}, p.errorf("expected ',' or '}'")
		}

		key, err := p.value()
		if err != nil {
			return literalValue{}, err
		}
		name, err := p.keyName(key)
		if err != nil {
			return literalValue{}, err
		}

		p.skipSpace()
		if p.peek() != ':' {
			return literalValue{}, p.errorf("expected ':' (set literals are not supported)")
		}
		p.pos++
		p.skipSpace()

		val, err := p.value()
		if err != nil {
			return literalValue{}, err
		}
		// later duplicates replace the value but keep the first position
		if _, seen := values[name]; !seen {
			keys = append(keys, name)
		}
		values[name] = val.json

		p.skipSpace()
		sawComma = p.peek() == ','
		if sawComma {
			p.pos++
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encoded, _ := json.Marshal(key)
		buf.Write(encoded)
		buf.WriteByte(':')
		buf.Write(values[key])
	}
	buf.WriteByte('}')
	return literalValue{kind: kindObject, json: buf.Bytes()}, nil
}

func (p *literalParser) keyName(key literalValue) (string, error) {
	switch key.kind {
	case kindString:
		return key.text, nil
	case kindNumber, kindBool, kindNull:
		return string(key.json), nil
	default:
		return "", p.errorf("unsupported dict key")
	}
}

// stringPrefix returns the length of a u/r string prefix at the cursor
func (p *literalParser) stringPrefix() int {
	n := 0
	for n < 2 && p.pos+n < len(p.src) {
		switch p.src[p.pos+n] {
		case 'r', 'R', 'u', 'U':
			n++
			continue
		case '\'', '"':
			if n > 0 {
				return n
			}
		}
		return 0
	}
	if p.pos+n < len(p.src) && (p.src[p.pos+n] == '\'' || p.src[p.pos+n] == '"') {
		return n
	}
	return 0
}

// str reads one string literal and any adjacent literals it concatenates with
func (p *literalParser) str() (literalValue, error) {
	var sb strings.Builder
	for {
		if err := p.stringLiteral(&sb); err != nil {
			return literalValue{}, err
		}
		p.skipSpace()
		if c := p.peek(); c != '\'' && c != '"' && p.stringPrefix() == 0 {
			break
		}
	}

	text := sb.String()
	encoded, err := json.Marshal(text)
	if err != nil {
		return literalValue{}, p.errorf("encode string: %v", err)
	}
	return literalValue{kind: kindString, json: encoded, text: text}, nil
}

func (p *literalParser) stringLiteral(sb *strings.Builder) error {
	raw := false
	prefix := p.stringPrefix()
	for i := 0; i < prefix; i++ {
		if c := p.src[p.pos+i]; c == 'r' || c == 'R' {
			raw = true
		}
	}
	p.pos += prefix

	quote := p.src[p.pos]
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	for {
		if p.pos >= len(p.src) {
			return p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote && !triple:
			p.pos++
			return nil
		case c == quote && strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3)):
			p.pos += 3
			return nil
		case c == '\n' && !triple:
			return p.errorf("newline in string")
		case c == '\\':
			if err := p.escape(sb, raw); err != nil {
				return err
			}
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
}

func (p *literalParser) escape(sb *strings.Builder, raw bool) error {
	if p.pos+1 >= len(p.src) {
		return p.errorf("unterminated string")
	}
	c := p.src[p.pos+1]
	if raw {
		sb.WriteByte('\\')
		sb.WriteByte(c)
		p.pos += 2
		return nil
	}

	p.pos += 2
	switch c {
	case '\n':
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'v':
		sb.WriteByte('\v')
	case 'x':
		return p.hexEscape(sb, 2)
	case 'u':
		return p.hexEscape(sb, 4)
	case 'U':
		return p.hexEscape(sb, 8)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		end := p.pos - 1
		for end < len(p.src) && end < p.pos+2 && p.src[end] >= '0' && p.src[end] <= '7' {
			end++
		}
		code, _ := strconv.ParseUint(p.src[p.pos-1:end], 8, 32)
		sb.WriteRune(rune(code))
		p.pos = end
	default:
		// unknown escapes keep their backslash
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexEscape(sb *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.errorf("truncated escape")
	}
	code, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil || code > 0x10FFFF {
		return p.errorf("invalid escape")
	}
	sb.WriteRune(rune(code))
	p.pos += digits
	return nil
}

func (p *literalParser) number() (literalValue, error) {
	negative := false
	if c := p.peek(); c == '-' || c == '+' {
		negative = c == '-'
		p.pos++
		p.skipSpace()
	}

	start := p.pos
	isFloat := false
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '-' || c == '+' {
			p.pos++
		}
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
		}
	}
	if p.pos < len(p.src) && (isNameStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		return literalValue{}, p.errorf("unsupported number suffix %q", p.src[p.pos])
	}

	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if text == "" || text == "." {
		return literalValue{}, p.errorf("expected number")
	}

	sign := ""
	if negative {
		sign = "-"
	}

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return literalValue{}, p.errorf("invalid float %q", text)
		}
		return literalValue{kind: kindNumber, json: []byte(sign + strconv.FormatFloat(f, 'g', -1, 64))}, nil
	}

	trimmed := strings.TrimLeft(text, "0")
	if trimmed == "" {
		return literalValue{kind: kindNumber, json: []byte("0")}, nil
	}
	if len(trimmed) != len(text) {
		return literalValue{}, p.errorf("leading zeros in integer %q", text)
	}
	return literalValue{kind: kindNumber, json: []byte(sign + text)}, nil
}

func (p *literalParser) name() (literalValue, error) {
	start := p.pos
	for p.pos < len(p.src) && (isNameStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		p.pos++
	}

	switch word := p.src[start:p.pos]; word {
	case "True":
		return literalValue{kind: kindBool, json: []byte("true")}, nil
	case "False":
		return literalValue{kind: kindBool, json: []byte("false")}, nil
	case "None":
		return literalValue{kind: kindNull, json: []byte("null")}, nil
	default:
		p.pos = start
		return literalValue{}, p.errorf("name %q is not allowed", word)
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

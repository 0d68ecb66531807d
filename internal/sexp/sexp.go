// Package sexp reads printed Lisp expressions from worker output.
//
// Worker processes print exactly one authoritative value at the very end of
// their output stream. Anything before it (setup diagnostics, load messages)
// is noise, so extraction scans backward from end-of-output to the start of
// the last balanced expression and parses forward from there.
package sexp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Symbol is an interned Lisp symbol name.
type Symbol string

// Values decode as:
//
//	nil     -> nil
//	t       -> true
//	integer -> int64
//	float   -> float64
//	string  -> string
//	symbol  -> Symbol
//	list    -> []any
var (
	ErrNoValue = errors.New("no expression found in output")
)

// ReadLast extracts and parses the last balanced expression in data.
// The expression may be multi-line and may be preceded by arbitrary
// non-expression output.
func ReadLast(data []byte) (any, error) {
	s := strings.TrimRight(string(data), " \t\r\n")
	if s == "" {
		return nil, ErrNoValue
	}

	start, err := lastExprStart(s)
	if err != nil {
		return nil, err
	}

	v, err := Parse(s[start:])
	if err != nil {
		return nil, fmt.Errorf("trailing output is not a well-formed expression: %w", err)
	}
	return v, nil
}

// Parse parses exactly one expression from src. Leading and trailing
// whitespace is permitted; any other trailing content is an error.
func Parse(src string) (any, error) {
	p := &parser{src: src}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected trailing content at offset %d", p.pos)
	}
	return v, nil
}

// CheckBalanced verifies that src contains at least one expression and that
// all parentheses and string literals are balanced. Used to validate forms
// before they are serialized into an artifact.
func CheckBalanced(src string) error {
	if strings.TrimSpace(src) == "" {
		return errors.New("empty form")
	}

	depth := 0
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced close paren at offset %d", i)
			}
		case ';':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		}
	}
	if inString {
		return errors.New("unterminated string literal")
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parens (depth %d at end of form)", depth)
	}
	return nil
}

// Print renders a decoded value back to its printed representation.
func Print(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		if x {
			return "t"
		}
		return "nil"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case Symbol:
		return string(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Print(e)
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// lastExprStart returns the index where the last balanced expression in s
// begins. s must already be right-trimmed.
func lastExprStart(s string) (int, error) {
	end := len(s) - 1

	switch s[end] {
	case ')':
		depth := 0
		for i := end; i >= 0; i-- {
			switch s[i] {
			case '"':
				j, err := stringOpen(s, i)
				if err != nil {
					return 0, err
				}
				i = j
			case ')':
				depth++
			case '(':
				depth--
				if depth == 0 {
					return i, nil
				}
			}
		}
		return 0, errors.New("unbalanced parens reading backward from end of output")
	case '"':
		j, err := stringOpen(s, end)
		if err != nil {
			return 0, err
		}
		return j, nil
	default:
		// Atom: scan back to the nearest delimiter.
		i := end
		for i >= 0 && !isDelimiter(s[i]) {
			i--
		}
		start := i + 1
		if err := checkAtomContext(s, start); err != nil {
			return 0, err
		}
		return start, nil
	}
}

// checkAtomContext rejects an atom that is really the tail of an
// unterminated expression: an unmatched open paren or an open string
// literal earlier on the atom's own line means the worker's final print
// was cut short, and extracting the bare atom would silently drop that.
// Unbalanced noise on earlier lines stays tolerated.
func checkAtomContext(s string, start int) error {
	lineStart := strings.LastIndexByte(s[:start], '\n') + 1
	depth := 0
	inString := false
	for i := lineStart; i < start; i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
	}
	if inString {
		return errors.New("trailing output ends inside an unterminated string")
	}
	if depth > 0 {
		return errors.New("trailing output ends inside an unterminated list")
	}
	return nil
}

// stringOpen returns the index of the opening quote for the string literal
// whose closing quote is at close.
func stringOpen(s string, close int) (int, error) {
	for i := close - 1; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		// Count preceding backslashes; an even count means this quote
		// is not escaped.
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i, nil
		}
	}
	return 0, errors.New("unterminated string reading backward from end of output")
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', '"':
		return true
	}
	return false
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) parseValue() (any, error) {
	if p.pos >= len(p.src) {
		return nil, errors.New("unexpected end of input")
	}

	switch c := p.src[p.pos]; c {
	case '(':
		return p.parseList()
	case ')':
		return nil, fmt.Errorf("unexpected close paren at offset %d", p.pos)
	case '"':
		return p.parseString()
	case '\'':
		p.pos++
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return []any{Symbol("quote"), v}, nil
	default:
		return p.parseAtom()
	}
}

func (p *parser) parseList() (any, error) {
	p.pos++ // consume '('
	list := []any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, errors.New("unterminated list")
		}
		if p.src[p.pos] == ')' {
			p.pos++
			return list, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

func (p *parser) parseString() (any, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, errors.New("unterminated escape in string")
			}
			switch e := p.src[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return nil, errors.New("unterminated string")
}

func (p *parser) parseAtom() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, fmt.Errorf("empty atom at offset %d", start)
	}

	switch tok {
	case "nil":
		return nil, nil
	case "t":
		return true, nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return Symbol(tok), nil
}

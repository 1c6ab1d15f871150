package config

import (
	"strconv"
	"strings"
)

// token is one parsed option. When valueSet is false the option appeared
// without '=value' and value is unspecified; the feature default applies.
type token struct {
	name     string
	value    uint64
	valueSet bool
}

// parser scans a flat options string into tokens. It is a single-pass,
// non-resumable sequence: once it reports done, only a new parser can
// scan the input again.
type parser struct {
	input string
	pos   int
	done  bool
}

func newParser(input string) *parser {
	return &parser{input: input}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

// next returns the next token. The second result is false once the end
// of the input is reached; an error stops the parse at the offending
// option.
func (p *parser) next() (token, bool, error) {
	if p.done {
		return token{}, false, nil
	}

	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}

	if p.pos >= len(p.input) {
		p.done = true
		return token{}, false, nil
	}

	start := p.pos
	for p.pos < len(p.input) && !isSpace(p.input[p.pos]) && p.input[p.pos] != '=' {
		p.pos++
	}

	tok := token{name: p.input[start:p.pos]}

	// Skip any spaces between the name and a possible '='.
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}

	if p.pos < len(p.input) && p.input[p.pos] == '=' {
		p.pos++
		tok.valueSet = true

		// Leading whitespace before the number is allowed.
		for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
			p.pos++
		}

		numStart := p.pos
		for p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
			p.pos++
		}

		text := p.input[numStart:p.pos]
		value, err := parseValue(tok.name, text)
		if err != nil {
			return token{}, false, err
		}
		tok.value = value
	}

	return tok, true, nil
}

// parseValue parses the numeric text of an option. Negative values are
// rejected explicitly; anything else that fails to parse as a base-10
// unsigned integer (including trailing garbage) is malformed.
func parseValue(option, text string) (uint64, error) {
	if text == "" {
		return 0, &MalformedNumberError{Option: option}
	}

	if strings.HasPrefix(text, "-") {
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return 0, &NegativeValueError{Option: option, Value: v}
		}
		return 0, &MalformedNumberError{Option: option, Text: text}
	}

	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, &MalformedNumberError{Option: option, Text: text}
	}

	return value, nil
}

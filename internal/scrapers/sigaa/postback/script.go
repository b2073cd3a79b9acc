package postback

import (
	"fmt"
	"strings"

	"github.com/titanous/json5"
)

type override struct {
	key   string
	value string
}

type scriptCall struct {
	elementId string
	overrides []override
}

// parseScript accepts exactly one element lookup optionally followed by an
// object literal, anything else in the script is ignored:
//
//	getElementById '(' string ')' [ ',' object ]
//	object = '{' [ pair { ',' pair } [ ',' ] ] '}'
//	pair   = ( string | identifier ) ':' ( string | number | true | false | null )
func parseScript(script string) (scriptCall, error) {
	const lookup = "getElementById"

	idx := strings.Index(script, lookup)
	if idx < 0 {
		return scriptCall{}, fmt.Errorf("%w: script has no element lookup", ErrFormNotFound)
	}
	s := &scanner{src: script, pos: idx + len(lookup)}

	err := s.expect('(')
	if err != nil {
		return scriptCall{}, err
	}
	id, err := s.string()
	if err != nil {
		return scriptCall{}, err
	}
	err = s.expect(')')
	if err != nil {
		return scriptCall{}, err
	}
	call := scriptCall{elementId: id}

	s.skipSpace()
	if !s.consume(',') {
		return call, nil
	}
	s.skipSpace()
	if s.peek() != '{' {
		return call, nil
	}
	call.overrides, err = s.object()
	if err != nil {
		return scriptCall{}, err
	}
	return call, nil
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) fail(format string, args ...any) error {
	return fmt.Errorf(
		"%w: %s at offset %d",
		ErrFormNotFound,
		fmt.Sprintf(format, args...),
		s.pos,
	)
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) skipSpace() {
	for !s.eof() {
		switch s.src[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		default:
			return
		}
	}
}

func (s *scanner) consume(c byte) bool {
	if s.peek() == c {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) expect(c byte) error {
	s.skipSpace()
	if !s.consume(c) {
		if s.eof() {
			return s.fail("expected '%c', got end of script", c)
		}
		return s.fail("expected '%c', got '%c'", c, s.peek())
	}
	return nil
}

// string reads a single or double quoted string literal, single quoted
// literals are rewritten into double quoted ones before being decoded.
func (s *scanner) string() (string, error) {
	s.skipSpace()
	quote := s.peek()
	if quote != '\'' && quote != '"' {
		return "", s.fail("expected string")
	}
	start := s.pos
	s.pos++

	var normalized strings.Builder
	normalized.WriteByte('"')
	for {
		if s.eof() {
			s.pos = start
			return "", s.fail("unterminated string")
		}
		c := s.src[s.pos]
		s.pos++
		if c == quote {
			break
		}
		switch {
		case c == '\\':
			if s.eof() {
				s.pos = start
				return "", s.fail("unterminated string")
			}
			next := s.src[s.pos]
			s.pos++
			if next == '\'' {
				normalized.WriteByte('\'')
				continue
			}
			normalized.WriteByte('\\')
			normalized.WriteByte(next)
		case c == '"':
			normalized.WriteString(`\"`)
		default:
			normalized.WriteByte(c)
		}
	}
	normalized.WriteByte('"')

	var out string
	err := json5.Unmarshal([]byte(normalized.String()), &out)
	if err != nil {
		s.pos = start
		return "", s.fail("decode string: %v", err)
	}
	return out, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func (s *scanner) key() (string, error) {
	s.skipSpace()
	if c := s.peek(); c == '\'' || c == '"' {
		return s.string()
	}
	start := s.pos
	for !s.eof() && isIdentByte(s.src[s.pos]) {
		s.pos++
	}
	if start == s.pos {
		return "", s.fail("expected key")
	}
	return s.src[start:s.pos], nil
}

func isScalarByte(c byte) bool {
	return isIdentByte(c) || c == '.' || c == '-' || c == '+'
}

func (s *scanner) value() (string, error) {
	s.skipSpace()
	if c := s.peek(); c == '\'' || c == '"' {
		return s.string()
	}

	start := s.pos
	for !s.eof() && isScalarByte(s.src[s.pos]) {
		s.pos++
	}
	raw := s.src[start:s.pos]
	switch raw {
	case "":
		return "", s.fail("expected value")
	case "null":
		return "", nil
	case "true", "false":
		return raw, nil
	}

	var number float64
	err := json5.Unmarshal([]byte(raw), &number)
	if err != nil {
		s.pos = start
		return "", s.fail("unsupported value '%s'", raw)
	}
	return raw, nil
}

func (s *scanner) object() ([]override, error) {
	err := s.expect('{')
	if err != nil {
		return nil, err
	}

	var out []override
	for {
		s.skipSpace()
		if s.consume('}') {
			return out, nil
		}

		key, err := s.key()
		if err != nil {
			return nil, err
		}
		err = s.expect(':')
		if err != nil {
			return nil, err
		}
		value, err := s.value()
		if err != nil {
			return nil, err
		}
		out = append(out, override{key: key, value: value})

		s.skipSpace()
		if s.consume(',') {
			continue
		}
		err = s.expect('}')
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

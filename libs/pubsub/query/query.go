// Package query implements the subscription query language: a conjunction
// of equality conditions on event attributes.
//
//	event.type = 'Match' AND match.publisher = 'e3b0c442...'
//
// A condition on a key matches if any value published under that key is
// equal to the quoted string. The empty query matches every message.
package query

import (
	"fmt"
	"strings"
	"unicode"
)

// Condition requires the attribute Key to carry Value.
type Condition struct {
	Key   string
	Value string
}

func (c Condition) String() string {
	return fmt.Sprintf("%s = '%s'", c.Key, strings.ReplaceAll(c.Value, "'", `\'`))
}

// Query is a parsed query.
type Query struct {
	conds []Condition
}

// All matches every message.
var All = &Query{}

// MustNew is New but panics on error.
func MustNew(s string) *Query {
	q, err := New(s)
	if err != nil {
		panic(err)
	}
	return q
}

// New parses s.
func New(s string) (*Query, error) {
	p := &parser{src: s}
	p.skipSpace()
	if p.eof() {
		return All, nil
	}

	q := &Query{}
	for {
		c, err := p.condition()
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		q.conds = append(q.conds, c)

		p.skipSpace()
		if p.eof() {
			return q, nil
		}
		if !p.keyword("AND") {
			return nil, fmt.Errorf("parse %q: expected AND at offset %d", s, p.pos)
		}
	}
}

// Conditions returns the conditions of q.
func (q *Query) Conditions() []Condition {
	return append([]Condition(nil), q.conds...)
}

// Matches reports whether events satisfy every condition of q.
func (q *Query) Matches(events map[string][]string) bool {
	for _, c := range q.conds {
		if !contains(events[c.Key], c.Value) {
			return false
		}
	}
	return true
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

func (q *Query) String() string {
	parts := make([]string, len(q.conds))
	for i, c := range q.conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) keyword(kw string) bool {
	end := p.pos + len(kw)
	if end > len(p.src) || p.src[p.pos:end] != kw {
		return false
	}
	if end < len(p.src) && !unicode.IsSpace(rune(p.src[end])) {
		return false
	}
	p.pos = end
	p.skipSpace()
	return true
}

func isKeyByte(c byte) bool {
	return c == '.' || c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) condition() (Condition, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isKeyByte(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return Condition{}, fmt.Errorf("expected key at offset %d", start)
	}
	key := p.src[start:p.pos]

	p.skipSpace()
	if p.eof() || p.src[p.pos] != '=' {
		return Condition{}, fmt.Errorf("expected = at offset %d", p.pos)
	}
	p.pos++
	p.skipSpace()

	val, err := p.quoted()
	if err != nil {
		return Condition{}, err
	}
	return Condition{Key: key, Value: val}, nil
}

func (p *parser) quoted() (string, error) {
	if p.eof() || p.src[p.pos] != '\'' {
		return "", fmt.Errorf("expected quoted value at offset %d", p.pos)
	}
	p.pos++

	var sb strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '\'':
			sb.WriteByte('\'')
			p.pos += 2
		case c == '\'':
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated value")
}

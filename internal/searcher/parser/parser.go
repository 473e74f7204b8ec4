// Package parser turns free-text queries into clauses the executor can run
// against the index.
//
// Grammar, loosely:
//
//	query   = item { item }
//	item    = [ "+" | "-" ] atom | "NOT" item | item "AND" item | item "OR" item
//	atom    = word | '"' words '"' | field ":" ( word | '"' words '"' )
//
// Operators are recognised only in upper case; "and" is an ordinary word.
package parser

import (
	"strconv"
	"strings"

	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Clause matches Terms in any of Fields. A phrase clause requires the terms
// to appear contiguously and in order within a single field.
type Clause struct {
	Occur  Occur
	Fields []int
	Terms  []string
	Phrase bool
}

type Query struct {
	Raw     string
	Clauses []Clause
}

// Empty reports whether the query has nothing to match.
func (q *Query) Empty() bool { return len(q.Clauses) == 0 }

// HasPositive reports whether any clause can contribute matches.
func (q *Query) HasPositive() bool {
	for _, c := range q.Clauses {
		if c.Occur != MustNot {
			return true
		}
	}
	return false
}

// String renders the normalised query, suitable as a cache key: two raw
// queries that parse to the same clauses render identically.
func (q *Query) String() string {
	var sb strings.Builder
	for i, c := range q.Clauses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(c.Occur.String())
		if len(c.Fields) == 1 {
			sb.WriteString("#")
			sb.WriteString(strconv.Itoa(c.Fields[0]))
			sb.WriteByte(':')
		}
		if c.Phrase {
			sb.WriteByte('"')
			sb.WriteString(strings.Join(c.Terms, " "))
			sb.WriteByte('"')
		} else {
			sb.WriteString(c.Terms[0])
		}
	}
	return sb.String()
}

type parser struct {
	raw      string
	pos      int
	schema   *schema.Schema
	analyzer *tokenizer.Analyzer
	defaults []int
	query    *Query
}

// Parse parses raw against the tokenized fields of s, analyzing every word
// with a. Syntax problems are reported as *apperrors.QuerySyntaxError.
func Parse(raw string, s *schema.Schema, a *tokenizer.Analyzer) (*Query, error) {
	p := &parser{
		raw:      raw,
		schema:   s,
		analyzer: a,
		defaults: s.Tokenized(),
		query:    &Query{Raw: raw},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.query, nil
}

func (p *parser) fail(offset int, reason string) error {
	return &apperrors.QuerySyntaxError{Query: p.raw, Offset: offset, Reason: reason}
}

func (p *parser) parse() error {
	var (
		haveItem   bool // a syntactic item precedes the cursor
		lastClause = -1
		pendingOp  string
		pendingAt  int
		forceOccur = Should
	)
	for {
		p.skipSpace()
		if p.pos >= len(p.raw) {
			break
		}
		start := p.pos
		if op := p.peekOperator(); op != "" {
			if pendingOp != "" && (op != "NOT" || pendingOp == "NOT") {
				return p.fail(pendingAt, "operator "+pendingOp+" is missing an operand")
			}
			switch op {
			case "AND", "OR":
				if !haveItem {
					return p.fail(start, "operator "+op+" is missing a left operand")
				}
				if op == "AND" {
					if lastClause >= 0 && p.query.Clauses[lastClause].Occur == Should {
						p.query.Clauses[lastClause].Occur = Must
					}
					forceOccur = Must
				}
			case "NOT":
				forceOccur = MustNot
				if pendingOp != "" {
					// "a AND NOT b" keeps the AND's hold on a.
					p.pos += len(op)
					continue
				}
			}
			pendingOp, pendingAt = op, start
			p.pos += len(op)
			continue
		}

		occur := forceOccur
		switch p.raw[p.pos] {
		case '+', '-':
			sign := p.raw[p.pos]
			p.pos++
			if p.pos >= len(p.raw) || isSpace(p.raw[p.pos]) {
				return p.fail(start, "dangling "+string(sign))
			}
			if sign == '+' && occur != MustNot {
				occur = Must
			} else if sign == '-' {
				occur = MustNot
			}
		}

		clause, ok, err := p.atom()
		if err != nil {
			return err
		}
		haveItem = true
		pendingOp = ""
		forceOccur = Should
		lastClause = -1
		if ok {
			clause.Occur = occur
			p.query.Clauses = append(p.query.Clauses, clause)
			lastClause = len(p.query.Clauses) - 1
		}
	}
	if pendingOp != "" {
		return p.fail(pendingAt, "operator "+pendingOp+" is missing an operand")
	}
	return nil
}

// atom parses a word, phrase or field-qualified value. ok is false when the
// atom analyzes to no terms.
func (p *parser) atom() (Clause, bool, error) {
	start := p.pos
	fields := p.defaults
	if p.raw[p.pos] != '"' {
		if name, ok := p.fieldPrefix(); ok {
			idx, f, known := p.schema.Field(strings.ToLower(name))
			if !known {
				return Clause{}, false, p.fail(start, "unknown field "+name)
			}
			if !f.Tokenized() {
				return Clause{}, false, p.fail(start, "field "+f.Name+" is not searchable")
			}
			p.pos += len(name) + 1
			if p.pos >= len(p.raw) || isSpace(p.raw[p.pos]) {
				return Clause{}, false, p.fail(start, "field "+f.Name+" has no value")
			}
			fields = []int{idx}
		}
	}

	var text string
	if p.raw[p.pos] == '"' {
		open := p.pos
		end := strings.IndexByte(p.raw[open+1:], '"')
		if end < 0 {
			return Clause{}, false, p.fail(open, "unterminated quote")
		}
		text = p.raw[open+1 : open+1+end]
		p.pos = open + end + 2
	} else {
		begin := p.pos
		for p.pos < len(p.raw) && !isSpace(p.raw[p.pos]) && p.raw[p.pos] != '"' {
			p.pos++
		}
		text = p.raw[begin:p.pos]
	}

	terms := p.analyzer.Terms(text)
	if len(terms) == 0 {
		return Clause{}, false, nil
	}
	return Clause{
		Fields: fields,
		Terms:  terms,
		Phrase: len(terms) > 1,
	}, true, nil
}

// fieldPrefix reports an identifier immediately followed by ':' at the
// cursor. Values such as "12:30" are not field references.
func (p *parser) fieldPrefix() (string, bool) {
	i := p.pos
	for i < len(p.raw) {
		c := p.raw[i]
		if c == ':' {
			break
		}
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && i > p.pos) {
			return "", false
		}
		i++
	}
	if i == p.pos || i >= len(p.raw) {
		return "", false
	}
	return p.raw[p.pos:i], true
}

func (p *parser) peekOperator() string {
	for _, op := range []string{"AND", "OR", "NOT"} {
		end := p.pos + len(op)
		if strings.HasPrefix(p.raw[p.pos:], op) && (end == len(p.raw) || isSpace(p.raw[end])) {
			return op
		}
	}
	return ""
}

func (p *parser) skipSpace() {
	for p.pos < len(p.raw) && isSpace(p.raw[p.pos]) {
		p.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

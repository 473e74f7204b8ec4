// Package schema declares which record fields are tokenized for search and
// which are stored only for display. A Schema is built once at startup and is
// the single source of truth for both index construction and query parsing.
package schema

import (
	"crypto/sha256"
	"fmt"
	"strings"

	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

type FieldType int

const (
	Text FieldType = iota
	Float
	Int
)

func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Float:
		return "f64"
	case Int:
		return "i64"
	default:
		return "unknown"
	}
}

type Role int

const (
	// TokenizedStored fields are searchable by term and retrievable verbatim.
	TokenizedStored Role = iota
	// StoredOnly fields are retrievable verbatim but never matched.
	StoredOnly
)

func (r Role) String() string {
	switch r {
	case TokenizedStored:
		return "tokenized+stored"
	case StoredOnly:
		return "stored-only"
	default:
		return "unknown"
	}
}

// Field describes a single record field.
type Field struct {
	Name string
	Type FieldType
	Role Role
}

func (f Field) Tokenized() bool { return f.Role == TokenizedStored }

// Schema is an immutable ordered list of fields.
type Schema struct {
	fields      []Field
	byName      map[string]int
	tokenized   []int
	fingerprint string
}

// New validates the field list and returns a Schema.
func New(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: schema has no fields", apperrors.ErrSchemaMismatch)
	}
	s := &Schema{
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	var sig strings.Builder
	for i, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field %d has no name", apperrors.ErrSchemaMismatch, i)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", apperrors.ErrSchemaMismatch, f.Name)
		}
		if f.Role == TokenizedStored && f.Type != Text {
			return nil, fmt.Errorf("%w: field %q of type %s cannot be tokenized", apperrors.ErrSchemaMismatch, f.Name, f.Type)
		}
		s.byName[f.Name] = i
		if f.Tokenized() {
			s.tokenized = append(s.tokenized, i)
		}
		fmt.Fprintf(&sig, "%s:%s:%s;", f.Name, f.Type, f.Role)
	}
	sum := sha256.Sum256([]byte(sig.String()))
	s.fingerprint = fmt.Sprintf("%x", sum[:8])
	return s, nil
}

// MustNew is like New but panics on an invalid field list.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the declared fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) NumFields() int { return len(s.fields) }

func (s *Schema) FieldAt(i int) Field { return s.fields[i] }

// Field looks a field up by name.
func (s *Schema) Field(name string) (int, Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return -1, Field{}, false
	}
	return i, s.fields[i], true
}

// Tokenized returns the positions of tokenized fields in declaration order.
// These are the default fields a free-text query searches.
func (s *Schema) Tokenized() []int {
	out := make([]int, len(s.tokenized))
	copy(out, s.tokenized)
	return out
}

func (s *Schema) Fingerprint() string { return s.fingerprint }

// Compatible reports whether other declares exactly the same fields.
func (s *Schema) Compatible(other *Schema) error {
	if other == nil || s.fingerprint != other.fingerprint {
		return fmt.Errorf("%w: schema %s does not match %s", apperrors.ErrSchemaMismatch, s.fingerprint, fingerprintOf(other))
	}
	return nil
}

func fingerprintOf(s *Schema) string {
	if s == nil {
		return "<nil>"
	}
	return s.fingerprint
}

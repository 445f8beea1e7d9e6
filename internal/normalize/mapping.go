package normalize

import (
	"fmt"
	"strings"
)

// Side identifies one of the two datasets being compared.
type Side int

const (
	SideA Side = iota
	SideB
)

// Sides lists both sides in order.
var Sides = []Side{SideA, SideB}

func (s Side) String() string {
	if s == SideB {
		return "b"
	}
	return "a"
}

// MarshalText renders the side as "a" or "b".
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "a" or "b".
func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "a":
		*s = SideA
	case "b":
		*s = SideB
	default:
		return fmt.Errorf("unknown side %q", string(b))
	}
	return nil
}

// Canonical field names shared by both datasets.
const (
	FieldID        = "id"
	FieldTitle     = "title"
	FieldFirstName = "first_name"
	FieldSurname   = "surname"
	FieldGender    = "gender"
	FieldEmail     = "email"
	FieldEmailHash = "email_hash"
	FieldMobile    = "mobile"
	FieldLandline  = "landline"
	FieldSuburb    = "suburb"
	FieldState     = "state"
	FieldPostcode  = "postcode"
)

// Field maps one canonical field onto each source's column.
type Field struct {
	Name  string
	A     string
	B     string
	Width int
}

// Column returns the source column for side, or "" when unmapped.
func (f Field) Column(side Side) string {
	if side == SideB {
		return f.B
	}
	return f.A
}

// MappingError reports a canonical field that cannot be resolved for a side.
type MappingError struct {
	Field  string
	Side   Side
	Column string
}

func (e *MappingError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("field %q: column %q not found in source %s", e.Field, e.Column, e.Side)
	}
	return fmt.Sprintf("field %q has no column mapping for source %s", e.Field, e.Side)
}

// Mapping is the fixed canonical field table.
type Mapping struct {
	fields map[string]Field
	order  []string
}

// NewMapping builds a mapping. Field names must be unique and non-empty.
func NewMapping(fields ...Field) (*Mapping, error) {
	m := &Mapping{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field mapping with empty name")
		}
		if _, dup := m.fields[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field mapping %q", f.Name)
		}
		if f.Width < 0 {
			return nil, fmt.Errorf("field %q: negative width", f.Name)
		}
		m.fields[f.Name] = f
		m.order = append(m.order, f.Name)
	}
	return m, nil
}

// DefaultMapping returns the DataDirect (side A) / AliveData (side B) table.
func DefaultMapping() *Mapping {
	m, _ := NewMapping(
		Field{Name: FieldID, A: "ID", B: "adId"},
		Field{Name: FieldTitle, A: "Title", B: "title"},
		Field{Name: FieldFirstName, A: "FirstName", B: "given_name_1"},
		Field{Name: FieldSurname, A: "Surname", B: "surname"},
		Field{Name: FieldGender, A: "Gender", B: "gender"},
		Field{Name: FieldEmail, A: "EmailStd", B: "email"},
		Field{Name: FieldEmailHash, A: "EmailHash", B: "email_sha256"},
		Field{Name: FieldMobile, A: "Mobile", B: "mobile_text"},
		Field{Name: FieldLandline, A: "Landline", B: "landline_text"},
		Field{Name: FieldSuburb, A: "Suburb", B: "suburb"},
		Field{Name: FieldState, A: "State", B: "state"},
		Field{Name: FieldPostcode, A: "Postcode", B: "postcode_text", Width: 4},
	)
	return m
}

// Field looks up a canonical field.
func (m *Mapping) Field(name string) (Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Fields returns the mapped fields in declaration order.
func (m *Mapping) Fields() []Field {
	out := make([]Field, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.fields[name])
	}
	return out
}

// Column returns the raw column name for a canonical field on one side.
func (m *Mapping) Column(field string, side Side) (string, error) {
	f, ok := m.fields[field]
	if !ok || f.Column(side) == "" {
		return "", &MappingError{Field: field, Side: side}
	}
	return f.Column(side), nil
}

// Row holds normalized values keyed by canonical field.
type Row map[string]Value

// Get returns the value for field, null when absent.
func (r Row) Get(field string) Value {
	return r[field]
}

type projected struct {
	name  string
	index int
	width int
}

// Projector turns raw source rows into normalized Rows for a set of
// canonical fields resolved against one source header.
type Projector struct {
	side   Side
	fields []projected
	index  map[string]int
}

// Projector resolves fields against header. Fields that cannot be resolved
// are reported as MappingErrors and left out of the projection.
func (m *Mapping) Projector(side Side, header []string, fields []string) (*Projector, []*MappingError) {
	exact := make(map[string]int, len(header))
	folded := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := exact[h]; !ok {
			exact[h] = i
		}
		if _, ok := folded[strings.ToLower(h)]; !ok {
			folded[strings.ToLower(h)] = i
		}
	}

	p := &Projector{side: side, index: make(map[string]int)}
	var errs []*MappingError
	for _, name := range fields {
		if _, seen := p.index[name]; seen {
			continue
		}
		col, err := m.Column(name, side)
		if err != nil {
			errs = append(errs, err.(*MappingError))
			continue
		}
		idx, ok := exact[col]
		if !ok {
			idx, ok = folded[strings.ToLower(col)]
		}
		if !ok {
			errs = append(errs, &MappingError{Field: name, Side: side, Column: col})
			continue
		}
		f := m.fields[name]
		p.index[name] = len(p.fields)
		p.fields = append(p.fields, projected{name: name, index: idx, width: f.Width})
	}
	return p, errs
}

// Side returns the side the projector was built for.
func (p *Projector) Side() Side { return p.side }

// Has reports whether field was resolved.
func (p *Projector) Has(field string) bool {
	_, ok := p.index[field]
	return ok
}

// Row normalizes every projected field of a raw row.
func (p *Projector) Row(values []any) Row {
	row := make(Row, len(p.fields))
	for _, f := range p.fields {
		if f.index >= len(values) {
			row[f.name] = Null
			continue
		}
		row[f.name] = NormalizeWidth(values[f.index], f.width)
	}
	return row
}

// RawText returns the coerced but otherwise untouched text of field, for
// consumers that need the original casing (email digests).
func (p *Projector) RawText(values []any, field string) (string, bool) {
	i, ok := p.index[field]
	if !ok {
		return "", false
	}
	f := p.fields[i]
	if f.index >= len(values) {
		return "", false
	}
	s, ok := Coerce(values[f.index], f.width)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

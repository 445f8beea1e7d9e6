// Package keys builds single-field and compound matching keys from
// normalized rows.
package keys

import (
	"fmt"
	"strings"

	"github.com/record-overlap/internal/normalize"
)

// Separator joins the normalized values of a compound key.
const Separator = " "

// Def describes one matching key: an ordered list of canonical fields.
// The same fields in a different order form a different key.
type Def struct {
	Name   string   `yaml:"name" json:"name"`
	Fields []string `yaml:"fields" json:"fields"`
}

// Single returns a key over one field, named after it.
func Single(field string) Def {
	return Def{Name: field, Fields: []string{field}}
}

// Compound returns a key over several fields.
func Compound(name string, fields ...string) Def {
	return Def{Name: name, Fields: fields}
}

// IsCompound reports whether the key spans more than one field.
func (d Def) IsCompound() bool { return len(d.Fields) > 1 }

// Build returns the key string for row, or false when any field is null.
func (d Def) Build(row normalize.Row) (string, bool) {
	if len(d.Fields) == 0 {
		return "", false
	}
	if len(d.Fields) == 1 {
		v := row.Get(d.Fields[0])
		if v.IsNull() {
			return "", false
		}
		return v.String(), true
	}

	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		v := row.Get(f)
		if v.IsNull() {
			return "", false
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, Separator), true
}

// Validate returns a MappingError for every field/side pair the mapping
// cannot resolve.
func (d Def) Validate(m *normalize.Mapping) []*normalize.MappingError {
	var errs []*normalize.MappingError
	for _, f := range d.Fields {
		for _, side := range normalize.Sides {
			if _, err := m.Column(f, side); err != nil {
				errs = append(errs, err.(*normalize.MappingError))
			}
		}
	}
	return errs
}

func (d Def) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, strings.Join(d.Fields, "+"))
}

// Fields returns the union of fields used by defs, in first-seen order.
func Fields(defs []Def) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range defs {
		for _, f := range d.Fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// Defaults returns every single canonical field (except the record id)
// followed by the compound keys used for person matching.
func Defaults() []Def {
	defs := []Def{
		Single(normalize.FieldTitle),
		Single(normalize.FieldFirstName),
		Single(normalize.FieldSurname),
		Single(normalize.FieldGender),
		Single(normalize.FieldEmail),
		Single(normalize.FieldEmailHash),
		Single(normalize.FieldMobile),
		Single(normalize.FieldLandline),
		Single(normalize.FieldSuburb),
		Single(normalize.FieldState),
		Single(normalize.FieldPostcode),
	}
	return append(defs,
		Compound("FullName", normalize.FieldFirstName, normalize.FieldSurname),
		Compound("NameState", normalize.FieldFirstName, normalize.FieldSurname, normalize.FieldState),
		Compound("NameSuburbPostcode", normalize.FieldFirstName, normalize.FieldSurname, normalize.FieldSuburb, normalize.FieldPostcode),
		Compound("NameSuburbPostcodeMobile", normalize.FieldFirstName, normalize.FieldSurname, normalize.FieldSuburb, normalize.FieldPostcode, normalize.FieldMobile),
	)
}

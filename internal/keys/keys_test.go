package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-overlap/internal/normalize"
)

func row(kv ...string) normalize.Row {
	r := normalize.Row{}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = normalize.Text(kv[i+1])
	}
	return r
}

func TestBuild(t *testing.T) {
	r := row(
		normalize.FieldFirstName, " jane",
		normalize.FieldSurname, "Doe ",
		normalize.FieldSuburb, "north sydney",
		normalize.FieldPostcode, "2060",
	)

	tests := []struct {
		name string
		def  Def
		want string
		ok   bool
	}{
		{name: "single", def: Single(normalize.FieldSurname), want: "DOE", ok: true},
		{name: "full name", def: Compound("FullName", normalize.FieldFirstName, normalize.FieldSurname), want: "JANE DOE", ok: true},
		{name: "four fields", def: Compound("NSP", normalize.FieldFirstName, normalize.FieldSurname, normalize.FieldSuburb, normalize.FieldPostcode), want: "JANE DOE NORTH SYDNEY 2060", ok: true},
		{name: "missing field", def: Compound("NS", normalize.FieldFirstName, normalize.FieldState), ok: false},
		{name: "no fields", def: Def{Name: "empty"}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.def.Build(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildFieldOrderSensitive(t *testing.T) {
	r := row(normalize.FieldFirstName, "Jane", normalize.FieldSurname, "Doe")

	forward, ok := Compound("fs", normalize.FieldFirstName, normalize.FieldSurname).Build(r)
	require.True(t, ok)
	reverse, ok := Compound("sf", normalize.FieldSurname, normalize.FieldFirstName).Build(r)
	require.True(t, ok)

	assert.NotEqual(t, forward, reverse)
}

func TestBuildNullExclusion(t *testing.T) {
	r := normalize.Row{
		normalize.FieldFirstName: normalize.Text("Jane"),
		normalize.FieldSurname:   normalize.Normalize(nil),
	}
	_, ok := Compound("FullName", normalize.FieldFirstName, normalize.FieldSurname).Build(r)
	assert.False(t, ok)
}

func TestBuildSymmetricAcrossSides(t *testing.T) {
	m := normalize.DefaultMapping()
	def := Compound("FullName", normalize.FieldFirstName, normalize.FieldSurname)

	pa, errs := m.Projector(normalize.SideA, []string{"FirstName", "Surname"}, def.Fields)
	require.Empty(t, errs)
	pb, errs := m.Projector(normalize.SideB, []string{"surname", "given_name_1"}, def.Fields)
	require.Empty(t, errs)

	ka, ok := def.Build(pa.Row([]any{"Jane", "DOE"}))
	require.True(t, ok)
	kb, ok := def.Build(pb.Row([]any{"doe ", " jane"}))
	require.True(t, ok)
	assert.Equal(t, ka, kb)
}

func TestValidate(t *testing.T) {
	m, err := normalize.NewMapping(
		normalize.Field{Name: normalize.FieldFirstName, A: "FirstName", B: "given_name_1"},
		normalize.Field{Name: "dob", A: "DOB"},
	)
	require.NoError(t, err)

	assert.Empty(t, Single(normalize.FieldFirstName).Validate(m))

	errs := Compound("x", normalize.FieldFirstName, "dob", "unknown").Validate(m)
	require.Len(t, errs, 3)
	assert.Equal(t, "dob", errs[0].Field)
	assert.Equal(t, normalize.SideB, errs[0].Side)
	assert.Equal(t, "unknown", errs[1].Field)
	assert.Equal(t, normalize.SideA, errs[1].Side)
}

func TestFieldsAndDefaults(t *testing.T) {
	defs := Defaults()
	fields := Fields(defs)
	assert.Equal(t, normalize.FieldTitle, fields[0])
	assert.NotContains(t, fields, normalize.FieldID)

	m := normalize.DefaultMapping()
	for _, d := range defs {
		assert.Empty(t, d.Validate(m), d.String())
	}
}

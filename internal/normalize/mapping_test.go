package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingColumn(t *testing.T) {
	m := DefaultMapping()

	col, err := m.Column(FieldFirstName, SideA)
	require.NoError(t, err)
	assert.Equal(t, "FirstName", col)

	col, err = m.Column(FieldFirstName, SideB)
	require.NoError(t, err)
	assert.Equal(t, "given_name_1", col)

	_, err = m.Column("date_of_birth", SideB)
	var mapErr *MappingError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, "date_of_birth", mapErr.Field)
	assert.Equal(t, SideB, mapErr.Side)
}

func TestMappingOneSided(t *testing.T) {
	m, err := NewMapping(Field{Name: "dob", A: "DateOfBirth"})
	require.NoError(t, err)

	_, err = m.Column("dob", SideA)
	assert.NoError(t, err)
	_, err = m.Column("dob", SideB)
	assert.Error(t, err)
}

func TestNewMappingRejectsDuplicates(t *testing.T) {
	_, err := NewMapping(Field{Name: "x", A: "a", B: "b"}, Field{Name: "x", A: "c", B: "d"})
	assert.Error(t, err)

	_, err = NewMapping(Field{Name: ""})
	assert.Error(t, err)

	_, err = NewMapping(Field{Name: "p", A: "a", B: "b", Width: -1})
	assert.Error(t, err)
}

func TestProjector(t *testing.T) {
	m := DefaultMapping()
	header := []string{"adId", "given_name_1", "SURNAME", "postcode_text", "email"}

	p, errs := m.Projector(SideB, header, []string{FieldFirstName, FieldSurname, FieldPostcode, FieldState, FieldEmail, FieldSurname})
	require.Len(t, errs, 1)
	assert.Equal(t, FieldState, errs[0].Field)
	assert.Equal(t, "state", errs[0].Column)

	assert.True(t, p.Has(FieldSurname), "header lookup falls back to case-insensitive")
	assert.False(t, p.Has(FieldState))
	assert.Equal(t, SideB, p.Side())

	row := p.Row([]any{"7", " jane ", "Doe", int64(800), "Jane.Doe@Example.com"})
	assert.Equal(t, "JANE", row.Get(FieldFirstName).String())
	assert.Equal(t, "DOE", row.Get(FieldSurname).String())
	assert.Equal(t, "0800", row.Get(FieldPostcode).String())
	assert.True(t, row.Get(FieldState).IsNull())

	raw, ok := p.RawText([]any{"7", " jane ", "Doe", int64(800), "Jane.Doe@Example.com"}, FieldEmail)
	assert.True(t, ok)
	assert.Equal(t, "Jane.Doe@Example.com", raw)

	// short rows are padded with nulls
	short := p.Row([]any{"8", "Ann"})
	assert.True(t, short.Get(FieldSurname).IsNull())
}

func TestSideText(t *testing.T) {
	var s Side
	require.NoError(t, s.UnmarshalText([]byte("B")))
	assert.Equal(t, SideB, s)
	assert.Equal(t, "a", SideA.String())
	assert.Error(t, s.UnmarshalText([]byte("c")))
}

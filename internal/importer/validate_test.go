package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/eep-importer/internal/domain"
)

func rec(row int, values map[domain.Field]any) MappedRecord {
	return MappedRecord{Row: row, Values: values}
}

func TestValidate_MissingIdentifier(t *testing.T) {
	records := []MappedRecord{
		rec(2, map[domain.Field]any{domain.FieldStudentID: nil, domain.FieldFirstName: "Jo"}),
	}
	res := Validate(records, nil)

	require.Len(t, res.Issues, 1)
	assert.Equal(t, 2, res.Issues[0].Row)
	assert.Contains(t, res.Issues[0].Message, "Student ID")
	assert.Equal(t, "Jo", res.Issues[0].Name)
	assert.Empty(t, res.Valid)
}

func TestValidate_NewRequiresNames(t *testing.T) {
	records := []MappedRecord{
		rec(2, map[domain.Field]any{domain.FieldStudentID: "EEP-9", domain.FieldFirstName: "Jo"}),
		rec(3, map[domain.Field]any{domain.FieldStudentID: "EEP-10", domain.FieldFirstName: "Ann", domain.FieldLastName: "Lee"}),
	}
	res := Validate(records, nil)

	require.Len(t, res.Issues, 1)
	assert.Equal(t, "EEP-9", res.Issues[0].StudentID)
	assert.Contains(t, res.Issues[0].Message, "Last Name")
	assert.NotContains(t, res.Issues[0].Message, "First Name")

	require.Len(t, res.Valid, 1)
	assert.True(t, res.Valid[0].IsNew)
	assert.Equal(t, 1, res.NewCount())
}

func TestValidate_ExistingSkipsRequiredCheck(t *testing.T) {
	lookup := []domain.StudentSummary{{StudentID: "EEP-1", FirstName: "Jo", LastName: "Lee"}}
	records := []MappedRecord{
		rec(2, map[domain.Field]any{domain.FieldStudentID: "EEP-1", domain.FieldSchool: "Hill"}),
	}
	res := Validate(records, lookup)

	assert.Empty(t, res.Issues)
	require.Len(t, res.Valid, 1)
	assert.False(t, res.Valid[0].IsNew)
	assert.Equal(t, 1, res.ExistingCount())
}

func TestValidate_DuplicateIdentifier(t *testing.T) {
	lookup := []domain.StudentSummary{{StudentID: "EEP-1", FirstName: "Jo", LastName: "Lee"}}
	records := []MappedRecord{
		rec(2, map[domain.Field]any{domain.FieldStudentID: "EEP-1", domain.FieldSchool: "Hill"}),
		rec(3, map[domain.Field]any{domain.FieldStudentID: "EEP-1", domain.FieldSchool: "Vale"}),
	}
	res := Validate(records, lookup)

	require.Len(t, res.Valid, 1)
	assert.Equal(t, 2, res.Valid[0].Row)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 3, res.Issues[0].Row)
	assert.Equal(t, "Jo Lee", res.Issues[0].Name, "name falls back to the lookup summary")
	assert.Contains(t, res.Issues[0].Message, "row 2")
}

func TestValidate_KeepsFileOrder(t *testing.T) {
	lookup := []domain.StudentSummary{{StudentID: "B"}}
	records := []MappedRecord{
		rec(2, map[domain.Field]any{domain.FieldStudentID: "A", domain.FieldFirstName: "a", domain.FieldLastName: "a"}),
		rec(3, map[domain.Field]any{domain.FieldStudentID: "B"}),
		rec(4, map[domain.Field]any{domain.FieldStudentID: "C", domain.FieldFirstName: "c", domain.FieldLastName: "c"}),
	}
	res := Validate(records, lookup)
	require.Len(t, res.Valid, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{res.Valid[0].ID(), res.Valid[1].ID(), res.Valid[2].ID()})
}

// Header ["Name","DOB","ID"], row ["Jo Lee","2010-13-45","EEP-1"].
func TestScenario_InvalidDateIsNullNotAnIssue(t *testing.T) {
	pf, err := Parse("s.csv", "text/csv", []byte("Name,DOB,ID\nJo Lee,2010-13-45,EEP-1\n"), 0)
	require.NoError(t, err)

	records := Transform(pf.Columns, pf.Rows, SuggestMapping(pf.Columns))
	require.Len(t, records, 1)
	assert.True(t, records[0].Has(domain.FieldDateOfBirth))
	assert.Nil(t, records[0].Values[domain.FieldDateOfBirth])

	lookup := []domain.StudentSummary{{StudentID: "EEP-1", FirstName: "Jo", LastName: "Lee"}}
	res := Validate(records, lookup)
	assert.Empty(t, res.Issues)
	require.Len(t, res.Valid, 1)
	assert.Equal(t, "EEP-1", res.Valid[0].ID())
}

func TestScenario_EmptyIdentifier(t *testing.T) {
	pf, err := Parse("s.csv", "", []byte("Student ID,First Name,Last Name\n ,Jo,Lee\n"), 0)
	require.NoError(t, err)

	res := Validate(Transform(pf.Columns, pf.Rows, SuggestMapping(pf.Columns)), nil)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0].Message, "Student ID")
	assert.Empty(t, res.Valid)
}

func TestTransform_RightmostColumnWins(t *testing.T) {
	cols := []string{"ID", "First Name", "Given Name"}
	row := RawRow{Index: 0, Cells: []ColumnCell{
		{Column: "ID", Cell: StringCell("EEP-1")},
		{Column: "First Name", Cell: StringCell("Joanna")},
		{Column: "Given Name", Cell: StringCell("Jo")},
	}}
	recs := Transform(cols, []RawRow{row}, SuggestMapping(cols))
	require.Len(t, recs, 1)
	assert.Equal(t, "Jo", recs[0].Values[domain.FieldFirstName])
}

func TestTransform_NoIdentifierMapping(t *testing.T) {
	cols := []string{"Favourite Colour"}
	row := RawRow{Cells: []ColumnCell{{Column: "Favourite Colour", Cell: StringCell("red")}}}
	assert.Empty(t, Transform(cols, []RawRow{row}, SuggestMapping(cols)))
}

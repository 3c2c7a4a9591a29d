package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/eep-importer/internal/domain"
)

// fakeCommitter records bulk calls.
type fakeCommitter struct {
	calls    int
	payloads []domain.BulkImportPayload
	result   domain.ImportResult
	err      error
}

func (f *fakeCommitter) BulkImport(_ context.Context, p domain.BulkImportPayload) (domain.ImportResult, error) {
	f.calls++
	f.payloads = append(f.payloads, p)
	return f.result, f.err
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 15, 1, 0, 0, 0, time.FixedZone("EAT", 3*3600)) }

func sampleDiff() RecordDiff {
	return RecordDiff{
		StudentID: "EEP-1",
		Name:      "Jo Lee",
		Changes: []FieldChange{
			{Field: domain.FieldSchool, Old: "Hill", New: "Vale"},
			{Field: domain.FieldGrade, Old: "4", New: "5"},
			{Field: domain.FieldIsBoarding, Old: nil, New: true},
		},
	}
}

func TestSelection(t *testing.T) {
	sel := NewSelection([]RecordDiff{sampleDiff()})
	assert.True(t, sel.AllSelected("EEP-1"), "all changes start approved")

	require.NoError(t, sel.Toggle("EEP-1", domain.FieldGrade, false))
	assert.False(t, sel.AllSelected("EEP-1"))
	assert.False(t, sel.IsSelected("EEP-1", domain.FieldGrade))
	assert.True(t, sel.IsSelected("EEP-1", domain.FieldSchool))

	require.NoError(t, sel.SetAll("EEP-1", true))
	assert.True(t, sel.AllSelected("EEP-1"))

	require.NoError(t, sel.SetAll("EEP-1", false))
	assert.False(t, sel.AllSelected("EEP-1"))
	assert.False(t, sel.IsSelected("EEP-1", domain.FieldSchool))

	assert.ErrorIs(t, sel.Toggle("EEP-404", domain.FieldGrade, true), ErrUnknownSelection)
	assert.ErrorIs(t, sel.Toggle("EEP-1", domain.FieldNotes, true), ErrUnknownSelection)
	assert.ErrorIs(t, sel.SetAll("EEP-404", true), ErrUnknownSelection)

	snap := sel.Snapshot()
	snap["EEP-1"][domain.FieldSchool] = true
	assert.False(t, sel.IsSelected("EEP-1", domain.FieldSchool), "snapshot is a copy")
}

func TestBuildPayload_SelectAllIncludesEveryChange(t *testing.T) {
	d := sampleDiff()
	sel := NewSelection([]RecordDiff{d})
	require.NoError(t, sel.SetAll("EEP-1", true))

	p := BuildPayload(nil, []RecordDiff{d}, sel, PayloadOptions{Now: fixedNow})
	require.Len(t, p.Update, 1)
	assert.Equal(t, domain.StudentPatch{
		domain.FieldStudentID:  "EEP-1",
		domain.FieldSchool:     "Vale",
		domain.FieldGrade:      "5",
		domain.FieldIsBoarding: true,
	}, p.Update[0])
	assert.Empty(t, p.Create)
}

func TestBuildPayload_DeselectOneExcludesExactlyThatField(t *testing.T) {
	d := sampleDiff()
	sel := NewSelection([]RecordDiff{d})
	require.NoError(t, sel.Toggle("EEP-1", domain.FieldGrade, false))

	p := BuildPayload(nil, []RecordDiff{d}, sel, PayloadOptions{Now: fixedNow})
	require.Len(t, p.Update, 1)
	assert.NotContains(t, p.Update[0], domain.FieldGrade)
	assert.Contains(t, p.Update[0], domain.FieldSchool)
	assert.Contains(t, p.Update[0], domain.FieldIsBoarding)
	assert.Len(t, p.Update[0], 3)
}

func TestBuildPayload_NothingCheckedOmitsRecord(t *testing.T) {
	d := sampleDiff()
	sel := NewSelection([]RecordDiff{d})
	require.NoError(t, sel.SetAll("EEP-1", false))

	p := BuildPayload(nil, []RecordDiff{d}, sel, PayloadOptions{Now: fixedNow})
	assert.Empty(t, p.Update)
	assert.Zero(t, p.Len())
}

// New record missing both dates.
func TestScenario_NewRecordBackfillsDates(t *testing.T) {
	pf, err := Parse("s.csv", "", []byte("Student ID,First Name,Last Name,DOB\nEEP-9,Jo,Lee,\n"), 0)
	require.NoError(t, err)
	res := Validate(Transform(pf.Columns, pf.Rows, SuggestMapping(pf.Columns)), nil)
	assert.Empty(t, res.Issues)
	diff := ComputeDiffs(res.Valid, nil)

	p := BuildPayload(diff.New, diff.Diffs, NewSelection(diff.Diffs), PayloadOptions{Now: fixedNow})
	require.Len(t, p.Create, 1)
	assert.Equal(t, "1900-01-01", p.Create[0][domain.FieldDateOfBirth])
	assert.Equal(t, "2026-03-14", p.Create[0][domain.FieldEnrollmentDate], "today in UTC")
	assert.Equal(t, "EEP-9", p.Create[0].ID())
}

func TestBuildPayload_KeepsProvidedDates(t *testing.T) {
	newRec := rec(2, map[domain.Field]any{
		domain.FieldStudentID:      "EEP-9",
		domain.FieldDateOfBirth:    "2011-02-03",
		domain.FieldEnrollmentDate: "2020-01-06",
	})
	p := BuildPayload([]MappedRecord{newRec}, nil, nil, PayloadOptions{BirthDateSentinel: "1901-01-01", Now: fixedNow})
	assert.Equal(t, "2011-02-03", p.Create[0][domain.FieldDateOfBirth])
	assert.Equal(t, "2020-01-06", p.Create[0][domain.FieldEnrollmentDate])

	p = BuildPayload([]MappedRecord{rec(2, map[domain.Field]any{domain.FieldStudentID: "EEP-9"})}, nil, nil,
		PayloadOptions{BirthDateSentinel: "1901-01-01", Now: fixedNow})
	assert.Equal(t, "1901-01-01", p.Create[0][domain.FieldDateOfBirth])
	assert.Len(t, newRec.Values, 3, "input record untouched")
}

func TestSubmit_EmptyPayloadNeverCallsBackend(t *testing.T) {
	c := &fakeCommitter{}
	_, err := Submit(context.Background(), c, domain.BulkImportPayload{})
	assert.ErrorIs(t, err, ErrNothingToImport)
	assert.Zero(t, c.calls)
}

func TestSubmit_RewritesDuplicateKey(t *testing.T) {
	c := &fakeCommitter{result: domain.ImportResult{
		CreatedCount: 1,
		SkippedCount: 1,
		Errors: []string{
			`pq: duplicate key value violates unique constraint "students_student_id_key" Key (student_id)=(EEP-7) already exists.`,
			"row 3: grade too long",
		},
	}}
	payload := domain.BulkImportPayload{Create: []domain.StudentPatch{{domain.FieldStudentID: "EEP-6"}, {domain.FieldStudentID: "EEP-7"}}}

	res, err := Submit(context.Background(), c, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, []string{"Student ID EEP-7 already exists.", "row 3: grade too long"}, res.Errors)
}

func TestSubmit_TransportErrorSkipsEverything(t *testing.T) {
	c := &fakeCommitter{err: errors.New("dial tcp: connection refused")}
	payload := domain.BulkImportPayload{
		Create: []domain.StudentPatch{{domain.FieldStudentID: "A"}},
		Update: []domain.StudentPatch{{domain.FieldStudentID: "B"}, {domain.FieldStudentID: "C"}},
	}

	res, err := Submit(context.Background(), c, payload)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SkippedCount)
	assert.Zero(t, res.CreatedCount)
	assert.Equal(t, []string{"dial tcp: connection refused"}, res.Errors)
}

func TestSubmit_BackendErrorIsRewritten(t *testing.T) {
	c := &fakeCommitter{err: errors.New(`backend error (status 409): Key (student_id)=(EEP-4) already exists.`)}
	payload := domain.BulkImportPayload{Create: []domain.StudentPatch{{domain.FieldStudentID: "EEP-4"}}}

	res, err := Submit(context.Background(), c, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, []string{"Student ID EEP-4 already exists."}, res.Errors)
}

func TestRewriteBackendError(t *testing.T) {
	assert.Equal(t, "Student ID X-1 already exists.", RewriteBackendError("Key (student_id)=(X-1) already exists"))
	assert.Equal(t, "something else", RewriteBackendError("something else"))
}

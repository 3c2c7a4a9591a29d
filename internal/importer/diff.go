package importer

import (
	"strings"

	"github.com/ignite/eep-importer/internal/domain"
)

// VanishedMessage is raised for an identifier the lookup listed but the full
// record fetch no longer returns.
const VanishedMessage = "record no longer exists on the server"

// FieldChange is one field whose imported value differs from the stored one.
type FieldChange struct {
	Field domain.Field `json:"field"`
	Label string       `json:"label"`
	Old   any          `json:"old"`
	New   any          `json:"new"`
}

// RecordDiff collects the changes for one existing student. It always holds
// at least one change.
type RecordDiff struct {
	Row       int           `json:"row"`
	StudentID string        `json:"studentId"`
	Name      string        `json:"name"`
	Changes   []FieldChange `json:"changes"`
}

// DiffResult is the review set: students to create and changes to approve,
// both in file order, plus issues for records that disappeared.
type DiffResult struct {
	New    []MappedRecord    `json:"new"`
	Diffs  []RecordDiff      `json:"diffs"`
	Issues []ValidationIssue `json:"issues"`
	// Unchanged counts existing students whose mapped fields already match.
	Unchanged int `json:"unchanged"`
}

// ExistingIDs returns the identifiers of valid records that matched the
// lookup, in file order. These are the records to fetch in full.
func ExistingIDs(valid []ValidRecord) []string {
	var ids []string
	for _, r := range valid {
		if !r.IsNew {
			ids = append(ids, r.ID())
		}
	}
	return ids
}

// ComputeDiffs compares valid records against the full existing records.
func ComputeDiffs(valid []ValidRecord, existing []domain.Student) DiffResult {
	byID := make(map[string]domain.Student, len(existing))
	for _, s := range existing {
		byID[strings.TrimSpace(s.StudentID)] = s
	}

	res := DiffResult{New: []MappedRecord{}, Diffs: []RecordDiff{}, Issues: []ValidationIssue{}}
	for _, rec := range valid {
		if rec.IsNew {
			res.New = append(res.New, rec.MappedRecord)
			continue
		}
		cur, ok := byID[rec.ID()]
		if !ok {
			res.Issues = append(res.Issues, ValidationIssue{
				Row:       rec.Row,
				StudentID: rec.ID(),
				Name:      rec.DisplayName(),
				Message:   VanishedMessage,
			})
			continue
		}
		changes := DiffRecord(rec.MappedRecord, cur)
		if len(changes) == 0 {
			res.Unchanged++
			continue
		}
		res.Diffs = append(res.Diffs, RecordDiff{
			Row:       rec.Row,
			StudentID: rec.ID(),
			Name:      cur.DisplayName(),
			Changes:   changes,
		})
	}
	return res
}

// DiffRecord lists the mapped fields of rec whose normalized value differs
// from cur. The identifier is never diffed.
func DiffRecord(rec MappedRecord, cur domain.Student) []FieldChange {
	var changes []FieldChange
	for _, f := range rec.Fields() {
		if f == domain.IdentifierField {
			continue
		}
		kind := domain.KindOf(f)
		newV := normalizeValue(kind, rec.Values[f])
		oldV := normalizeValue(kind, cur.Get(f))
		if newV == oldV {
			continue
		}
		changes = append(changes, FieldChange{
			Field: f,
			Label: domain.LabelOf(f),
			Old:   displayValue(kind, cur.Get(f)),
			New:   rec.Values[f],
		})
	}
	return changes
}

func displayValue(kind domain.FieldKind, v any) any {
	if v == nil {
		return nil
	}
	if kind == domain.KindDate {
		return normalizeValue(kind, v)
	}
	return v
}

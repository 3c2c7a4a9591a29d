package importer

import (
	"fmt"
	"strings"

	"github.com/ignite/eep-importer/internal/domain"
)

// ValidationIssue is a per-row, non-blocking problem. The row it names is
// left out of the import.
type ValidationIssue struct {
	Row       int    `json:"row"`
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

// ValidRecord is a mapped record that passed validation.
type ValidRecord struct {
	MappedRecord
	IsNew bool `json:"isNew"`
}

// ValidationResult holds issues and surviving records, both in file order.
type ValidationResult struct {
	Issues []ValidationIssue `json:"issues"`
	Valid  []ValidRecord     `json:"valid"`
}

// NewCount and ExistingCount split the valid records.
func (v ValidationResult) NewCount() int {
	n := 0
	for _, r := range v.Valid {
		if r.IsNew {
			n++
		}
	}
	return n
}

func (v ValidationResult) ExistingCount() int { return len(v.Valid) - v.NewCount() }

// Validate checks records against the lookup summaries. A record whose
// identifier is unknown is new and must carry every field in
// domain.RequiredForNew. Known identifiers are updates and skip that check.
// A second row with an identifier already seen in the file is rejected.
func Validate(records []MappedRecord, lookup []domain.StudentSummary) ValidationResult {
	known := make(map[string]domain.StudentSummary, len(lookup))
	for _, s := range lookup {
		known[strings.TrimSpace(s.StudentID)] = s
	}

	res := ValidationResult{Issues: []ValidationIssue{}, Valid: []ValidRecord{}}
	firstSeen := make(map[string]int)

	for _, rec := range records {
		id := rec.ID()
		name := domain.DisplayName(rec.Text(domain.FieldFirstName), rec.Text(domain.FieldLastName), "")

		if id == "" {
			res.Issues = append(res.Issues, ValidationIssue{
				Row:     rec.Row,
				Name:    name,
				Message: domain.LabelOf(domain.IdentifierField) + " is required",
			})
			continue
		}

		summary, exists := known[id]
		if name == "" {
			name = domain.DisplayName(summary.FirstName, summary.LastName, id)
		}

		if row, dup := firstSeen[id]; dup {
			res.Issues = append(res.Issues, ValidationIssue{
				Row:       rec.Row,
				StudentID: id,
				Name:      name,
				Message:   fmt.Sprintf("Duplicate %s %s, already imported from row %d", domain.LabelOf(domain.IdentifierField), id, row),
			})
			continue
		}

		if !exists {
			if missing := missingRequired(rec); len(missing) > 0 {
				res.Issues = append(res.Issues, ValidationIssue{
					Row:       rec.Row,
					StudentID: id,
					Name:      name,
					Message:   "Missing required fields for new student: " + strings.Join(missing, ", "),
				})
				continue
			}
		}

		firstSeen[id] = rec.Row
		res.Valid = append(res.Valid, ValidRecord{MappedRecord: rec, IsNew: !exists})
	}
	return res
}

// UnlistedIDs returns the distinct non-empty identifiers of records the
// lookup does not list, in file order.
func UnlistedIDs(records []MappedRecord, lookup []domain.StudentSummary) []string {
	known := make(map[string]bool, len(lookup))
	for _, s := range lookup {
		known[strings.TrimSpace(s.StudentID)] = true
	}
	var ids []string
	for _, rec := range records {
		id := rec.ID()
		if id == "" || known[id] {
			continue
		}
		known[id] = true
		ids = append(ids, id)
	}
	return ids
}

func missingRequired(rec MappedRecord) []string {
	var missing []string
	for _, f := range domain.RequiredForNew {
		if rec.Text(f) == "" {
			missing = append(missing, domain.LabelOf(f))
		}
	}
	return missing
}

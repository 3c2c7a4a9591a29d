package importer

import (
	"context"
	"regexp"
	"time"

	"github.com/ignite/eep-importer/internal/domain"
)

// DefaultBirthDate backfills new students whose file carried no birth date.
const DefaultBirthDate = "1900-01-01"

// PayloadOptions controls backfilling of new records.
type PayloadOptions struct {
	// BirthDateSentinel replaces a missing birth date. Defaults to
	// DefaultBirthDate.
	BirthDateSentinel string
	// Now supplies today's date for a missing enrollment date.
	Now func() time.Time
}

func (o PayloadOptions) withDefaults() PayloadOptions {
	if o.BirthDateSentinel == "" {
		o.BirthDateSentinel = DefaultBirthDate
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// BuildPayload assembles the bulk request. New records carry every mapped
// field with birth and enrollment dates backfilled. Updates carry the
// identifier plus the approved fields; a diff with nothing approved adds
// nothing.
func BuildPayload(newRecords []MappedRecord, diffs []RecordDiff, sel *Selection, opts PayloadOptions) domain.BulkImportPayload {
	opts = opts.withDefaults()
	today := opts.Now().UTC().Format(dateLayout)

	payload := domain.BulkImportPayload{
		Create: make([]domain.StudentPatch, 0, len(newRecords)),
		Update: make([]domain.StudentPatch, 0, len(diffs)),
	}

	for _, rec := range newRecords {
		p := make(domain.StudentPatch, len(rec.Values)+2)
		for f, v := range rec.Values {
			p[f] = v
		}
		if p[domain.FieldDateOfBirth] == nil {
			p[domain.FieldDateOfBirth] = opts.BirthDateSentinel
		}
		if p[domain.FieldEnrollmentDate] == nil {
			p[domain.FieldEnrollmentDate] = today
		}
		payload.Create = append(payload.Create, p)
	}

	for _, d := range diffs {
		p := domain.StudentPatch{}
		for _, c := range d.Changes {
			if sel != nil && !sel.IsSelected(d.StudentID, c.Field) {
				continue
			}
			p[c.Field] = c.New
		}
		if len(p) == 0 {
			continue
		}
		p[domain.IdentifierField] = d.StudentID
		payload.Update = append(payload.Update, p)
	}
	return payload
}

// Submit sends payload in one call. An empty payload returns
// ErrNothingToImport without calling the backend. A transport or backend
// failure is folded into the result: one error entry and every row skipped.
func Submit(ctx context.Context, c Committer, payload domain.BulkImportPayload) (domain.ImportResult, error) {
	if payload.Len() == 0 {
		return domain.ImportResult{}, ErrNothingToImport
	}
	res, err := c.BulkImport(ctx, payload)
	if err != nil {
		return domain.ImportResult{
			SkippedCount: payload.Len(),
			Errors:       []string{RewriteBackendError(err.Error())},
		}, nil
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	for i, msg := range res.Errors {
		res.Errors[i] = RewriteBackendError(msg)
	}
	return res, nil
}

var duplicateKeyRe = regexp.MustCompile(`Key \(student_id\)=\(([^)]*)\) already exists`)

// RewriteBackendError turns the database duplicate-key message into a
// sentence an operator can act on. Other messages pass through unchanged.
func RewriteBackendError(msg string) string {
	if m := duplicateKeyRe.FindStringSubmatch(msg); m != nil {
		return "Student ID " + m[1] + " already exists."
	}
	return msg
}

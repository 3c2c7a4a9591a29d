package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/eep-importer/internal/domain"
)

// studentColumns maps student fields to table columns.
var studentColumns = map[domain.Field]string{
	domain.FieldStudentID:            "student_id",
	domain.FieldFirstName:            "first_name",
	domain.FieldLastName:             "last_name",
	domain.FieldDateOfBirth:          "date_of_birth",
	domain.FieldGender:               "gender",
	domain.FieldEnrollmentDate:       "enrollment_date",
	domain.FieldSchool:               "school",
	domain.FieldGrade:                "grade",
	domain.FieldLocation:             "location",
	domain.FieldGuardianName:         "guardian_name",
	domain.FieldGuardianPhone:        "guardian_phone",
	domain.FieldSponsorID:            "sponsor_id",
	domain.FieldSponsorshipStartDate: "sponsorship_start_date",
	domain.FieldGraduationDate:       "graduation_date",
	domain.FieldIsActive:             "is_active",
	domain.FieldIsSponsored:          "is_sponsored",
	domain.FieldIsBoarding:           "is_boarding",
	domain.FieldNotes:                "notes",
}

const studentSelect = `
	SELECT student_id, COALESCE(first_name,''), COALESCE(last_name,''),
	       to_char(date_of_birth, 'YYYY-MM-DD'), COALESCE(gender,''),
	       to_char(enrollment_date, 'YYYY-MM-DD'), COALESCE(school,''),
	       COALESCE(grade,''), COALESCE(location,''), COALESCE(guardian_name,''),
	       COALESCE(guardian_phone,''), COALESCE(sponsor_id,''),
	       to_char(sponsorship_start_date, 'YYYY-MM-DD'),
	       to_char(graduation_date, 'YYYY-MM-DD'),
	       is_active, is_sponsored, is_boarding, COALESCE(notes,'')
	FROM students`

// StudentRepo serves student lookups and bulk imports from PostgreSQL.
type StudentRepo struct{ db *sql.DB }

// NewStudentRepo creates a Postgres-backed student repository.
func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{db: db} }

func (r *StudentRepo) LookupStudents(ctx context.Context) ([]domain.StudentSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, COALESCE(first_name,''), COALESCE(last_name,'')
		FROM students
		ORDER BY student_id
	`)
	if err != nil {
		return nil, fmt.Errorf("lookup students: %w", err)
	}
	defer rows.Close()

	out := []domain.StudentSummary{}
	for rows.Next() {
		var s domain.StudentSummary
		if err := rows.Scan(&s.StudentID, &s.FirstName, &s.LastName); err != nil {
			return nil, fmt.Errorf("scan student summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StudentRepo) FetchStudents(ctx context.Context, ids []string) ([]domain.Student, error) {
	out := []domain.Student{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, studentSelect+`
		WHERE student_id = ANY($1)
		ORDER BY student_id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStudent(rows *sql.Rows) (domain.Student, error) {
	var (
		s                          domain.Student
		dob, enrolled, spStart, gr sql.NullString
		active, sponsored, board   sql.NullBool
	)
	err := rows.Scan(
		&s.StudentID, &s.FirstName, &s.LastName,
		&dob, &s.Gender,
		&enrolled, &s.School,
		&s.Grade, &s.Location, &s.GuardianName,
		&s.GuardianPhone, &s.SponsorID,
		&spStart, &gr,
		&active, &sponsored, &board, &s.Notes,
	)
	if err != nil {
		return s, fmt.Errorf("scan student: %w", err)
	}
	s.DateOfBirth = nullString(dob)
	s.EnrollmentDate = nullString(enrolled)
	s.SponsorshipStartDate = nullString(spStart)
	s.GraduationDate = nullString(gr)
	s.IsActive = nullBool(active)
	s.IsSponsored = nullBool(sponsored)
	s.IsBoarding = nullBool(board)
	return s, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return &v.Bool
}

// BulkImport applies creates then updates in one transaction. Each row runs
// under its own savepoint, so a failing row is counted as skipped and the
// rest still commit. The outcome is appended to student_import_log.
func (r *StudentRepo) BulkImport(ctx context.Context, payload domain.BulkImportPayload) (domain.ImportResult, error) {
	res := domain.ImportResult{Errors: []string{}}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin bulk import: %w", err)
	}
	defer tx.Rollback()

	for _, p := range payload.Create {
		rowErr, err := applyRow(ctx, tx, p, insertStudent)
		if err != nil {
			return domain.ImportResult{}, err
		}
		if rowErr != nil {
			res.SkippedCount++
			res.Errors = append(res.Errors, rowError(p, rowErr))
			continue
		}
		res.CreatedCount++
	}
	for _, p := range payload.Update {
		rowErr, err := applyRow(ctx, tx, p, updateStudent)
		if err != nil {
			return domain.ImportResult{}, err
		}
		if rowErr != nil {
			res.SkippedCount++
			res.Errors = append(res.Errors, rowError(p, rowErr))
			continue
		}
		res.UpdatedCount++
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO student_import_log (id, created_count, updated_count, skipped_count, errors)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), res.CreatedCount, res.UpdatedCount, res.SkippedCount, pq.Array(res.Errors))
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("record bulk import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ImportResult{}, fmt.Errorf("commit bulk import: %w", err)
	}
	return res, nil
}

var errStudentNotFound = errors.New("student not found")

// applyRow runs fn under a savepoint. rowErr is the row's own failure, rolled
// back to the savepoint. err means the transaction itself is no longer usable
// and the whole import must stop.
func applyRow(ctx context.Context, tx *sql.Tx, p domain.StudentPatch, fn func(context.Context, *sql.Tx, domain.StudentPatch) error) (rowErr, err error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT row_sp"); err != nil {
		return nil, fmt.Errorf("savepoint for %s: %w", p.ID(), err)
	}
	if rowErr := fn(ctx, tx, p); rowErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT row_sp"); err != nil {
			return nil, fmt.Errorf("roll back %s: %w", p.ID(), err)
		}
		return rowErr, nil
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT row_sp"); err != nil {
		return nil, fmt.Errorf("release savepoint for %s: %w", p.ID(), err)
	}
	return nil, nil
}

// patchColumns returns the patch's non-identifier columns and values in
// field catalog order.
func patchColumns(p domain.StudentPatch) ([]string, []any, error) {
	for f := range p {
		if _, ok := studentColumns[f]; !ok {
			return nil, nil, fmt.Errorf("unknown field %q", f)
		}
	}
	var cols []string
	var vals []any
	for _, spec := range domain.StudentFields {
		v, ok := p[spec.Name]
		if !ok || spec.Name == domain.IdentifierField {
			continue
		}
		cols = append(cols, studentColumns[spec.Name])
		vals = append(vals, v)
	}
	return cols, vals, nil
}

func insertStudent(ctx context.Context, tx *sql.Tx, p domain.StudentPatch) error {
	if p.ID() == "" {
		return errors.New("student ID is required")
	}
	cols, vals, err := patchColumns(p)
	if err != nil {
		return err
	}
	cols = append([]string{"student_id"}, cols...)
	vals = append([]any{p.ID()}, vals...)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(`INSERT INTO students (%s, created_at, updated_at) VALUES (%s, NOW(), NOW())`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err = tx.ExecContext(ctx, q, vals...)
	return err
}

func updateStudent(ctx context.Context, tx *sql.Tx, p domain.StudentPatch) error {
	cols, vals, err := patchColumns(p)
	if err != nil {
		return err
	}
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf(`UPDATE students SET %s WHERE student_id = $1`, strings.Join(sets, ", "))
	result, err := tx.ExecContext(ctx, q, append([]any{p.ID()}, vals...)...)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errStudentNotFound
	}
	return nil
}

// rowError formats a per-row failure. Postgres constraint details
// ("Key (student_id)=(X) already exists.") are preferred over the raw message.
func rowError(p domain.StudentPatch, err error) string {
	msg := err.Error()
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		msg = pqErr.Message
		if pqErr.Detail != "" {
			msg = pqErr.Detail
		}
	}
	if id := p.ID(); id != "" {
		return id + ": " + msg
	}
	return msg
}

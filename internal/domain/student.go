package domain

import "strings"

// Field is the canonical name of a student record field, as used by the
// backend API.
type Field string

const (
	FieldStudentID            Field = "studentId"
	FieldFirstName            Field = "firstName"
	FieldLastName             Field = "lastName"
	FieldDateOfBirth          Field = "dateOfBirth"
	FieldGender               Field = "gender"
	FieldEnrollmentDate       Field = "enrollmentDate"
	FieldSchool               Field = "school"
	FieldGrade                Field = "grade"
	FieldLocation             Field = "location"
	FieldGuardianName         Field = "guardianName"
	FieldGuardianPhone        Field = "guardianPhone"
	FieldSponsorID            Field = "sponsorId"
	FieldSponsorshipStartDate Field = "sponsorshipStartDate"
	FieldGraduationDate       Field = "graduationDate"
	FieldIsActive             Field = "isActive"
	FieldIsSponsored          Field = "isSponsored"
	FieldIsBoarding           Field = "isBoarding"
	FieldNotes                Field = "notes"
)

// FieldKind selects the coercion and comparison rules for a field.
type FieldKind string

const (
	KindText FieldKind = "text"
	KindDate FieldKind = "date"
	KindBool FieldKind = "boolean"
)

// FieldSpec describes one importable student field.
type FieldSpec struct {
	Name  Field     `json:"name"`
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`
	// Keys are normalized (lowercase, no separators) fragments used by the
	// column auto-matcher. The first key is always the normalized field name.
	Keys []string `json:"-"`
}

// StudentFields is the ordered target field list. Order matters: within each
// matching pass the column auto-matcher takes the first field whose keys match.
var StudentFields = []FieldSpec{
	{Name: FieldStudentID, Label: "Student ID", Kind: KindText, Keys: []string{"studentid", "studentno", "studentnumber"}},
	{Name: FieldFirstName, Label: "First Name", Kind: KindText, Keys: []string{"firstname", "givenname", "fname"}},
	{Name: FieldLastName, Label: "Last Name", Kind: KindText, Keys: []string{"lastname", "surname", "familyname", "lname"}},
	{Name: FieldDateOfBirth, Label: "Date of Birth", Kind: KindDate, Keys: []string{"dateofbirth", "dob", "birthdate", "birthday"}},
	{Name: FieldGender, Label: "Gender", Kind: KindText, Keys: []string{"gender", "sex"}},
	{Name: FieldEnrollmentDate, Label: "Enrollment Date", Kind: KindDate, Keys: []string{"enrollmentdate", "enrolled", "enrolment", "enrollment"}},
	{Name: FieldSchool, Label: "School", Kind: KindText, Keys: []string{"school"}},
	{Name: FieldGrade, Label: "Grade", Kind: KindText, Keys: []string{"grade", "class", "form"}},
	{Name: FieldLocation, Label: "Location", Kind: KindText, Keys: []string{"location", "village", "region", "district"}},
	{Name: FieldGuardianPhone, Label: "Guardian Phone", Kind: KindText, Keys: []string{"guardianphone", "phone", "mobile", "telephone", "contact"}},
	{Name: FieldGuardianName, Label: "Guardian Name", Kind: KindText, Keys: []string{"guardianname", "guardian", "parentname", "parent"}},
	{Name: FieldSponsorID, Label: "Sponsor ID", Kind: KindText, Keys: []string{"sponsorid", "sponsor"}},
	{Name: FieldSponsorshipStartDate, Label: "Sponsorship Start Date", Kind: KindDate, Keys: []string{"sponsorshipstartdate", "sponsorshipstart", "sponsorstart"}},
	{Name: FieldGraduationDate, Label: "Graduation Date", Kind: KindDate, Keys: []string{"graduationdate", "graduation", "graduated"}},
	{Name: FieldIsActive, Label: "Active", Kind: KindBool, Keys: []string{"isactive", "active"}},
	{Name: FieldIsSponsored, Label: "Sponsored", Kind: KindBool, Keys: []string{"issponsored", "sponsored"}},
	{Name: FieldIsBoarding, Label: "Boarding", Kind: KindBool, Keys: []string{"isboarding", "boarding", "boarder"}},
	{Name: FieldNotes, Label: "Notes", Kind: KindText, Keys: []string{"notes", "comment", "remarks"}},
}

// IdentifierField is the primary key used to match imported rows against
// existing records.
const IdentifierField = FieldStudentID

// RequiredForNew lists the fields a row must carry to create a new student.
// Existing students are exempt.
var RequiredForNew = []Field{FieldStudentID, FieldFirstName, FieldLastName}

var fieldIndex = func() map[Field]FieldSpec {
	m := make(map[Field]FieldSpec, len(StudentFields))
	for _, f := range StudentFields {
		m[f.Name] = f
	}
	return m
}()

// LookupField returns the spec for a field name.
func LookupField(name Field) (FieldSpec, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// KindOf returns the kind of a field; unknown fields are treated as text.
func KindOf(name Field) FieldKind {
	if f, ok := fieldIndex[name]; ok {
		return f.Kind
	}
	return KindText
}

// LabelOf returns the human readable label of a field.
func LabelOf(name Field) string {
	if f, ok := fieldIndex[name]; ok {
		return f.Label
	}
	return string(name)
}

// StudentSummary is the lightweight lookup row: identifier plus the fields
// needed to render a display name.
type StudentSummary struct {
	StudentID string `json:"studentId" db:"student_id"`
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`
}

// DisplayName renders "First Last", falling back to the identifier.
func (s StudentSummary) DisplayName() string {
	return DisplayName(s.FirstName, s.LastName, s.StudentID)
}

// DisplayName joins first and last name, or returns fallback when both are blank.
func DisplayName(first, last, fallback string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return fallback
	}
	return name
}

// Student is the full student record as returned by the backend.
// Dates are YYYY-MM-DD strings (the backend may also send RFC 3339 timestamps).
type Student struct {
	StudentID            string  `json:"studentId" db:"student_id"`
	FirstName            string  `json:"firstName" db:"first_name"`
	LastName             string  `json:"lastName" db:"last_name"`
	DateOfBirth          *string `json:"dateOfBirth" db:"date_of_birth"`
	Gender               string  `json:"gender" db:"gender"`
	EnrollmentDate       *string `json:"enrollmentDate" db:"enrollment_date"`
	School               string  `json:"school" db:"school"`
	Grade                string  `json:"grade" db:"grade"`
	Location             string  `json:"location" db:"location"`
	GuardianName         string  `json:"guardianName" db:"guardian_name"`
	GuardianPhone        string  `json:"guardianPhone" db:"guardian_phone"`
	SponsorID            string  `json:"sponsorId" db:"sponsor_id"`
	SponsorshipStartDate *string `json:"sponsorshipStartDate" db:"sponsorship_start_date"`
	GraduationDate       *string `json:"graduationDate" db:"graduation_date"`
	IsActive             *bool   `json:"isActive" db:"is_active"`
	IsSponsored          *bool   `json:"isSponsored" db:"is_sponsored"`
	IsBoarding           *bool   `json:"isBoarding" db:"is_boarding"`
	Notes                string  `json:"notes" db:"notes"`
}

// DisplayName renders the student's name for review screens.
func (s Student) DisplayName() string {
	return DisplayName(s.FirstName, s.LastName, s.StudentID)
}

// Get returns the value of a field: a string, a bool, or nil when unset.
func (s Student) Get(f Field) any {
	switch f {
	case FieldStudentID:
		return s.StudentID
	case FieldFirstName:
		return s.FirstName
	case FieldLastName:
		return s.LastName
	case FieldDateOfBirth:
		return derefString(s.DateOfBirth)
	case FieldGender:
		return s.Gender
	case FieldEnrollmentDate:
		return derefString(s.EnrollmentDate)
	case FieldSchool:
		return s.School
	case FieldGrade:
		return s.Grade
	case FieldLocation:
		return s.Location
	case FieldGuardianName:
		return s.GuardianName
	case FieldGuardianPhone:
		return s.GuardianPhone
	case FieldSponsorID:
		return s.SponsorID
	case FieldSponsorshipStartDate:
		return derefString(s.SponsorshipStartDate)
	case FieldGraduationDate:
		return derefString(s.GraduationDate)
	case FieldIsActive:
		return derefBool(s.IsActive)
	case FieldIsSponsored:
		return derefBool(s.IsSponsored)
	case FieldIsBoarding:
		return derefBool(s.IsBoarding)
	case FieldNotes:
		return s.Notes
	}
	return nil
}

func derefString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

package importer

import (
	"fmt"

	"github.com/ignite/eep-importer/internal/domain"
)

// Selection records which changes the operator approved. Every change
// starts approved. It is not safe for concurrent use; Session guards it.
type Selection struct {
	checked map[string]map[domain.Field]bool
}

// NewSelection approves every change in diffs.
func NewSelection(diffs []RecordDiff) *Selection {
	s := &Selection{checked: make(map[string]map[domain.Field]bool, len(diffs))}
	for _, d := range diffs {
		fields := make(map[domain.Field]bool, len(d.Changes))
		for _, c := range d.Changes {
			fields[c.Field] = true
		}
		s.checked[d.StudentID] = fields
	}
	return s
}

// Toggle sets one field of one record.
func (s *Selection) Toggle(studentID string, f domain.Field, checked bool) error {
	fields, ok := s.checked[studentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSelection, studentID)
	}
	if _, ok := fields[f]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownSelection, studentID, f)
	}
	fields[f] = checked
	return nil
}

// SetAll forces every field of one record to checked.
func (s *Selection) SetAll(studentID string, checked bool) error {
	fields, ok := s.checked[studentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSelection, studentID)
	}
	for f := range fields {
		fields[f] = checked
	}
	return nil
}

// AllSelected is true only when every field of the record is checked.
func (s *Selection) AllSelected(studentID string) bool {
	fields, ok := s.checked[studentID]
	if !ok || len(fields) == 0 {
		return false
	}
	for _, v := range fields {
		if !v {
			return false
		}
	}
	return true
}

// IsSelected reports whether one change is approved.
func (s *Selection) IsSelected(studentID string, f domain.Field) bool {
	return s.checked[studentID][f]
}

// Snapshot copies the current state for rendering.
func (s *Selection) Snapshot() map[string]map[domain.Field]bool {
	out := make(map[string]map[domain.Field]bool, len(s.checked))
	for id, fields := range s.checked {
		cp := make(map[domain.Field]bool, len(fields))
		for f, v := range fields {
			cp[f] = v
		}
		out[id] = cp
	}
	return out
}

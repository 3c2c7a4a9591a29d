package importer

import (
	"github.com/ignite/eep-importer/internal/domain"
)

// View is a read-only snapshot of a session for rendering.
type View struct {
	ID         string               `json:"id"`
	Step       Step                 `json:"step"`
	Processing bool                 `json:"processing"`
	File       *ParsedFile          `json:"file,omitempty"`
	RowCount   int                  `json:"rowCount"`
	Preview    []RawRow             `json:"preview,omitempty"`
	Mapping    FieldMapping         `json:"mapping,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
	Issues     []ValidationIssue    `json:"issues"`
	Validation *ValidationView      `json:"validation,omitempty"`
	Review     *ReviewView          `json:"review,omitempty"`
	Result     *domain.ImportResult `json:"result,omitempty"`
}

// ValidationView summarizes the validation step.
type ValidationView struct {
	ValidCount    int `json:"validCount"`
	NewCount      int `json:"newCount"`
	ExistingCount int `json:"existingCount"`
}

// ReviewView lists what a commit would send.
type ReviewView struct {
	New       []MappedRecord `json:"new"`
	Diffs     []DiffView     `json:"diffs"`
	Unchanged int            `json:"unchanged"`
}

// DiffView is a RecordDiff with its approval state.
type DiffView struct {
	RecordDiff
	AllSelected bool                  `json:"allSelected"`
	Selected    map[domain.Field]bool `json:"selected"`
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		ID:         s.id,
		Step:       s.step,
		Processing: s.processing.Load(),
		File:       s.file,
		Mapping:    s.mapping,
		Warnings:   append([]string(nil), s.warnings...),
		Issues:     []ValidationIssue{},
		Result:     s.result,
	}
	if s.file != nil {
		v.RowCount = len(s.file.Rows)
		n := min(previewRows, len(s.file.Rows))
		v.Preview = s.file.Rows[:n]
		v.Warnings = append(v.Warnings, s.file.Warnings...)
	}

	switch s.step {
	case StepValidate, StepReview, StepComplete:
		v.Issues = append(v.Issues, s.validation.Issues...)
		v.Validation = &ValidationView{
			ValidCount:    len(s.validation.Valid),
			NewCount:      s.validation.NewCount(),
			ExistingCount: s.validation.ExistingCount(),
		}
	}

	if s.step == StepReview || s.step == StepComplete {
		v.Issues = append(v.Issues, s.diff.Issues...)
		rv := &ReviewView{New: s.diff.New, Diffs: make([]DiffView, 0, len(s.diff.Diffs)), Unchanged: s.diff.Unchanged}
		var snap map[string]map[domain.Field]bool
		if s.selection != nil {
			snap = s.selection.Snapshot()
		}
		for _, d := range s.diff.Diffs {
			rv.Diffs = append(rv.Diffs, DiffView{
				RecordDiff:  d,
				AllSelected: s.selection != nil && s.selection.AllSelected(d.StudentID),
				Selected:    snap[d.StudentID],
			})
		}
		v.Review = rv
	}
	return v
}

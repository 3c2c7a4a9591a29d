package importer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/eep-importer/internal/domain"
)

// Step is a workflow state.
type Step string

const (
	StepUpload   Step = "upload"
	StepMap      Step = "map"
	StepValidate Step = "validate"
	StepReview   Step = "review"
	StepComplete Step = "complete"
)

// previewRows is how many parsed rows the session view echoes back.
const previewRows = 5

// Options configures a Session.
type Options struct {
	MaxFileBytes int64
	Payload      PayloadOptions
	// NewCommitLock returns a fresh lock for each commit. Nil disables
	// commit serialization.
	NewCommitLock func() Lock
	// OnComplete runs once after a commit, outside the session lock.
	OnComplete func(ctx context.Context, s Summary)
	Now        func() time.Time
}

// Summary describes a finished import for post-commit hooks.
type Summary struct {
	SessionID   string
	FileName    string
	ContentType string
	Source      []byte
	Created     int
	Updated     int
	Result      domain.ImportResult
	CompletedAt time.Time
}

// Session is one operator's import, from upload to commit. Methods are safe
// for concurrent use; operations that change state are single-flight and
// a second one started while the first runs fails with ErrBusy.
type Session struct {
	id      string
	backend Backend
	opts    Options

	processing atomic.Bool

	mu          sync.RWMutex
	step        Step
	lastActive  time.Time
	source      []byte
	contentType string
	file        *ParsedFile
	mapping     FieldMapping
	warnings    []string
	validation  ValidationResult
	diff        DiffResult
	selection   *Selection
	payload     domain.BulkImportPayload
	result      *domain.ImportResult
}

// NewSession starts a session at the upload step.
func NewSession(id string, backend Backend, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Payload.Now == nil {
		opts.Payload.Now = opts.Now
	}
	return &Session{
		id:         id,
		backend:    backend,
		opts:       opts,
		step:       StepUpload,
		lastActive: opts.Now(),
	}
}

func (s *Session) ID() string { return s.id }

// Step returns the current workflow state.
func (s *Session) Step() Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// LastActive is the time of the last state-changing call.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// begin claims the processing flag and checks the step. The returned func
// releases the flag.
func (s *Session) begin(allowed ...Step) (func(), error) {
	if !s.processing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	s.mu.Lock()
	step := s.step
	s.lastActive = s.opts.Now()
	s.mu.Unlock()
	for _, a := range allowed {
		if step == a {
			return func() { s.processing.Store(false) }, nil
		}
	}
	s.processing.Store(false)
	return nil, fmt.Errorf("%w: import is at %s", ErrInvalidStep, step)
}

// Upload parses a file and moves to the mapping step with suggested column
// targets. On error nothing changes.
func (s *Session) Upload(name, contentType string, data []byte) error {
	done, err := s.begin(StepUpload)
	if err != nil {
		return err
	}
	defer done()

	pf, err := Parse(name, contentType, data, s.opts.MaxFileBytes)
	if err != nil {
		return err
	}
	mapping := SuggestMapping(pf.Columns)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = pf
	s.source = data
	s.contentType = contentType
	s.mapping = mapping
	s.warnings = mapping.Warnings(pf.Columns)
	s.step = StepMap
	return nil
}

// SetMapping overrides the target of some columns.
func (s *Session) SetMapping(overrides map[string]domain.Field) error {
	done, err := s.begin(StepMap)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.mapping.Apply(s.file.Columns, overrides)
	if err != nil {
		return err
	}
	s.mapping = m
	s.warnings = m.Warnings(s.file.Columns)
	return nil
}

// ConfirmMapping fetches the lookup summaries, normalizes and validates
// every row, and moves to the validation step. Identifiers missing from the
// lookup are checked with one batch fetch so a stale list never turns an
// existing student into a new one.
func (s *Session) ConfirmMapping(ctx context.Context) error {
	done, err := s.begin(StepMap)
	if err != nil {
		return err
	}
	defer done()

	s.mu.RLock()
	mapping, file := s.mapping, s.file
	s.mu.RUnlock()
	if !mapping.MapsIdentifier() {
		return ErrIdentifierUnmapped
	}

	lookup, err := s.backend.LookupStudents(ctx)
	if err != nil {
		return fmt.Errorf("%w: lookup students: %w", ErrBackend, err)
	}
	records := Transform(file.Columns, file.Rows, mapping)

	// The lookup list may be served from a cache that predates students
	// added elsewhere. Unlisted identifiers are confirmed against the full
	// records before they are treated as new.
	if ids := UnlistedIDs(records, lookup); len(ids) > 0 {
		found, err := s.backend.FetchStudents(ctx, ids)
		if err != nil {
			return fmt.Errorf("%w: fetch students: %w", ErrBackend, err)
		}
		lookup = slices.Clip(lookup)
		for _, st := range found {
			lookup = append(lookup, domain.StudentSummary{StudentID: st.StudentID, FirstName: st.FirstName, LastName: st.LastName})
		}
	}
	res := Validate(records, lookup)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.validation = res
	s.step = StepValidate
	return nil
}

// Proceed batch-fetches the existing records among the valid rows, computes
// field diffs, approves every change and moves to review.
func (s *Session) Proceed(ctx context.Context) error {
	done, err := s.begin(StepValidate)
	if err != nil {
		return err
	}
	defer done()

	s.mu.RLock()
	valid := s.validation.Valid
	s.mu.RUnlock()

	var existing []domain.Student
	if ids := ExistingIDs(valid); len(ids) > 0 {
		existing, err = s.backend.FetchStudents(ctx, ids)
		if err != nil {
			return fmt.Errorf("%w: fetch students: %w", ErrBackend, err)
		}
	}
	diff := ComputeDiffs(valid, existing)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.diff = diff
	s.selection = NewSelection(diff.Diffs)
	s.step = StepReview
	return nil
}

// Toggle approves or rejects one field change.
func (s *Session) Toggle(studentID string, f domain.Field, checked bool) error {
	done, err := s.begin(StepReview)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Toggle(studentID, f, checked)
}

// SetAll approves or rejects every change of one student.
func (s *Session) SetAll(studentID string, checked bool) error {
	done, err := s.begin(StepReview)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.SetAll(studentID, checked)
}

// Commit submits new students and approved changes in one backend call and
// completes the session. An empty payload returns ErrNothingToImport and a
// held commit lock returns ErrCommitInProgress; both leave the session in
// review. A failed backend call still completes the session with every row
// reported as skipped.
func (s *Session) Commit(ctx context.Context) (domain.ImportResult, error) {
	done, err := s.begin(StepReview)
	if err != nil {
		return domain.ImportResult{}, err
	}
	defer done()

	s.mu.RLock()
	payload := BuildPayload(s.diff.New, s.diff.Diffs, s.selection, s.opts.Payload)
	s.mu.RUnlock()
	if payload.Len() == 0 {
		return domain.ImportResult{}, ErrNothingToImport
	}

	if s.opts.NewCommitLock != nil {
		lock := s.opts.NewCommitLock()
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return domain.ImportResult{}, fmt.Errorf("acquire commit lock: %w", err)
		}
		if !acquired {
			return domain.ImportResult{}, ErrCommitInProgress
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	result, err := Submit(ctx, s.backend, payload)
	if err != nil {
		return domain.ImportResult{}, err
	}

	s.mu.Lock()
	s.payload = payload
	s.result = &result
	s.step = StepComplete
	summary := Summary{
		SessionID:   s.id,
		FileName:    s.file.Name,
		ContentType: s.contentType,
		Source:      s.source,
		Created:     len(payload.Create),
		Updated:     len(payload.Update),
		Result:      result,
		CompletedAt: s.opts.Now(),
	}
	s.mu.Unlock()

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(ctx, summary)
	}
	return result, nil
}

// Back returns to the previous step: map and validate go back to upload and
// drop the file, review goes back to validate and drops the diffs.
func (s *Session) Back() error {
	done, err := s.begin(StepMap, StepValidate, StepReview)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.step {
	case StepMap, StepValidate:
		s.file = nil
		s.source = nil
		s.contentType = ""
		s.mapping = nil
		s.warnings = nil
		s.validation = ValidationResult{}
		s.step = StepUpload
	case StepReview:
		s.diff = DiffResult{}
		s.selection = nil
		s.step = StepValidate
	}
	return nil
}

package importer

import (
	"context"

	"github.com/ignite/eep-importer/internal/domain"
)

// LookupSource lists every known student as identifier plus name.
type LookupSource interface {
	LookupStudents(ctx context.Context) ([]domain.StudentSummary, error)
}

// RecordFetcher loads full records for the given identifiers in one call.
// Unknown identifiers are left out of the result.
type RecordFetcher interface {
	FetchStudents(ctx context.Context, ids []string) ([]domain.Student, error)
}

// Committer submits the combined create/update payload.
type Committer interface {
	BulkImport(ctx context.Context, payload domain.BulkImportPayload) (domain.ImportResult, error)
}

// Backend is the full set of collaborator calls a session makes.
type Backend interface {
	LookupSource
	RecordFetcher
	Committer
}

// Lock serializes commits across sessions and processes.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

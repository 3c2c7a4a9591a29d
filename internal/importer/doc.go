// Package importer implements the student spreadsheet import workflow:
// ingest a tabular file, map its columns to student fields, normalize and
// validate rows, diff them against the records the backend already holds,
// let the operator approve field-level updates, and commit one bulk
// create/update payload.
//
// The pure stages (Parse, SuggestMapping, Transform, Validate, ComputeDiffs,
// BuildPayload) have no I/O and are driven by Session, which owns the step
// state machine and talks to the backend through the LookupSource,
// RecordFetcher and Committer interfaces.
//
// Rules for this package:
//   - No HTTP or SQL. Backends are injected.
//   - Stages never mutate their inputs.
//   - Row numbers are 1-based sheet rows: the header is row 1, so the first
//     data row is row 2.
package importer

package importer

import "errors"

// Ingestion errors. The session stays at the upload step.
var (
	ErrUnsupportedFile   = errors.New("unsupported file type: expected .xlsx, .xls or .csv")
	ErrParserUnavailable = errors.New("no parser available for file type")
	ErrEmptyFile         = errors.New("file is empty")
	ErrFileTooLarge      = errors.New("file exceeds the maximum upload size")
	ErrEmptyWorkbook     = errors.New("workbook contains no sheets")
	ErrUnreadableSheet   = errors.New("first sheet could not be read")
	ErrEmptyHeader       = errors.New("first row is empty: expected column headers")
)

// Mapping errors.
var (
	ErrUnknownColumn      = errors.New("unknown column")
	ErrUnknownField       = errors.New("unknown student field")
	ErrIdentifierUnmapped = errors.New("no column is mapped to Student ID")
)

// Workflow errors.
var (
	ErrInvalidStep      = errors.New("action not allowed at the current step")
	ErrBusy             = errors.New("another operation is in progress for this import")
	ErrNothingToImport  = errors.New("nothing to import: no new students and no selected changes")
	ErrCommitInProgress = errors.New("another import is being committed, try again shortly")
	ErrUnknownSelection = errors.New("no pending change for that student or field")
	ErrBackend          = errors.New("backend request failed")
)

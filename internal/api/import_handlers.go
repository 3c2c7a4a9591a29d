package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/eep-importer/internal/domain"
	"github.com/ignite/eep-importer/internal/importer"
	"github.com/ignite/eep-importer/internal/pkg/httputil"
	"github.com/ignite/eep-importer/internal/pkg/logger"
)

// =============================================================================
// IMPORT HANDLERS
// =============================================================================
// HTTP front end for the import workflow: one session per upload, driven
// step by step (map, validate, review, commit) by the dashboard.

// multipartOverhead is the allowance for form boundaries and headers on top
// of the file size limit.
const multipartOverhead = 1 << 20

// ImportHandlers serves the /api/imports routes.
type ImportHandlers struct {
	store    *SessionStore
	maxBytes int64
}

// NewImportHandlers creates the handlers. maxBytes limits uploaded files.
func NewImportHandlers(store *SessionStore, maxBytes int64) *ImportHandlers {
	return &ImportHandlers{store: store, maxBytes: maxBytes}
}

// RegisterRoutes registers the import routes
func (h *ImportHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Get("/fields", h.HandleGetFields)
		r.Post("/", h.HandleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Put("/file", h.HandleUpload)
			r.Put("/mapping", h.HandleSetMapping)
			r.Post("/validate", h.HandleValidate)
			r.Post("/review", h.HandleReview)
			r.Put("/selection", h.HandleSelection)
			r.Post("/commit", h.HandleCommit)
			r.Post("/back", h.HandleBack)
		})
	})
}

// =============================================================================
// FIELD CATALOG
// =============================================================================

// HandleGetFields returns the student fields columns can be mapped to.
// GET /api/imports/fields
func (h *ImportHandlers) HandleGetFields(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"fields":           domain.StudentFields,
		"identifier":       domain.IdentifierField,
		"required_for_new": domain.RequiredForNew,
		"ignore":           importer.Ignore,
	})
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// HandleCreate opens a session from an uploaded file. A file that cannot be
// parsed leaves no session behind.
// POST /api/imports (multipart, field "file")
func (h *ImportHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	name, contentType, data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess := h.store.Create()
	if err := sess.Upload(name, contentType, data); err != nil {
		h.store.Delete(sess.ID())
		h.writeError(w, err)
		return
	}
	logger.Info("import session opened",
		"component", "imports",
		"session_id", sess.ID(),
		"file_name", name,
		"bytes", len(data))
	httputil.Created(w, sess.View())
}

// HandleUpload replaces the file of a session that went back to upload.
// PUT /api/imports/{id}/file
func (h *ImportHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	name, contentType, data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.Upload(name, contentType, data); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, sess.View())
}

// HandleGet returns the session view.
// GET /api/imports/{id}
func (h *ImportHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.OK(w, sess.View())
}

// HandleDelete closes a session without importing.
// DELETE /api/imports/{id}
func (h *ImportHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.store.Delete(chi.URLParam(r, "id")) {
		httputil.NotFound(w, "import session not found")
		return
	}
	httputil.NoContent(w)
}

// =============================================================================
// WORKFLOW STEPS
// =============================================================================

// HandleSetMapping overrides column targets.
// PUT /api/imports/{id}/mapping  {"Column":"field"|"ignore"}
func (h *ImportHandlers) HandleSetMapping(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req map[string]domain.Field
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := sess.SetMapping(req); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, sess.View())
}

// HandleValidate confirms the mapping and validates every row.
// POST /api/imports/{id}/validate
func (h *ImportHandlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.ConfirmMapping(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, sess.View())
}

// HandleReview loads existing records and computes the diffs.
// POST /api/imports/{id}/review
func (h *ImportHandlers) HandleReview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Proceed(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, sess.View())
}

// SelectionRequest approves or rejects changes. An empty field applies to
// every change of the student.
type SelectionRequest struct {
	StudentID string       `json:"studentId"`
	Field     domain.Field `json:"field"`
	Checked   bool         `json:"checked"`
}

// HandleSelection updates the approval of one change or one student.
// PUT /api/imports/{id}/selection
func (h *ImportHandlers) HandleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StudentID == "" {
		httputil.BadRequest(w, "studentId is required")
		return
	}

	var err error
	if req.Field == "" {
		err = sess.SetAll(req.StudentID, req.Checked)
	} else {
		err = sess.Toggle(req.StudentID, req.Field, req.Checked)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, sess.View())
}

// HandleCommit submits the import. The finished session is returned once
// and then closed.
// POST /api/imports/{id}/commit
func (h *ImportHandlers) HandleCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := sess.Commit(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := sess.View()
	h.store.Delete(sess.ID())

	logger.Info("import committed",
		"component", "imports",
		"session_id", sess.ID(),
		"created", result.CreatedCount,
		"updated", result.UpdatedCount,
		"skipped", result.SkippedCount)
	httputil.OK(w, view)
}

// HandleBack returns to the previous step.
// POST /api/imports/{id}/back
func (h *ImportHandlers) HandleBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Back(); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, sess.View())
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *ImportHandlers) session(w http.ResponseWriter, r *http.Request) (*importer.Session, bool) {
	sess, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		httputil.NotFound(w, "import session not found")
	}
	return sess, ok
}

// readUpload reads the multipart "file" field, enforcing the size limit.
func (h *ImportHandlers) readUpload(w http.ResponseWriter, r *http.Request) (string, string, []byte, error) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", nil, importer.ErrFileTooLarge
		}
		return "", "", nil, errBadUpload
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, errBadUpload
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", "", nil, errBadUpload
	}
	return header.Filename, header.Header.Get("Content-Type"), data, nil
}

var errBadUpload = errors.New(`expected a multipart form with a "file" field`)

// writeError maps workflow errors to HTTP statuses.
func (h *ImportHandlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, importer.ErrInvalidStep):
		httputil.ErrorWithCode(w, http.StatusConflict, "invalid_step", err.Error())
	case errors.Is(err, importer.ErrBusy):
		httputil.ErrorWithCode(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, importer.ErrCommitInProgress):
		httputil.ErrorWithCode(w, http.StatusConflict, "commit_in_progress", err.Error())
	case errors.Is(err, importer.ErrNothingToImport):
		httputil.ErrorWithCode(w, http.StatusUnprocessableEntity, "nothing_to_import", err.Error())
	case errors.Is(err, importer.ErrBackend):
		httputil.BadGateway(w, "student backend unavailable, try again", err)
	case isClientError(err):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

var clientErrors = []error{
	errBadUpload,
	importer.ErrUnsupportedFile,
	importer.ErrParserUnavailable,
	importer.ErrEmptyFile,
	importer.ErrFileTooLarge,
	importer.ErrEmptyWorkbook,
	importer.ErrUnreadableSheet,
	importer.ErrEmptyHeader,
	importer.ErrUnknownColumn,
	importer.ErrUnknownField,
	importer.ErrIdentifierUnmapped,
	importer.ErrUnknownSelection,
}

func isClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

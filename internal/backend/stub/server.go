// Package stub serves the student backend REST API from any importer
// backend, so the import service can run locally against PostgreSQL.
package stub

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/eep-importer/internal/domain"
	"github.com/ignite/eep-importer/internal/importer"
	"github.com/ignite/eep-importer/internal/pkg/httputil"
)

// maxBatchIDs caps one batch fetch.
const maxBatchIDs = 5000

// Server exposes a backend over HTTP.
type Server struct {
	backend importer.Backend
	token   string
}

// NewRouter builds the stub API. A non-empty token is required as a bearer
// token on every /students route.
func NewRouter(backend importer.Backend, token string) *chi.Mux {
	s := &Server{backend: backend, token: token}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "eep-stub-api")
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "healthy", "service": "eep-stub-api"})
	})

	r.Route("/students", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/lookup", s.handleLookup)
		r.Post("/batch", s.handleBatch)
		r.Post("/bulk-import", s.handleBulkImport)
	})
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// GET /students/lookup
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	list, err := s.backend.LookupStudents(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []domain.StudentSummary{}
	}
	httputil.OK(w, list)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

// POST /students/batch
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.IDs) > maxBatchIDs {
		httputil.BadRequest(w, "too many ids in one batch")
		return
	}
	students, err := s.backend.FetchStudents(r.Context(), req.IDs)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if students == nil {
		students = []domain.Student{}
	}
	httputil.OK(w, students)
}

// POST /students/bulk-import
func (s *Server) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	var payload domain.BulkImportPayload
	if !httputil.Decode(w, r, &payload) {
		return
	}
	res, err := s.backend.BulkImport(r.Context(), payload)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

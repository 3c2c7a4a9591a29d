package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/eep-importer/internal/config"
	"github.com/ignite/eep-importer/internal/domain"
	"github.com/ignite/eep-importer/internal/pkg/httpretry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.BackendConfig{
		BaseURL:        server.URL + "/",
		Token:          "secret-token",
		TimeoutSeconds: 5,
		MaxRetries:     -1,
	})
}

func TestLookupStudents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/students/lookup", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"studentId":"EEP-1","firstName":"Amina","lastName":"Otieno"}]`))
	})

	list, err := client.LookupStudents(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Amina Otieno", list[0].DisplayName())
}

func TestFetchStudents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/students/batch", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"EEP-1", "EEP-2"}, body.IDs)

		w.Write([]byte(`[{"studentId":"EEP-1","firstName":"Amina","dateOfBirth":"2011-04-02T00:00:00Z","isActive":true,"isBoarding":null}]`))
	})

	students, err := client.FetchStudents(context.Background(), []string{"EEP-1", "EEP-2"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	s := students[0]
	assert.Equal(t, "2011-04-02T00:00:00Z", s.Get(domain.FieldDateOfBirth))
	assert.Equal(t, true, s.Get(domain.FieldIsActive))
	assert.Nil(t, s.Get(domain.FieldIsBoarding))
}

func TestFetchStudents_NoIDsSkipsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	students, err := client.FetchStudents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestBulkImport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/students/bulk-import", r.URL.Path)

		var body map[string][]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["create"], 1)
		assert.NotNil(t, body["update"], "update is sent as an empty list")
		assert.Equal(t, "EEP-9", body["create"][0]["studentId"])
		assert.Contains(t, body["create"][0], "notes")
		assert.Nil(t, body["create"][0]["notes"])

		w.Write([]byte(`{"createdCount":1,"updatedCount":0,"skippedCount":0,"errors":[]}`))
	})

	res, err := client.BulkImport(context.Background(), domain.BulkImportPayload{
		Create: []domain.StudentPatch{{domain.FieldStudentID: "EEP-9", domain.FieldNotes: nil}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Empty(t, res.Errors)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error field", http.StatusForbidden, `{"error":"not allowed"}`, "not allowed"},
		{"json message field", http.StatusBadRequest, `{"message":"bad ids"}`, "bad ids"},
		{"plain text", http.StatusInternalServerError, "boom\n", "boom"},
		{"empty body", http.StatusNotFound, "", "404 Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.LookupStudents(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	})
	_, err := client.LookupStudents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestNoTokenNoAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(config.BackendConfig{BaseURL: server.URL, MaxRetries: -1})
	list, err := client.LookupStudents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

// flakyGateway answers 502 to the first request on each path, then 200.
func flakyGateway(calls map[string]*atomic.Int32, bodies map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls[r.URL.Path].Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"bad gateway"}`))
			return
		}
		w.Write([]byte(bodies[r.URL.Path]))
	}
}

func TestBulkImport_NotRetried(t *testing.T) {
	calls := map[string]*atomic.Int32{
		"/students/lookup":      new(atomic.Int32),
		"/students/bulk-import": new(atomic.Int32),
	}
	bodies := map[string]string{
		"/students/lookup":      `[]`,
		"/students/bulk-import": `{"createdCount":0,"updatedCount":0,"skippedCount":1,"errors":["Key (student_id)=(EEP-9) already exists."]}`,
	}
	server := httptest.NewServer(flakyGateway(calls, bodies))
	defer server.Close()

	client := NewClient(config.BackendConfig{BaseURL: server.URL, TimeoutSeconds: 5, MaxRetries: 3})
	client.SetHTTPClient(httpretry.NewRetryClient(&http.Client{Timeout: 5 * time.Second}, 3,
		httpretry.WithBackoff(time.Millisecond, 5*time.Millisecond)))

	// reads still retry through a transient gateway error
	_, err := client.LookupStudents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls["/students/lookup"].Load())

	_, err = client.BulkImport(context.Background(), domain.BulkImportPayload{
		Create: []domain.StudentPatch{{domain.FieldStudentID: "EEP-9"}},
	})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls["/students/bulk-import"].Load(), "bulk import is sent once")
}

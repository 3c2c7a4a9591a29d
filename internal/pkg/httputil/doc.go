// Package httputil provides the JSON response and request helpers shared by
// the import API handlers and the stub backend.
//
// Handlers use these instead of raw http.ResponseWriter calls so every
// endpoint returns the same error envelope and logs server errors the same
// way.
package httputil

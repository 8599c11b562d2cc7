package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nater540/yggdrasil/internal/logging"
)

func TestLoggingMiddlewarePropagatesRequestID(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	var seenID string
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.GetRequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seenID)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoggingMiddlewareGeneratesRequestID(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)

	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestResponseWriterDefaultsToOKOnWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.True(t, rw.written)
}

package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", seen)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := RequestID(AccessLog(&logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/groups/acme/insights/latest", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/groups/acme/insights/latest", entry["path"])
	assert.Equal(t, 404.0, entry["status"])
	assert.Equal(t, 7.0, entry["bytes"])
	assert.Equal(t, "10.0.0.1", entry["remote_addr"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestSentryMiddleware_WithoutSentry(t *testing.T) {
	handler := SentryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestSpanStatus(t *testing.T) {
	assert.Equal(t, "ok", spanStatus(http.StatusOK).String())
	assert.Equal(t, "not_found", spanStatus(http.StatusNotFound).String())
	assert.Equal(t, "invalid_argument", spanStatus(http.StatusBadRequest).String())
	assert.Equal(t, "unavailable", spanStatus(http.StatusServiceUnavailable).String())
	assert.Equal(t, "internal_error", spanStatus(http.StatusInternalServerError).String())
}

func TestRequestID_ReplacesUnusableHeader(t *testing.T) {
	for _, incoming := range []string{"has space", "line\nbreak", strings.Repeat("a", maxRequestIDLength+1)} {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, incoming)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, incoming, seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, incoming)
	}
}

func TestAccessLog_HealthAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	handler := AccessLog(&logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, buf.String())
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.Status())

	rec.WriteHeader(http.StatusServiceUnavailable)
	_, _ = rec.Write([]byte("down"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Status())
	assert.Equal(t, 4, rec.bytes)
}

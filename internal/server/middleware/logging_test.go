package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		handler      http.HandlerFunc
		name         string
		method       string
		path         string
		wantLevel    string
		wantStatus   int
		wantInLogTxt string
	}{
		{
			name:   "successful sync",
			method: http.MethodPost,
			path:   "/api/v1/sync",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"accepted":[]}`))
			},
			wantStatus:   http.StatusOK,
			wantLevel:    "level=INFO",
			wantInLogTxt: "bytes_written=15",
		},
		{
			name:   "client error",
			method: http.MethodPost,
			path:   "/api/v1/sync",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			wantStatus:   http.StatusBadRequest,
			wantLevel:    "level=WARN",
			wantInLogTxt: "status=400",
		},
		{
			name:   "server error",
			method: http.MethodGet,
			path:   "/api/v1/sync",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus:   http.StatusInternalServerError,
			wantLevel:    "level=ERROR",
			wantInLogTxt: "status=500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			handler := LoggingMiddleware(logger)(tt.handler)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			out := logs.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "path="+tt.path)
			assert.Contains(t, out, tt.wantInLogTxt)
		})
	}
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	handler := LoggingMiddleware(logger, "/api/v1/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Empty(t, logs.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil))
	assert.Contains(t, logs.String(), "HTTP request")
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.hijacked)
	assert.NotNil(t, rw.Unwrap())
}

package errors

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logLines decodes every JSON log line written to buf
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestErrorMiddleware_Handler(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		body        string
		wantStatus  int
		wantLevel   string
		wantBodyLog bool
	}{
		{
			name:       "success logs at info",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			body:       `{"level":"Region"}`,
			wantStatus: http.StatusOK,
			wantLevel:  "INFO",
		},
		{
			name:        "client error logs body at warn",
			handler:     func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			body:        `{"level":"State","respondent_id":"R-1"}`,
			wantStatus:  http.StatusBadRequest,
			wantLevel:   "WARN",
			wantBodyLog: true,
		},
		{
			name:       "panic recovered at error",
			handler:    func(w http.ResponseWriter, r *http.Request) { panic("boom") },
			wantStatus: http.StatusInternalServerError,
			wantLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/voteshare", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mw.Handler(tt.handler).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)

			var access map[string]interface{}
			for _, line := range logLines(t, &buf) {
				if line["msg"] == "http request" {
					access = line
				}
			}
			require.NotNil(t, access)
			assert.Equal(t, tt.wantLevel, access["level"])
			assert.Equal(t, float64(tt.wantStatus), access["status"])
			if tt.wantBodyLog {
				assert.Contains(t, access["request_body"], "[REDACTED]")
				assert.NotContains(t, access["request_body"], "R-1")
			} else {
				assert.NotContains(t, access, "request_body")
			}
		})
	}
}

func TestSanitizeRequestBody(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "respondent identifiers",
			input:    `{"respondent_id": "R-17", "phone": "98300", "level": "Region"}`,
			expected: `{"level":"Region","phone":"[REDACTED]","respondent_id":"[REDACTED]"}`,
		},
		{
			name:     "credentials",
			input:    `{"token": "abc", "label": "x"}`,
			expected: `{"label":"x","token":"[REDACTED]"}`,
		},
		{
			name:     "nothing sensitive",
			input:    `{"period": "L7D"}`,
			expected: `{"period":"L7D"}`,
		},
		{
			name:     "not json",
			input:    `level=Region`,
			expected: `level=Region`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeRequestBody(tt.input))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	h := NewErrorHandler(slog.New(slog.NewJSONHandler(&buf, nil)), false)

	w := httptest.NewRecorder()
	RecoveryMiddleware(h)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("index out of range")
	})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

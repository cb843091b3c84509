package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

func newTestHandler(includeStack bool) *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), includeStack)
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	type request struct {
		Level string `validate:"required,oneof=region district"`
	}
	validationErr := validator.New().Struct(request{Level: "state"})
	require.Error(t, validationErr)

	weight := domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodL7D}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantExt    map[string]interface{}
	}{
		{
			name:       "deadline exceeded",
			err:        fmt.Errorf("trend: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "api error",
			err:        ErrPayloadTooLarge,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   TypePayloadTooLarge,
			wantExt:    map[string]interface{}{"error_code": "PAYLOAD_TOO_LARGE"},
		},
		{
			name:       "missing field",
			err:        fmt.Errorf("vote share: %w", &voteshare.SchemaError{Field: "Vote", Err: voteshare.ErrMissingField}),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeSchema,
			wantExt:    map[string]interface{}{"field": "Vote"},
		},
		{
			name:       "missing weight",
			err:        &voteshare.SchemaError{Weight: &weight, Err: voteshare.ErrMissingWeight},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeSchema,
			wantExt:    map[string]interface{}{"weight": weight.String()},
		},
		{
			name:       "validator errors",
			err:        validationErr,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
		},
		{
			name:       "app not found",
			err:        NewNotFoundError("section"),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
			wantExt:    map[string]interface{}{"error_type": "NOT_FOUND"},
		},
		{
			name:       "app parsing",
			err:        NewParsingError("bad workbook", nil).WithContext("row", 12),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeDataCorrupted,
			wantExt:    map[string]interface{}{"row": 12},
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	h := newTestHandler(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/voteshare", nil)
			problem := h.ErrorToProblem(tt.err, r)

			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/v1/voteshare", problem.Instance)
			for k, v := range tt.wantExt {
				assert.Equal(t, v, problem.Extensions[k], k)
			}
		})
	}
}

func TestErrorHandler_HandleError(t *testing.T) {
	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestHandler(false).HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)
		assert.Equal(t, 0, w.Body.Len())
	})

	t.Run("renders problem json", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/trend", nil)
		newTestHandler(true).HandleError(w, r, &voteshare.SchemaError{Field: "Age", Err: voteshare.ErrMissingField})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, TypeSchema, body["type"])
		assert.Equal(t, "Age", body["field"])
		assert.Contains(t, body, "trace_id")
		assert.Contains(t, body, "stack")
	})
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestHandler(false).HandlePanic(w, r, "nil map")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "nil map")
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestHandler(false)

	w := httptest.NewRecorder()
	h.NotFound(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), TypeNotFound)

	w = httptest.NewRecorder()
	h.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/api/v1/voteshare", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "Method DELETE is not allowed")
}

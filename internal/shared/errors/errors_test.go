package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("error message includes cause", func(t *testing.T) {
		err := Internal("store failed", assert.AnError)
		assert.Contains(t, err.Error(), "store failed")
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("to response", func(t *testing.T) {
		resp := NotFound("payment").ToResponse()
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
		assert.Equal(t, "payment not found", resp.Error.Message)
	})
}

func TestFrom(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error passes through", Conflict("busy"), http.StatusConflict, "CONFLICT"},
		{"wrapped not found", fmt.Errorf("get: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped bad request", fmt.Errorf("%w: amount", ErrBadRequest), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"wrapped conflict", fmt.Errorf("%w: terminal", ErrConflict), http.StatusConflict, "CONFLICT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := From(tt.err)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

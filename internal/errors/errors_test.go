package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad payload")
	assert.Equal(t, "bad payload", err.Error())
}

func TestRenderSetsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/tasks/lot", nil)

	require.NoError(t, render.Render(w, r, ErrTaskConflict))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "TASK_IN_FLIGHT")
}

func TestInvalidRequestWithErrorCarriesCause(t *testing.T) {
	apiErr := InvalidRequestWithError(errors.New("unexpected EOF"))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "unexpected EOF", apiErr.Details)
}

func TestErrValidation(t *testing.T) {
	apiErr := ErrValidation("accounts", "must not be empty")
	details, ok := apiErr.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "accounts", details.Field)
}

package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"CapIot.relaysync/internal/models"
)

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, models.NewAPIError(models.ErrorCodeNotFound, "device not found", nil, http.StatusNotFound))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":"not_found","message":"device not found"}`, rec.Body.String())
}

func TestRespondWithJSONNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithJSON(rec, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

package utils_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-inventory/internal/models"
	"ms-inventory/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, utils.StatusFor(fmt.Errorf("tier x: %w", models.ErrNotFound)))
	assert.Equal(t, http.StatusGone, utils.StatusFor(models.ErrHandleExpired))
	assert.Equal(t, http.StatusConflict, utils.StatusFor(models.ErrInsufficientCapacity))
	assert.Equal(t, http.StatusUnprocessableEntity, utils.StatusFor(models.ErrPerUserLimitExceeded))
	assert.Equal(t, http.StatusInternalServerError, utils.StatusFor(errors.New("boom")))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.WriteError(rec, "Purchase failed", models.ErrSalesWindowClosed)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Purchase failed", resp.Message)
	assert.Equal(t, models.ErrSalesWindowClosed.Error(), resp.Error)
}

package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondNotFound(rec, ErrCodeUnknownBoard, "no such board")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeUnknownBoard, body.Error)
	assert.Equal(t, "no such board", body.Message)
}

package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := map[models.ErrorKind]int{
		models.KindInvalidConfig:        http.StatusBadRequest,
		models.KindInvalidNickname:      http.StatusBadRequest,
		models.KindRoomNotFound:         http.StatusNotFound,
		models.KindUnknownPlayer:        http.StatusNotFound,
		models.KindUnauthorized:         http.StatusForbidden,
		models.KindDuplicateNickname:    http.StatusConflict,
		models.KindRoomClosed:           http.StatusConflict,
		models.KindRoomFull:             http.StatusConflict,
		models.KindStaleSubmission:      http.StatusConflict,
		models.KindTransportUnavailable: http.StatusServiceUnavailable,
	}
	for kind, want := range tests {
		assert.Equal(t, want, StatusFor(kind), kind)
	}
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/ABCDEF", nil)

	rec := httptest.NewRecorder()
	WriteError(rec, req, fmt.Errorf("lookup: %w", models.NewError(models.KindRoomNotFound, "room ABCDEF not found")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RoomNotFound", body.Kind)
	assert.Equal(t, "room ABCDEF not found", body.Message)

	rec = httptest.NewRecorder()
	WriteError(rec, req, errors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestReadJSON(t *testing.T) {
	var v struct {
		Nickname string `json:"nickname"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nickname":"Ann"}`))
	require.NoError(t, ReadJSON(req, &v))
	assert.Equal(t, "Ann", v.Nickname)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nick":"Ann"}`))
	assert.ErrorIs(t, ReadJSON(req, &v), models.ErrInvalidConfig)
}

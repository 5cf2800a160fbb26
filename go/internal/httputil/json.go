package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response body")
	}
}

// ReadJSON decodes the request body into v, rejecting unknown fields.
func ReadJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.NewError(models.KindInvalidConfig, "invalid request body: %v", err)
	}
	return nil
}

func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Message: msg})
}

// WriteError maps typed errors to a status code. Anything untyped is an
// internal error and its text is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var merr *models.Error
	if !errors.As(err, &merr) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, StatusFor(merr.Kind), ErrorResponse{Kind: string(merr.Kind), Message: merr.Message})
}

func StatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidConfig, models.KindInvalidNickname:
		return http.StatusBadRequest
	case models.KindRoomNotFound, models.KindUnknownPlayer:
		return http.StatusNotFound
	case models.KindUnauthorized:
		return http.StatusForbidden
	case models.KindTransportUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

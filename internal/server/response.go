package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jakopako/leadsync/internal/api"
)

type apiError struct {
	Code    string              `json:"error"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Code: code, Message: message})
}

// writeBackendError maps errors of the backend client to responses.
func writeBackendError(w http.ResponseWriter, err error) {
	var (
		de *api.DuplicateError
		ve *api.ValidationError
		se *api.StatusError
	)
	switch {
	case errors.As(err, &de):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Code: "validation-failed", Message: ve.Message, Fields: ve.Fields})
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, api.ErrNoToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", api.ErrUnauthorized.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusBadGateway, "backend", se.Error())
	default:
		writeError(w, http.StatusBadGateway, "backend", err.Error())
	}
}

// sseWriter writes server-sent events.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) writeEvent(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return s.rc.Flush()
}

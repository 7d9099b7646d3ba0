package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
	"github.com/chriskuech/supplyside-sub001/internal/repository"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeFailure maps a catalog or repository error onto a status code.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var body errorBody
	body.Error = err.Error()

	var ve *model.ValidationError
	var uf *query.UnknownFieldError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		for _, fe := range ve.Errors {
			body.Fields = append(body.Fields, fieldError{Field: fe.Field, Message: fe.Message})
		}
	case errors.Is(err, model.ErrFieldNotFound), errors.As(err, &uf), errors.Is(err, model.ErrWrongValueKind),
		errors.Is(err, query.ErrUnsupportedComparison):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrDuplicateResource), errors.Is(err, model.ErrFieldInUse):
		status = http.StatusConflict
	case errors.Is(err, model.ErrSystemValue):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNoBlobStore):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

// decodeJSON decodes a request body into v, rejecting unknown keys.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// resourceType reads a record type from a path or query value.
func resourceType(w http.ResponseWriter, raw string) (model.ResourceType, bool) {
	rt := model.ResourceType(raw)
	if !rt.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown record type %q", raw))
		return "", false
	}
	return rt, true
}

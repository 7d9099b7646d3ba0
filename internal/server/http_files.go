package server

import (
	"io"
	"net/http"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// handleCreateCost handles POST /v1/tenants/{tenant}/resources/{id}/costs.
func (s *Server) handleCreateCost(w http.ResponseWriter, r *http.Request) {
	var draft model.CostDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.repo.CreateCost(r.Context(), scope(r), r.PathValue("id"), draft)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleUpdateCost handles PATCH /v1/tenants/{tenant}/costs/{id}.
func (s *Server) handleUpdateCost(w http.ResponseWriter, r *http.Request) {
	var patch model.CostPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.repo.UpdateCost(r.Context(), scope(r), r.PathValue("id"), patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteCost handles DELETE /v1/tenants/{tenant}/costs/{id}.
func (s *Server) handleDeleteCost(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteCost(r.Context(), scope(r), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadFile handles POST /v1/tenants/{tenant}/files?name=. The
// request body is the raw file content.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}

	f, err := s.repo.UploadFile(r.Context(), r.PathValue("tenant"), name, ct, data)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// handleGetFile handles GET /v1/tenants/{tenant}/files/{id}.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.repo.GetFile(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleGetFileContent handles GET /v1/tenants/{tenant}/files/{id}/content.
func (s *Server) handleGetFileContent(w http.ResponseWriter, r *http.Request) {
	f, data, err := s.repo.FetchFile(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleListUsers handles GET /v1/tenants/{tenant}/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if users == nil {
		users = []*model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleGetUser handles GET /v1/tenants/{tenant}/users/{id}.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.repo.GetUser(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

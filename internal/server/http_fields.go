package server

import (
	"net/http"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// handleListFields handles GET /v1/tenants/{tenant}/fields.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.catalog.ListFields(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if fields == nil {
		fields = []*model.Field{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

// handleGetField handles GET /v1/tenants/{tenant}/fields/{id}.
func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	f, err := s.catalog.GetField(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleCreateField handles POST /v1/tenants/{tenant}/fields.
func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var draft model.FieldDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := s.catalog.CreateField(r.Context(), r.PathValue("tenant"), draft)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// handleUpdateField handles PATCH /v1/tenants/{tenant}/fields/{id}.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var patch model.FieldPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := s.catalog.UpdateField(r.Context(), r.PathValue("tenant"), r.PathValue("id"), patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleDeleteField handles DELETE /v1/tenants/{tenant}/fields/{id}.
func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteField(r.Context(), r.PathValue("tenant"), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSchema handles GET /v1/tenants/{tenant}/schemas/{type}?layer=.
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	rt, ok := resourceType(w, r.PathValue("type"))
	if !ok {
		return
	}
	layer := model.LayerMerged
	if v := r.URL.Query().Get("layer"); v != "" {
		layer = model.Layer(v)
	}
	if !layer.IsValid() {
		writeError(w, http.StatusBadRequest, "layer must be merged, system or custom")
		return
	}
	schema, err := s.catalog.ReadSchema(r.Context(), r.PathValue("tenant"), rt, layer)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// handleUpdateSchema handles PUT /v1/tenants/{tenant}/schemas/{type}.
func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	rt, ok := resourceType(w, r.PathValue("type"))
	if !ok {
		return
	}
	var draft model.SchemaDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	schema, err := s.catalog.UpdateSchema(r.Context(), r.PathValue("tenant"), rt, draft)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// handleApplyTemplates handles POST /v1/tenants/{tenant}/templates/apply.
func (s *Server) handleApplyTemplates(w http.ResponseWriter, r *http.Request) {
	res, err := s.catalog.ApplyTemplate(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

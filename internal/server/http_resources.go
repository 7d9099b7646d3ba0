package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/chriskuech/supplyside-sub001/internal/idgen"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
)

// updateResourceInput is the body of PATCH /resources/{id}.
type updateResourceInput struct {
	Fields []model.FieldInput `json:"fields"`
}

// queryInput is the body of POST /resources/query. Filter and Sort use
// the wire grammar of the query package.
type queryInput struct {
	Type   model.ResourceType `json:"type"`
	Filter json.RawMessage    `json:"filter,omitempty"`
	Sort   json.RawMessage    `json:"sort,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

type linkInput struct {
	To string `json:"to"`
}

// handleCreateResource handles POST /v1/tenants/{tenant}/resources.
func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var draft model.ResourceDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.repo.Create(r.Context(), scope(r), draft)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleBatchCreate handles POST /v1/tenants/{tenant}/resources/batch.
func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	var drafts []model.ResourceDraft
	if err := decodeJSON(r, &drafts); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.repo.BatchCreate(r.Context(), scope(r), drafts)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"resources": out})
}

// handleGetResourceByKey handles GET /v1/tenants/{tenant}/resources?type=&key=.
func (s *Server) handleGetResourceByKey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rt, ok := resourceType(w, q.Get("type"))
	if !ok {
		return
	}
	key, err := strconv.Atoi(q.Get("key"))
	if err != nil || key < 1 {
		writeError(w, http.StatusBadRequest, "key must be a positive integer")
		return
	}
	res, err := s.repo.ReadByKey(r.Context(), r.PathValue("tenant"), rt, key)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetResource handles GET /v1/tenants/{tenant}/resources/{id}.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.repo.Read(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUpdateResource handles PATCH /v1/tenants/{tenant}/resources/{id}.
func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	var in updateResourceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.repo.Update(r.Context(), scope(r), r.PathValue("id"), in.Fields)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteResource handles DELETE /v1/tenants/{tenant}/resources/{id}.
func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), scope(r), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCloneResource handles POST /v1/tenants/{tenant}/resources/{id}/clone.
func (s *Server) handleCloneResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.repo.Clone(r.Context(), scope(r), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleLinkResource handles POST /v1/tenants/{tenant}/resources/{id}/link.
func (s *Server) handleLinkResource(w http.ResponseWriter, r *http.Request) {
	var in linkInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}
	if k, ok := idgen.KindOf(in.To); !ok || k != idgen.Resource {
		writeError(w, http.StatusBadRequest, "to must be a resource id")
		return
	}
	res, err := s.repo.Link(r.Context(), scope(r), r.PathValue("id"), in.To)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleApplyExtraction handles POST /v1/tenants/{tenant}/resources/{id}/extraction.
func (s *Server) handleApplyExtraction(w http.ResponseWriter, r *http.Request) {
	var ex model.Extraction
	if err := decodeJSON(r, &ex); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.repo.ApplyExtraction(r.Context(), scope(r), r.PathValue("id"), ex)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleQueryResources handles POST /v1/tenants/{tenant}/resources/query.
func (s *Server) handleQueryResources(w http.ResponseWriter, r *http.Request) {
	var in queryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, ok := resourceType(w, string(in.Type))
	if !ok {
		return
	}
	filter, err := query.ParseFilter(in.Filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sorts, err := query.ParseSort(in.Sort)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	out, err := s.repo.Query(r.Context(), r.PathValue("tenant"), rt, filter, sorts, in.Limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []*model.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": out})
}

// handleSearchResources handles GET /v1/tenants/{tenant}/resources/search?type=&q=&exact=.
func (s *Server) handleSearchResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rt, ok := resourceType(w, q.Get("type"))
	if !ok {
		return
	}
	exact := false
	if v := q.Get("exact"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "exact must be a boolean")
			return
		}
		exact = b
	}
	matches, err := s.repo.FindByNameOrNumber(r.Context(), r.PathValue("tenant"), rt, q.Get("q"), exact)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if matches == nil {
		matches = []model.ResourceMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

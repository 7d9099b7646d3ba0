// Package server exposes the catalog and the record repository over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chriskuech/supplyside-sub001/internal/catalog"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/repository"
)

// userHeader carries the acting user of a request. It identifies, it does
// not authenticate.
const userHeader = "X-User-Id"

// maxUploadBytes bounds the body of a file upload.
const maxUploadBytes = 32 << 20

// Server is the HTTP adapter over a Catalog and a Repository.
type Server struct {
	repo    *repository.Repository
	catalog *catalog.Catalog
	hub     *Hub
	logger  *slog.Logger
}

// New returns a Server. hub may be nil, in which case the event stream
// route is not registered.
func New(repo *repository.Repository, cat *catalog.Catalog, hub *Hub) *Server {
	return &Server{
		repo:    repo,
		catalog: cat,
		hub:     hub,
		logger:  slog.Default(),
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	const t = "/v1/tenants/{tenant}"
	mux.HandleFunc("GET "+t+"/fields", s.handleListFields)
	mux.HandleFunc("POST "+t+"/fields", s.handleCreateField)
	mux.HandleFunc("GET "+t+"/fields/{id}", s.handleGetField)
	mux.HandleFunc("PATCH "+t+"/fields/{id}", s.handleUpdateField)
	mux.HandleFunc("DELETE "+t+"/fields/{id}", s.handleDeleteField)
	mux.HandleFunc("GET "+t+"/schemas/{type}", s.handleGetSchema)
	mux.HandleFunc("PUT "+t+"/schemas/{type}", s.handleUpdateSchema)
	mux.HandleFunc("POST "+t+"/templates/apply", s.handleApplyTemplates)

	mux.HandleFunc("POST "+t+"/resources", s.handleCreateResource)
	mux.HandleFunc("GET "+t+"/resources", s.handleGetResourceByKey)
	mux.HandleFunc("POST "+t+"/resources/batch", s.handleBatchCreate)
	mux.HandleFunc("POST "+t+"/resources/query", s.handleQueryResources)
	mux.HandleFunc("GET "+t+"/resources/search", s.handleSearchResources)
	mux.HandleFunc("GET "+t+"/resources/{id}", s.handleGetResource)
	mux.HandleFunc("PATCH "+t+"/resources/{id}", s.handleUpdateResource)
	mux.HandleFunc("DELETE "+t+"/resources/{id}", s.handleDeleteResource)
	mux.HandleFunc("POST "+t+"/resources/{id}/clone", s.handleCloneResource)
	mux.HandleFunc("POST "+t+"/resources/{id}/link", s.handleLinkResource)
	mux.HandleFunc("POST "+t+"/resources/{id}/extraction", s.handleApplyExtraction)
	mux.HandleFunc("POST "+t+"/resources/{id}/costs", s.handleCreateCost)
	mux.HandleFunc("PATCH "+t+"/costs/{id}", s.handleUpdateCost)
	mux.HandleFunc("DELETE "+t+"/costs/{id}", s.handleDeleteCost)

	mux.HandleFunc("POST "+t+"/files", s.handleUploadFile)
	mux.HandleFunc("GET "+t+"/files/{id}", s.handleGetFile)
	mux.HandleFunc("GET "+t+"/files/{id}/content", s.handleGetFileContent)
	mux.HandleFunc("GET "+t+"/users", s.handleListUsers)
	mux.HandleFunc("GET "+t+"/users/{id}", s.handleGetUser)

	if s.hub != nil {
		mux.HandleFunc("GET "+t+"/events/stream", s.handleEventStream)
	}
	return Recovery(s.logger, Logging(s.logger, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scope returns the tenant and acting user of a request.
func scope(r *http.Request) model.Scope {
	return model.Scope{TenantID: r.PathValue("tenant"), UserID: r.Header.Get(userHeader)}
}

// Package web exposes quai over HTTP: site registry CRUD and transfer,
// favicon resolution, the activity signal, panel state, stats, and the
// SSE event stream any attached UI re-renders from.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/quai/favicon"
	"github.com/hazyhaar/quai/idle"
	"github.com/hazyhaar/quai/kit"
	"github.com/hazyhaar/quai/observability"
	"github.com/hazyhaar/quai/panel"
	"github.com/hazyhaar/quai/registry"
	"github.com/hazyhaar/quai/watch"
)

// maxImportBytes caps the import payload read. The handler slurps the raw
// body, so it enforces its own bound rather than relying on middleware.
const maxImportBytes = 1 << 20

// Options wires the services behind the HTTP surface. Registry, Favicon,
// Idle, and Hub are required; Panel, Watcher, and Audit may be nil.
type Options struct {
	Registry *registry.Service
	Favicon  *favicon.Service
	Idle     *idle.Controller
	Hub      *Hub
	Panel    *panel.Panel
	Watcher  *watch.Watcher
	Audit    *observability.AuditLogger
	Logger   *slog.Logger
}

// Server handles the quai HTTP API.
type Server struct {
	registry *registry.Service
	favicon  *favicon.Service
	idle     *idle.Controller
	hub      *Hub
	panel    *panel.Panel
	watcher  *watch.Watcher
	audit    *observability.AuditLogger
	logger   *slog.Logger
}

// NewServer creates a Server from wired services.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: opts.Registry,
		favicon:  opts.Favicon,
		idle:     opts.Idle,
		hub:      opts.Hub,
		panel:    opts.Panel,
		watcher:  opts.Watcher,
		audit:    opts.Audit,
		logger:   logger,
	}
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.handleListSites)
			r.Post("/", s.handleAddSite)
			r.Post("/reorder", s.handleReorderSites)
			r.Get("/export", s.handleExportSites)
			r.Post("/import", s.handleImportSites)
			r.Get("/active", s.handleGetActive)
			r.Put("/active", s.handleSetActive)
			r.Put("/{id}", s.handleUpdateSite)
			r.Delete("/{id}", s.handleRemoveSite)
		})
		r.Get("/favicon", s.handleFavicon)
		r.Post("/activity", s.handleActivity)
		r.Post("/panel/open", s.handlePanelOpen)
		r.Get("/panel", s.handlePanelState)
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.hub.ServeHTTP)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Sites ---

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var p struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	site, err := s.registry.Add(r.Context(), p.Name, p.URL, p.Color)
	s.auditOp(r, "site_add", p, site, err, start)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.notifySitesChanged("add")
	writeJSON(w, http.StatusCreated, site)
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	var p struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := s.registry.Update(r.Context(), &registry.Site{
		ID: id, Name: p.Name, URL: p.URL, Color: p.Color,
	})
	s.auditOp(r, "site_update", p, map[string]bool{"updated": updated}, err, start)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if updated {
		s.notifySitesChanged("update")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	removedActive, err := s.registry.Remove(r.Context(), id)
	s.auditOp(r, "site_remove", map[string]string{"id": id}, map[string]bool{"removed_active": removedActive}, err, start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.notifySitesChanged("remove")
	writeJSON(w, http.StatusOK, map[string]bool{"removed_active": removedActive})
}

func (s *Server) handleReorderSites(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var p struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.registry.Reorder(r.Context(), p.From, p.To)
	s.auditOp(r, "sites_reorder", p, nil, err, start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sites, err := s.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.notifySitesChanged("reorder")
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleExportSites(w http.ResponseWriter, r *http.Request) {
	data, err := s.registry.ExportJSON(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", registry.ExportFileName))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleImportSites(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	mode := registry.ImportMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = registry.ImportMerge
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.registry.ImportJSON(r.Context(), body, mode)
	s.auditOp(r, "sites_import", map[string]any{"mode": mode, "bytes": len(body)}, result, err, start)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.notifySitesChanged("import")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	id, err := s.registry.Active(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var out struct {
		ID *string `json:"id"`
	}
	if id != "" {
		out.ID = &id
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.SetActive(r.Context(), p.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": p.ID})
}

// --- Favicon ---

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	siteURL := r.URL.Query().Get("url")
	if siteURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing url parameter"))
		return
	}
	var out struct {
		Icon *string `json:"icon"`
	}
	if icon := s.favicon.Resolve(r.Context(), siteURL); icon != "" {
		out.Icon = &icon
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Activity / panel ---

func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	s.idle.Touch()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePanelOpen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.panel == nil {
		writeError(w, http.StatusConflict, errors.New("panel disabled"))
		return
	}

	var p struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	site, err := s.registry.Get(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown site id %q", p.ID))
		return
	}

	err = s.panel.Load(r.Context(), site.URL)
	s.auditOp(r, "panel_open", p, map[string]string{"url": site.URL}, err, start)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	s.registry.SetActive(r.Context(), site.ID)
	s.idle.Touch()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": site.ID, "url": site.URL})
}

func (s *Server) handlePanelState(w http.ResponseWriter, _ *http.Request) {
	snap := s.idle.Snapshot()
	out := map[string]any{
		"enabled":     s.panel != nil,
		"state":       snap.State,
		"pending_url": snap.PendingURL,
		"loaded_url":  "",
		"snapshot":    nil,
	}
	if s.panel != nil {
		out["loaded_url"] = s.panel.LoadedURL()
		if last := s.panel.LastSnapshot(); last != nil {
			out["snapshot"] = last
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Stats ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sites, err := s.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	stats := map[string]any{
		"sites":       len(sites),
		"idle":        s.idle.Snapshot(),
		"sse_clients": s.hub.ClientCount(),
	}
	if favStats, err := s.favicon.Stats(r.Context()); err == nil {
		stats["favicons"] = favStats
	} else {
		s.logger.Warn("web: favicon stats failed", "error", err)
	}
	if s.watcher != nil {
		stats["watcher"] = s.watcher.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Helpers ---

// writeServiceError maps registry sentinels to status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNothingToImport):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) notifySitesChanged(reason string) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast("sites_changed", map[string]string{"reason": reason})
}

// auditOp records a mutation in the audit trail. No-op without a logger.
func (s *Server) auditOp(r *http.Request, operation string, params, result any, err error, start time.Time) {
	if s.audit == nil {
		return
	}
	entry := s.audit.NewAuditEntry("web", operation, params, result, err, time.Since(start))
	entry.RequestID = kit.GetTraceID(r.Context())
	s.audit.LogAsync(entry)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

package registry

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/quai/idgen"
	"github.com/hazyhaar/quai/observability"
	"github.com/hazyhaar/quai/registry/internal/store"
	"github.com/microcosm-cc/bluemonday"
)

// Service owns the ordered site list.
type Service struct {
	store    *store.Store
	logger   *slog.Logger
	config   *Config
	newID    func() string
	now      func() time.Time
	sanitize *bluemonday.Policy
	events   *observability.EventLogger

	mu     sync.Mutex
	sites  []*Site
	loaded bool
}

// New creates a registry Service and applies the site schema.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}

	svc := &Service{
		store:    store.NewStore(db),
		logger:   logger,
		config:   cfg,
		newID:    idgen.Prefixed("site_", idgen.UUIDv7()),
		now:      time.Now,
		sanitize: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithIDGenerator overrides the site ID generator (default: "site_" + UUIDv7).
func WithIDGenerator(fn func() string) ServiceOption {
	return func(svc *Service) { svc.newID = fn }
}

// WithClock overrides the time source. Use in tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = fn }
}

// WithEvents sets the business event logger for data-modifying operations.
func WithEvents(l *observability.EventLogger) ServiceOption {
	return func(svc *Service) { svc.events = l }
}

// Load reads the persisted site list into memory. An empty store is seeded
// with the default set and the seeds are persisted; calling Load again is a
// no-op read. A storage read failure degrades to the in-memory defaults.
func (svc *Service) Load(ctx context.Context) ([]*Site, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.loaded = false
	svc.loadLocked(ctx)
	return svc.snapshotLocked(), nil
}

// List returns the current ordered snapshot.
func (svc *Service) List(ctx context.Context) ([]*Site, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)
	return svc.snapshotLocked(), nil
}

// Get returns the site with the given ID, or nil when absent.
func (svc *Service) Get(ctx context.Context, id string) (*Site, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)
	if idx := svc.indexLocked(id); idx >= 0 {
		c := *svc.sites[idx]
		return &c, nil
	}
	return nil, nil
}

// Add validates and appends a new site at the end of the list.
// Duplicate URLs are permitted; only import dedups.
func (svc *Service) Add(ctx context.Context, name, rawURL, color string) (*Site, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)

	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultColor
	}
	site := &Site{
		ID:    svc.newID(),
		Name:  svc.cleanName(name),
		URL:   strings.TrimSpace(rawURL),
		Color: color,
	}
	if err := validateSiteInput(site); err != nil {
		return nil, err
	}
	normalized, err := NormalizeSiteURL(site.URL)
	if err != nil {
		return nil, err
	}
	site.URL = normalized

	nowMs := svc.now().UnixMilli()
	site.CreatedAt, site.UpdatedAt = nowMs, nowMs
	site.Position = len(svc.sites)

	svc.sites = append(svc.sites, site)
	svc.persistLocked(ctx)
	svc.logEvent(ctx, "site_added", "add", site.ID)

	c := *site
	return &c, nil
}

// Update replaces the mutable fields (name, url, color) of the site carrying
// s.ID, preserving its position. Empty fields keep their current value.
// A missing ID is a silent no-op returning false: stale IDs from a lagging
// client are expected, not an error.
func (svc *Service) Update(ctx context.Context, s *Site) (bool, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)

	idx := svc.indexLocked(s.ID)
	if idx < 0 {
		return false, nil
	}

	merged := *svc.sites[idx]
	if s.Name != "" {
		merged.Name = svc.cleanName(s.Name)
	}
	if s.URL != "" {
		merged.URL = strings.TrimSpace(s.URL)
	}
	if s.Color != "" {
		merged.Color = strings.TrimSpace(s.Color)
	}
	if err := validateSiteInput(&merged); err != nil {
		return false, err
	}
	normalized, err := NormalizeSiteURL(merged.URL)
	if err != nil {
		return false, err
	}
	merged.URL = normalized
	merged.UpdatedAt = svc.now().UnixMilli()

	*svc.sites[idx] = merged
	svc.persistLocked(ctx)
	svc.logEvent(ctx, "site_updated", "update", merged.ID)
	return true, nil
}

// Remove deletes the site with the given ID. A missing ID is a silent no-op.
// It reports whether the removed site was the active one, clearing the
// active marker in that case so the caller can drop embedded content.
func (svc *Service) Remove(ctx context.Context, id string) (removedActive bool, err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)

	idx := svc.indexLocked(id)
	if idx < 0 {
		return false, nil
	}
	svc.sites = append(svc.sites[:idx], svc.sites[idx+1:]...)

	active, stateErr := svc.store.GetState(ctx, store.KeyActiveSite)
	if stateErr != nil {
		svc.logger.Warn("registry: read active site failed", "error", stateErr)
	} else if active == id {
		removedActive = true
		if err := svc.store.DeleteState(ctx, store.KeyActiveSite); err != nil {
			svc.logger.Warn("registry: clear active site failed", "error", err)
		}
	}

	svc.persistLocked(ctx)
	svc.logEvent(ctx, "site_removed", "remove", id)
	return removedActive, nil
}

// Reorder moves the site at index from to index to, using splice semantics:
// the element is removed first, so when from < to the effective insertion
// index is to-1 (the removal shifted everything after from one slot left).
// The insertion index is clamped to the valid range. An out-of-range from is
// a silent no-op (a stale drag index, nothing to move).
func (svc *Service) Reorder(ctx context.Context, from, to int) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.ensureLoadedLocked(ctx)

	if from < 0 || from >= len(svc.sites) {
		return nil
	}
	site := svc.sites[from]
	rest := append(svc.sites[:from], svc.sites[from+1:]...)

	insert := to
	if from < to {
		insert--
	}
	if insert < 0 {
		insert = 0
	}
	if insert > len(rest) {
		insert = len(rest)
	}
	svc.sites = append(rest[:insert], append([]*Site{site}, rest[insert:]...)...)

	svc.persistLocked(ctx)
	svc.logEvent(ctx, "sites_reordered", "reorder", site.ID)
	return nil
}

// SetActive persists the last active site ID under its own state key,
// disjoint from the list. An empty ID clears the marker.
func (svc *Service) SetActive(ctx context.Context, id string) error {
	if id == "" {
		if err := svc.store.DeleteState(ctx, store.KeyActiveSite); err != nil {
			svc.logger.Warn("registry: clear active site failed", "error", err)
		}
		return nil
	}
	if err := svc.store.SetState(ctx, store.KeyActiveSite, id); err != nil {
		svc.logger.Warn("registry: persist active site failed", "error", err)
	}
	return nil
}

// Active returns the persisted active site ID, or "" when none is set.
func (svc *Service) Active(ctx context.Context) (string, error) {
	id, err := svc.store.GetState(ctx, store.KeyActiveSite)
	if err != nil {
		svc.logger.Warn("registry: read active site failed", "error", err)
		return "", nil
	}
	return id, nil
}

// --- internals ---

// ensureLoadedLocked lazily loads the working set on first use.
// Callers must hold svc.mu.
func (svc *Service) ensureLoadedLocked(ctx context.Context) {
	if !svc.loaded {
		svc.loadLocked(ctx)
	}
}

func (svc *Service) loadLocked(ctx context.Context) {
	sites, err := svc.store.ListSites(ctx)
	switch {
	case err != nil:
		svc.logger.Warn("registry: load failed, falling back to defaults", "error", err)
		svc.sites = svc.seedSites()
	case len(sites) == 0:
		svc.sites = svc.seedSites()
		svc.persistLocked(ctx)
		svc.logger.Info("registry: seeded default sites", "count", len(svc.sites))
	default:
		svc.sites = sites
	}
	svc.loaded = true
}

func (svc *Service) seedSites() []*Site {
	nowMs := svc.now().UnixMilli()
	sites := make([]*Site, 0, len(svc.config.Seeds))
	for i, seed := range svc.config.Seeds {
		color := seed.Color
		if color == "" {
			color = DefaultColor
		}
		sites = append(sites, &Site{
			ID:        svc.newID(),
			Name:      seed.Name,
			URL:       seed.URL,
			Color:     color,
			Position:  i,
			CreatedAt: nowMs,
			UpdatedAt: nowMs,
		})
	}
	return sites
}

// persistLocked rewrites the full ordered sequence. A write failure keeps
// the in-memory state and logs; the caller's mutation stands.
func (svc *Service) persistLocked(ctx context.Context) {
	for i, s := range svc.sites {
		s.Position = i
	}
	if err := svc.store.SaveAll(ctx, svc.sites); err != nil {
		svc.logger.Warn("registry: persist failed, in-memory state retained",
			"error", err, "sites", len(svc.sites))
	}
}

func (svc *Service) indexLocked(id string) int {
	for i, s := range svc.sites {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (svc *Service) snapshotLocked() []*Site {
	out := make([]*Site, len(svc.sites))
	for i, s := range svc.sites {
		c := *s
		out[i] = &c
	}
	return out
}

// cleanName strips markup from a site name. Names are rendered by whatever
// UI attaches to the API, so they are kept as plain text.
func (svc *Service) cleanName(name string) string {
	return strings.TrimSpace(html.UnescapeString(svc.sanitize.Sanitize(name)))
}

func (svc *Service) logEvent(ctx context.Context, eventType, action, entityID string) {
	if svc.events == nil {
		return
	}
	svc.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   eventType,
		ServiceName: "registry",
		EntityType:  "site",
		EntityID:    entityID,
		Action:      action,
		Success:     true,
	})
}

// Package favicon resolves site favicons and caches them as data URLs.
//
// Resolution is deliberately infallible: Resolve returns the icon as a
// data: URL or "" and never an error. A sidebar chip without an icon is a
// cosmetic degradation, so every internal failure (storage, network,
// unparseable payload) logs and falls through rather than surfacing.
package favicon

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hazyhaar/quai/favicon/internal/fetch"
	"github.com/hazyhaar/quai/favicon/internal/store"
	"github.com/hazyhaar/quai/observability"
)

// Stats summarizes the cache for the stats surface.
type Stats = store.Stats

// Service resolves and caches favicons.
type Service struct {
	store   *store.Store
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	config  *Config
	now     func() time.Time
	metrics *observability.MetricsManager
	events  *observability.EventLogger
}

// New creates a favicon Service and applies the cache schema.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("favicon: apply schema: %w", err)
	}

	svc := &Service{
		store: store.NewStore(db),
		fetcher: fetch.New(fetch.Config{
			Timeout:      cfg.SourceTimeout,
			MaxBytes:     cfg.MaxIconBytes,
			UserAgent:    cfg.UserAgent,
			URLValidator: cfg.URLValidator,
		}),
		logger: logger,
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithClock overrides the time source. Use in tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = fn }
}

// WithMetrics sets the metrics sink for hit/miss counters.
func WithMetrics(m *observability.MetricsManager) ServiceOption {
	return func(svc *Service) { svc.metrics = m }
}

// WithEvents sets the business event logger for successful resolutions.
func WithEvents(l *observability.EventLogger) ServiceOption {
	return func(svc *Service) { svc.events = l }
}

// Resolve returns the favicon for a site as a data: URL, or "" when no
// source yields one. It never returns an error.
//
// A fresh cache entry is served without network I/O. A stale or missing
// entry triggers the source chain; the first acceptable payload is cached
// and returned. Exhaustion returns "" without writing a negative entry, so
// the next call retries the chain.
func (svc *Service) Resolve(ctx context.Context, siteURL string) string {
	host := hostFrom(siteURL)
	if host == "" {
		return ""
	}

	now := svc.now()
	if icon, err := svc.store.Get(ctx, host); err != nil {
		svc.logger.Warn("favicon: cache read failed", "host", host, "error", err)
	} else if icon != nil && now.UnixMilli()-icon.FetchedAt < svc.config.TTL.Milliseconds() {
		svc.recordMetric("favicon_hit")
		return icon.DataURL
	}
	svc.recordMetric("favicon_miss")

	dataURL, source := svc.fetchChain(ctx, host, siteURL)
	if dataURL == "" {
		svc.logger.Debug("favicon: all sources exhausted", "host", host)
		return ""
	}

	// Stamp after the chain ran: a slow chain must not backdate the entry.
	if err := svc.store.Upsert(ctx, &store.Icon{
		Host:      host,
		DataURL:   dataURL,
		FetchedAt: svc.now().UnixMilli(),
	}); err != nil {
		// The caller still gets the icon; only the next resolution pays.
		svc.logger.Warn("favicon: cache write failed", "host", host, "error", err)
	}

	svc.logger.Info("favicon: resolved", "host", host, "source", source, "bytes", len(dataURL))
	svc.logEvent(ctx, host, source)
	return dataURL
}

// Stats reports cache entry counts and fetch timestamp bounds.
func (svc *Service) Stats(ctx context.Context) (*Stats, error) {
	return svc.store.Stats(ctx)
}

// fetchChain walks the ordered source chain and returns the first
// acceptable icon with the name of the source that produced it.
func (svc *Service) fetchChain(ctx context.Context, host, siteURL string) (string, string) {
	for _, src := range svc.config.Sources {
		candidate := src.URL(host)
		res, err := svc.fetcher.Fetch(ctx, candidate)
		if err != nil {
			svc.logger.Debug("favicon: source failed", "source", src.Name, "host", host, "error", err)
			continue
		}
		if dataURL, ok := svc.acceptIcon(res.Body, res.ContentType); ok {
			return dataURL, src.Name
		}
		svc.logger.Debug("favicon: source payload rejected", "source", src.Name, "host", host, "bytes", len(res.Body))
	}

	if !svc.config.DisableDiscovery {
		if dataURL := svc.discover(ctx, host, siteURL); dataURL != "" {
			return dataURL, "html-discovery"
		}
	}
	return "", ""
}

// discover fetches the site page itself and follows its <link rel="icon">
// declaration. Last resort: two fetches for one icon.
func (svc *Service) discover(ctx context.Context, host, siteURL string) string {
	page, err := svc.fetcher.Fetch(ctx, siteURL)
	if err != nil {
		svc.logger.Debug("favicon: page fetch failed", "host", host, "error", err)
		return ""
	}
	iconURL := discoverIconURL(siteURL, page.Body)
	if iconURL == "" {
		return ""
	}
	res, err := svc.fetcher.Fetch(ctx, iconURL)
	if err != nil {
		svc.logger.Debug("favicon: discovered icon fetch failed", "host", host, "url", iconURL, "error", err)
		return ""
	}
	dataURL, ok := svc.acceptIcon(res.Body, res.ContentType)
	if !ok {
		return ""
	}
	return dataURL
}

// acceptIcon applies the payload heuristics: large enough to be a real
// icon, and actually an image.
func (svc *Service) acceptIcon(body []byte, contentType string) (string, bool) {
	if len(body) < svc.config.MinIconBytes {
		return "", false
	}
	mt := iconMIME(contentType, body)
	if mt == "" {
		return "", false
	}
	return encodeDataURL(mt, body), true
}

func (svc *Service) recordMetric(name string) {
	if svc.metrics == nil {
		return
	}
	svc.metrics.RecordSimple(name, 1, "count")
}

func (svc *Service) logEvent(ctx context.Context, host, source string) {
	if svc.events == nil {
		return
	}
	svc.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   "favicon_resolved",
		ServiceName: "favicon",
		EntityType:  "favicon",
		EntityID:    host,
		Action:      source,
		Success:     true,
	})
}

// hostFrom extracts the hostname from a site URL. Anything unparseable or
// schemeless yields "".
func hostFrom(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

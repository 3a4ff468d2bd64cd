// Command quai is the sidebar companion daemon: an ordered site registry,
// a TTL favicon cache, and an idle-hibernating embedded panel behind one
// HTTP API with an SSE event stream.
//
// Usage:
//
//	quai                              # daemon on 127.0.0.1:8674
//	quai -config quai.yaml            # daemon with config file
//	quai -list                        # print sites as JSON and exit
//	quai -export                      # print sidebar-sites.json and exit
//	quai -import sites.json -mode replace
//	quai -stats                       # print service stats and exit
//	quai -mcp                         # MCP tool server on stdio
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/quai/dbopen"
	"github.com/hazyhaar/quai/favicon"
	"github.com/hazyhaar/quai/idle"
	"github.com/hazyhaar/quai/observability"
	"github.com/hazyhaar/quai/panel"
	"github.com/hazyhaar/quai/registry"
	"github.com/hazyhaar/quai/shield"
	"github.com/hazyhaar/quai/trace"
	"github.com/hazyhaar/quai/watch"
	"github.com/hazyhaar/quai/web"
)

// workerName identifies this process in heartbeats and alerts.
const workerName = "quai"

// modes holds the one-shot flags; all false/empty means daemon mode.
type modes struct {
	mcp        bool
	list       bool
	export     bool
	importPath string
	importMode string
	stats      bool
}

func main() {
	configPath := flag.String("config", "", "path to quai.yaml config file")
	dataDir := flag.String("data", "", "data directory (default data)")
	listen := flag.String("listen", "", "HTTP listen address (default 127.0.0.1:8674)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	listMode := flag.Bool("list", false, "print sites as JSON and exit")
	exportMode := flag.Bool("export", false, "print the sidebar-sites.json export and exit")
	importPath := flag.String("import", "", "import a sidebar-sites.json file and exit")
	importMode := flag.String("mode", "merge", "import mode: merge or replace")
	statsMode := flag.Bool("stats", false, "print service stats as JSON and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("quai: load config", "error", err)
		os.Exit(1)
	}
	override(&cfg.DataDir, *dataDir, "QUAI_DATA_DIR")
	override(&cfg.Listen, *listen, "QUAI_LISTEN")
	override(&cfg.LogLevel, *logLevel, "QUAI_LOG_LEVEL")
	cfg.applyDefaults()

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Logs go to stderr: stdout belongs to the one-shot modes and the MCP
	// stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := modes{
		mcp:        *mcpMode,
		list:       *listMode,
		export:     *exportMode,
		importPath: *importPath,
		importMode: *importMode,
		stats:      *statsMode,
	}
	if err := run(ctx, logger, cfg, m); err != nil {
		logger.Error("quai: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *Config, m modes) error {
	if cfg.Storage.Trace {
		closeTrace, err := initTrace(cfg)
		if err != nil {
			return fmt.Errorf("trace init: %w", err)
		}
		defer closeTrace()
	}

	switch {
	case m.list, m.export, m.importPath != "", m.stats:
		return runOneShot(ctx, logger, cfg, m)
	case m.mcp:
		return runMCP(ctx, logger, cfg)
	default:
		return runDaemon(ctx, logger, cfg)
	}
}

// initTrace opens the trace DB with the raw sqlite driver (never
// sqlite-trace, which would recurse) and installs the global store.
func initTrace(cfg *Config) (func(), error) {
	db, err := dbopen.Open(cfg.Storage.TraceDB, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	store := trace.NewStore(db)
	if err := store.Init(); err != nil {
		db.Close()
		return nil, err
	}
	trace.SetStore(store)
	return func() {
		store.Close()
		db.Close()
	}, nil
}

func openSitesDB(cfg *Config) (*sql.DB, error) {
	opts := []dbopen.Option{dbopen.WithMkdirAll()}
	if cfg.Storage.Trace {
		opts = append(opts, dbopen.WithTrace())
	}
	return dbopen.Open(cfg.Storage.SitesDB, opts...)
}

func openFaviconDB(cfg *Config) (*sql.DB, error) {
	opts := []dbopen.Option{dbopen.WithMkdirAll()}
	if cfg.Storage.Trace {
		opts = append(opts, dbopen.WithTrace())
	}
	return dbopen.Open(cfg.Storage.FaviconDB, opts...)
}

func faviconConfig(cfg *Config) *favicon.Config {
	return &favicon.Config{
		TTL:              cfg.Favicon.TTL,
		SourceTimeout:    cfg.Favicon.SourceTimeout,
		DisableDiscovery: cfg.Favicon.DisableDiscovery,
	}
}

// --- One-shot modes ---

func runOneShot(ctx context.Context, logger *slog.Logger, cfg *Config, m modes) error {
	sitesDB, err := openSitesDB(cfg)
	if err != nil {
		return fmt.Errorf("open sites db: %w", err)
	}
	defer sitesDB.Close()

	reg, err := registry.New(sitesDB, nil, logger)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	switch {
	case m.list:
		sites, err := reg.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(sites)

	case m.export:
		data, err := reg.ExportJSON(ctx)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(data, '\n'))
		return err

	case m.importPath != "":
		raw, err := os.ReadFile(m.importPath)
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		res, err := reg.ImportJSON(ctx, raw, registry.ImportMode(m.importMode))
		if err != nil {
			return err
		}
		return printJSON(res)

	case m.stats:
		return printStats(ctx, logger, cfg, reg)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStats aggregates what can be read without a running daemon: the
// site count, the favicon cache, unresolved alerts, and the last daemon
// heartbeat. Missing side stores are skipped, not fatal.
func printStats(ctx context.Context, logger *slog.Logger, cfg *Config, reg *registry.Service) error {
	sites, err := reg.List(ctx)
	if err != nil {
		return err
	}
	out := map[string]any{"sites": len(sites)}

	if favDB, err := openFaviconDB(cfg); err == nil {
		defer favDB.Close()
		if fav, err := favicon.New(favDB, nil, logger); err == nil {
			if st, err := fav.Stats(ctx); err == nil {
				out["favicons"] = st
			}
		}
	}

	if obsDB, err := dbopen.Open(cfg.Storage.ObsDB, dbopen.WithMkdirAll()); err == nil {
		defer obsDB.Close()
		if err := observability.Init(obsDB); err == nil {
			if alerts, err := observability.UnresolvedAlerts(ctx, obsDB, 20); err == nil {
				out["unresolved_alerts"] = alerts
			}
			stale := 2 * cfg.Obs.HeartbeatInterval
			if hb, err := observability.LatestHeartbeat(ctx, obsDB, workerName, stale); err == nil && hb != nil {
				out["heartbeat"] = hb
			}
		}
	}

	return printJSON(out)
}

// --- MCP stdio mode ---

func runMCP(ctx context.Context, logger *slog.Logger, cfg *Config) error {
	sitesDB, err := openSitesDB(cfg)
	if err != nil {
		return fmt.Errorf("open sites db: %w", err)
	}
	defer sitesDB.Close()

	favDB, err := openFaviconDB(cfg)
	if err != nil {
		return fmt.Errorf("open favicon db: %w", err)
	}
	defer favDB.Close()

	reg, err := registry.New(sitesDB, nil, logger)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	fav, err := favicon.New(favDB, faviconConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("favicon: %w", err)
	}

	// No panel over stdio; the state tool reports a quiescent controller.
	ctl := idle.New(nil, &idle.Config{Timeout: cfg.Idle.Timeout}, logger)

	srv := buildMCPServer(reg, fav, ctl, nil)
	logger.Info("quai: MCP server on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

// --- Daemon mode ---

func runDaemon(ctx context.Context, logger *slog.Logger, cfg *Config) error {
	sitesDB, err := openSitesDB(cfg)
	if err != nil {
		return fmt.Errorf("open sites db: %w", err)
	}
	defer sitesDB.Close()

	favDB, err := openFaviconDB(cfg)
	if err != nil {
		return fmt.Errorf("open favicon db: %w", err)
	}
	defer favDB.Close()

	// Observability lives in its own DB file so async batch writes never
	// contend with the interactive stores.
	var (
		obsDB   *sql.DB
		events  *observability.EventLogger
		metrics *observability.MetricsManager
		auditor *observability.AuditLogger
	)
	if !cfg.Obs.Disabled {
		obsDB, err = dbopen.Open(cfg.Storage.ObsDB, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("open observability db: %w", err)
		}
		defer obsDB.Close()
		if err := observability.Init(obsDB); err != nil {
			return fmt.Errorf("observability init: %w", err)
		}

		events = observability.NewEventLogger(obsDB)
		metrics = observability.NewMetricsManager(obsDB, 256, 10*time.Second)
		defer metrics.Close()
		auditor = observability.NewAuditLogger(obsDB, 256)
		defer auditor.Close()

		hb := observability.NewHeartbeatWriter(obsDB, workerName, cfg.Obs.HeartbeatInterval)
		hb.Start(ctx)
		defer hb.Stop()

		go retentionLoop(ctx, logger, obsDB, auditor, cfg.Obs.RetentionDays)
	}

	var regOpts []registry.ServiceOption
	var favOpts []favicon.ServiceOption
	if events != nil {
		regOpts = append(regOpts, registry.WithEvents(events))
		favOpts = append(favOpts, favicon.WithEvents(events))
	}
	if metrics != nil {
		favOpts = append(favOpts, favicon.WithMetrics(metrics))
	}

	reg, err := registry.New(sitesDB, nil, logger, regOpts...)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	fav, err := favicon.New(favDB, faviconConfig(cfg), logger, favOpts...)
	if err != nil {
		return fmt.Errorf("favicon: %w", err)
	}

	hub := web.NewHub(logger)
	go hub.Run(ctx)

	// Panel is opt-in. A start failure degrades to panel-less operation:
	// the sidebar still works, /api/panel/open answers 409.
	var pnl *panel.Panel
	if cfg.Panel.Enabled {
		mode, err := panel.ParseMode(cfg.Panel.Mode)
		if err != nil {
			return fmt.Errorf("panel mode: %w", err)
		}
		p := panel.New(panel.Config{
			RemoteURL:       cfg.Panel.RemoteURL,
			Mode:            mode,
			MemoryLimit:     cfg.Panel.MemoryLimit,
			RecycleInterval: cfg.Panel.RecycleInterval,
			NavTimeout:      cfg.Panel.NavTimeout,
			SnapshotMaxLen:  cfg.Panel.SnapshotMaxLen,
			Logger:          logger,
		})
		if metrics != nil {
			p.SetRecycleCallback(&panel.RecycleCallback{
				AfterRecycle: func() { metrics.RecordSimple("panel_recycles", 1, "count") },
			})
		}
		if err := p.Start(ctx); err != nil {
			logger.Error("quai: panel start failed, continuing without panel", "error", err)
			if obsDB != nil {
				observability.RecordAlert(ctx, obsDB, "panel_start_failed", "warning",
					workerName, "Embedded panel failed to start", err.Error())
			}
		} else {
			pnl = p
			defer pnl.Close()
		}
	}

	// The idle controller drives hibernation; hooks fan out to SSE and
	// the event log so UIs can toggle the indicator.
	hooks := idle.Hooks{
		OnHibernate: func(url string) {
			hub.Broadcast("hibernated", map[string]string{"url": url})
			if events != nil {
				events.LogEvent(ctx, observability.BusinessEvent{
					EventType:   "panel_hibernated",
					ServiceName: "idle",
					EntityType:  "panel",
					Action:      "hibernate",
					Success:     true,
				})
			}
			if metrics != nil {
				metrics.RecordSimple("panel_hibernations", 1, "count")
			}
		},
		OnWake: func(url string) {
			hub.Broadcast("woke", map[string]string{"url": url})
			if events != nil {
				events.LogEvent(ctx, observability.BusinessEvent{
					EventType:   "panel_woke",
					ServiceName: "idle",
					EntityType:  "panel",
					Action:      "wake",
					Success:     true,
				})
			}
		},
	}
	var view idle.View
	if pnl != nil {
		view = pnl
	}
	ctl := idle.New(view, &idle.Config{Timeout: cfg.Idle.Timeout}, logger, idle.WithHooks(hooks))
	go ctl.Run(ctx)

	// Cross-process edits to the sites DB reload the registry and nudge
	// attached UIs.
	var watcher *watch.Watcher
	if !cfg.Watch.Disabled {
		watcher = watch.New(sitesDB, watch.Options{
			Interval: cfg.Watch.Interval,
			Debounce: cfg.Watch.Debounce,
			Detector: watch.PragmaDataVersion,
			Logger:   logger,
		})
		go watcher.OnChange(ctx, func() error {
			reg.Load(ctx)
			hub.Broadcast("sites_changed", map[string]string{"reason": "external"})
			return nil
		})
	}

	srv := web.NewServer(web.Options{
		Registry: reg,
		Favicon:  fav,
		Idle:     ctl,
		Hub:      hub,
		Panel:    pnl,
		Watcher:  watcher,
		Audit:    auditor,
		Logger:   logger,
	})

	if err := shield.Init(sitesDB); err != nil {
		return fmt.Errorf("shield init: %w", err)
	}
	r := chi.NewRouter()
	mws, limiter := shield.DefaultStack(sitesDB, "/healthz", "/api/events")
	for _, mw := range mws {
		r.Use(mw)
	}
	limiterDone := make(chan struct{})
	defer close(limiterDone)
	limiter.StartReloader(limiterDone)

	srv.Register(r)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: /api/events holds its response open for the
		// life of the client.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("quai: http listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("quai: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("quai: http shutdown", "error", err)
	}
	logger.Info("quai: stopped")
	return nil
}

// retentionLoop trims observability tables once at startup and then daily.
func retentionLoop(ctx context.Context, logger *slog.Logger, db *sql.DB, auditor *observability.AuditLogger, days int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		err := observability.Cleanup(ctx, db, observability.RetentionConfig{
			HTTPLogsDays:   days,
			EventLogsDays:  days,
			HeartbeatsDays: days,
		})
		if err != nil {
			logger.Warn("quai: observability cleanup", "error", err)
		}
		if auditor != nil {
			if _, err := auditor.Cleanup(ctx, days); err != nil {
				logger.Warn("quai: audit cleanup", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

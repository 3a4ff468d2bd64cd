// Package panel hosts the embedded content view in a managed Chrome
// instance: launch or remote attach, a single hosted page, navigation,
// and JS-heap plus uptime based recycling.
//
// The panel implements the idle controller's View, so hibernation unloads
// the hosted page (capturing a snapshot first) and the next activity
// reloads the parked address.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/microcosm-cc/bluemonday"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// ErrNotStarted is returned for navigation before Start.
var ErrNotStarted = errors.New("panel: not started")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("panel: closed")

// Mode controls how Chrome runs.
type Mode int

const (
	// ModeHeadless runs Chrome without a window. Default.
	ModeHeadless Mode = iota
	// ModeHeadful runs Chrome with a visible window.
	ModeHeadful
)

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "headless":
		return ModeHeadless, nil
	case "headful":
		return ModeHeadful, nil
	default:
		return ModeHeadless, fmt.Errorf("panel: unknown mode %q", s)
	}
}

// Config configures the panel.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Mode selects headless or headful Chrome. Default: ModeHeadless.
	Mode Mode

	// MemoryLimit in bytes. Recycle Chrome when the JS heap exceeds it.
	// Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// NavTimeout bounds each navigation. Default: 30s.
	NavTimeout time.Duration

	// SnapshotMaxLen caps the hibernation snapshot excerpt, in runes.
	// Default: 2048.
	SnapshotMaxLen int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30 // 1GB
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SnapshotMaxLen <= 0 {
		c.SnapshotMaxLen = 2048
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleCallback is called around Chrome recycling so the daemon can
// flush or record the event.
type RecycleCallback struct {
	// BeforeRecycle is called before Chrome is killed.
	BeforeRecycle func()
	// AfterRecycle is called after Chrome restarted and the hosted page
	// was re-navigated.
	AfterRecycle func()
}

// Panel manages the Chrome lifecycle and the single hosted page.
type Panel struct {
	cfg      Config
	sanitize *bluemonday.Policy
	md       *converter.Converter

	mu           sync.RWMutex
	browser      *rod.Browser
	lnch         *launcher.Launcher
	page         *rod.Page
	loadedURL    string
	lastSnapshot *Snapshot
	startAt      time.Time
	closed       bool
	cb           *RecycleCallback
}

// New creates a Panel. Call Start to launch Chrome.
func New(cfg Config) *Panel {
	cfg.defaults()
	return &Panel{
		cfg:      cfg,
		sanitize: bluemonday.StrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// SetRecycleCallback sets the callback for recycle events.
func (p *Panel) SetRecycleCallback(cb *RecycleCallback) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
}

// Start launches Chrome (or connects to a remote instance), creates the
// hosted page, and starts the monitor goroutine.
func (p *Panel) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := p.startLocked(ctx); err != nil {
		return err
	}

	go p.monitorLoop(ctx)
	return nil
}

func (p *Panel) startLocked(ctx context.Context) error {
	b, err := p.launch(ctx)
	if err != nil {
		return err
	}

	// The hosted page is created through stealth so sites that block
	// automation still render.
	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		return fmt.Errorf("panel: create page: %w", err)
	}

	p.browser = b
	p.page = page
	p.startAt = time.Now()
	return nil
}

func (p *Panel) launch(ctx context.Context) (*rod.Browser, error) {
	log := p.cfg.Logger

	var wsURL string
	if p.cfg.RemoteURL != "" {
		wsURL = p.cfg.RemoteURL
		log.Info("panel: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Headless(p.cfg.Mode != ModeHeadful)
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("panel: launch: %w", err)
		}
		wsURL = u
		p.lnch = l
		log.Info("panel: launched chrome", "url", wsURL, "mode", p.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("panel: connect: %w", err)
	}
	return b, nil
}

// Recycle kills Chrome, restarts it, and re-navigates to whatever was
// loaded before.
func (p *Panel) Recycle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.recycleLocked(ctx)
}

func (p *Panel) recycleLocked(ctx context.Context) error {
	log := p.cfg.Logger
	log.Info("panel: recycling", "uptime", time.Since(p.startAt), "loaded", p.loadedURL)

	url := p.loadedURL
	if p.cb != nil && p.cb.BeforeRecycle != nil {
		p.cb.BeforeRecycle()
	}

	p.cleanupLocked()
	if err := p.startLocked(ctx); err != nil {
		return fmt.Errorf("panel: relaunch: %w", err)
	}

	if url != "" {
		if err := p.navigate(ctx, p.page, url); err != nil {
			// The content is lost but the panel survives; the user can
			// reopen the site.
			log.Warn("panel: reload after recycle failed", "url", url, "error", err)
			url = ""
		}
	}
	p.loadedURL = url

	if p.cb != nil && p.cb.AfterRecycle != nil {
		p.cb.AfterRecycle()
	}

	log.Info("panel: recycled")
	return nil
}

// Close shuts down Chrome. The panel cannot be restarted afterwards.
func (p *Panel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cleanupLocked()
	return nil
}

func (p *Panel) cleanupLocked() {
	if p.page != nil {
		p.page.Close()
		p.page = nil
	}
	if p.browser != nil {
		p.browser.Close()
		p.browser = nil
	}
	if p.lnch != nil {
		p.lnch.Cleanup()
		p.lnch = nil
	}
	p.loadedURL = ""
}

func (p *Panel) monitorLoop(ctx context.Context) {
	log := p.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.RLock()
			if p.closed || p.browser == nil {
				p.mu.RUnlock()
				return
			}
			startAt := p.startAt
			page := p.page
			p.mu.RUnlock()

			if time.Since(startAt) > p.cfg.RecycleInterval {
				log.Info("panel: recycle interval reached")
				if err := p.Recycle(ctx); err != nil {
					log.Error("panel: recycle failed", "error", err)
				}
				continue
			}

			heap, err := jsHeapUsage(page)
			if err != nil {
				log.Debug("panel: heap check failed", "error", err)
				continue
			}
			if heap > p.cfg.MemoryLimit {
				log.Info("panel: memory limit exceeded", "used", heap, "limit", p.cfg.MemoryLimit)
				if err := p.Recycle(ctx); err != nil {
					log.Error("panel: recycle failed", "error", err)
				}
			}
		}
	}
}

// jsHeapUsage queries the hosted page's JS heap via the Performance API.
func jsHeapUsage(page *rod.Page) (int64, error) {
	if page == nil {
		return 0, fmt.Errorf("no hosted page")
	}
	res, err := page.Eval(`() => {
		if (performance.memory) {
			return performance.memory.usedJSHeapSize;
		}
		return 0;
	}`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}

package idle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// View is the effect executor for panel content. Implementations must
// tolerate Unload with nothing loaded and Load over existing content.
type View interface {
	// LoadedURL returns the currently loaded address, "" when none.
	LoadedURL() string
	// Load navigates the view to url.
	Load(ctx context.Context, url string) error
	// Unload releases the current content.
	Unload(ctx context.Context) error
}

// NopView is a View with nothing behind it. With no content ever loaded
// the machine never hibernates, so a controller over a NopView is inert
// but harmless. Used when the panel is disabled.
type NopView struct{}

func (NopView) LoadedURL() string                  { return "" }
func (NopView) Load(context.Context, string) error { return nil }
func (NopView) Unload(context.Context) error       { return nil }

// Hooks receive hibernation lifecycle notifications. Called on the
// controller goroutine; keep them non-blocking.
type Hooks struct {
	// OnHibernate fires after content was unloaded. url is the parked address.
	OnHibernate func(url string)
	// OnWake fires after activity ended hibernation. url is the reloaded
	// address, "" when nothing was parked.
	OnWake func(url string)
}

// Config configures the Controller.
type Config struct {
	// Timeout is the idle window before hibernation. Default: 5 minutes.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
}

// Controller owns the hibernation machine, the single idle timer, and the
// View. Every transition runs on the Run goroutine; Touch is the only
// cross-goroutine entry point and never blocks.
type Controller struct {
	view   View
	hooks  Hooks
	logger *slog.Logger
	config *Config
	now    func() time.Time

	activity chan struct{}

	mu      sync.Mutex
	machine *Machine
}

// Option configures a Controller during creation.
type Option func(*Controller)

// WithClock overrides the time source. Use in tests.
func WithClock(fn func() time.Time) Option {
	return func(ctl *Controller) { ctl.now = fn }
}

// WithHooks sets the lifecycle notification hooks.
func WithHooks(h Hooks) Option {
	return func(ctl *Controller) { ctl.hooks = h }
}

// New creates a Controller over the given view. A nil view gets NopView.
func New(view View, cfg *Config, logger *slog.Logger, opts ...Option) *Controller {
	if view == nil {
		view = NopView{}
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	ctl := &Controller{
		view:     view,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
		activity: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ctl)
	}
	ctl.machine = NewMachine(cfg.Timeout, ctl.now())
	return ctl
}

// Touch records user activity. Non-blocking; concurrent signals coalesce.
func (ctl *Controller) Touch() {
	select {
	case ctl.activity <- struct{}{}:
	default:
	}
}

// Snapshot is the externally visible controller state.
type Snapshot struct {
	State          string `json:"state"`
	PendingURL     string `json:"pending_url,omitempty"`
	LastActivityAt int64  `json:"last_activity_at"` // UnixMilli
}

// Snapshot returns the current state for the HTTP surface.
func (ctl *Controller) Snapshot() Snapshot {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return Snapshot{
		State:          ctl.machine.State().String(),
		PendingURL:     ctl.machine.PendingURL(),
		LastActivityAt: ctl.machine.LastActivityAt().UnixMilli(),
	}
}

// Run processes activity signals and timer fires until ctx is cancelled.
func (ctl *Controller) Run(ctx context.Context) {
	timer := time.NewTimer(ctl.config.Timeout)
	defer timer.Stop()

	ctl.logger.Info("idle: controller started", "timeout", ctl.config.Timeout)
	for {
		select {
		case <-ctx.Done():
			ctl.logger.Info("idle: controller stopped")
			return
		case <-ctl.activity:
			ctl.step(ctx, EvActivity, timer)
		case <-timer.C:
			ctl.step(ctx, EvTimerFired, timer)
		}
	}
}

func (ctl *Controller) step(ctx context.Context, ev Event, timer *time.Timer) {
	in := Inputs{Now: ctl.now(), LoadedURL: ctl.view.LoadedURL()}

	ctl.mu.Lock()
	effects := ctl.machine.Apply(ev, in)
	ctl.mu.Unlock()

	for _, fx := range effects {
		ctl.execute(ctx, fx, timer)
	}
}

// execute applies one effect. View failures are logged and swallowed: the
// machine transition already happened and stands regardless.
func (ctl *Controller) execute(ctx context.Context, fx Effect, timer *time.Timer) {
	switch fx.Kind {
	case FxRestartTimer:
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(ctl.config.Timeout)

	case FxUnload:
		ctl.logger.Info("idle: hibernating", "url", fx.URL)
		if err := ctl.view.Unload(ctx); err != nil {
			ctl.logger.Warn("idle: unload failed", "url", fx.URL, "error", err)
		}

	case FxReload:
		ctl.logger.Info("idle: waking", "url", fx.URL)
		if err := ctl.view.Load(ctx, fx.URL); err != nil {
			ctl.logger.Warn("idle: reload failed", "url", fx.URL, "error", err)
		}

	case FxShowIndicator:
		if ctl.hooks.OnHibernate != nil {
			ctl.hooks.OnHibernate(fx.URL)
		}

	case FxHideIndicator:
		if ctl.hooks.OnWake != nil {
			ctl.hooks.OnWake(fx.URL)
		}
	}
}

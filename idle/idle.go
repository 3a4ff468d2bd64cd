// Package idle decides when the hosted panel hibernates and wakes.
//
// The decision logic is a pure state machine: Apply takes an event plus
// the observable inputs (clock, what is currently loaded) and returns the
// effects to execute. All side effects (timer management, unloading the
// view, notifications) live in the Controller, which owns the machine and
// runs every transition on a single goroutine.
package idle

import "time"

// State is the hibernation state.
type State int

const (
	// Active means the panel content is live.
	Active State = iota
	// Hibernated means the content was unloaded to reclaim resources and
	// its address is parked for reload on the next activity.
	Hibernated
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Hibernated:
		return "hibernated"
	default:
		return "unknown"
	}
}

// Event is an input to the machine.
type Event int

const (
	// EvActivity is any user interaction signal.
	EvActivity Event = iota
	// EvTimerFired means the idle timer elapsed.
	EvTimerFired
)

// EffectKind enumerates the machine's output commands.
type EffectKind int

const (
	// FxRestartTimer re-arms the idle timer for a full timeout.
	FxRestartTimer EffectKind = iota
	// FxUnload unloads the current content. URL carries the address
	// being parked.
	FxUnload
	// FxReload loads URL back into the view.
	FxReload
	// FxShowIndicator signals that hibernation happened (URL = parked address).
	FxShowIndicator
	// FxHideIndicator signals that the panel woke (URL = reloaded address, may be "").
	FxHideIndicator
)

// Effect is one command for the effect executor.
type Effect struct {
	Kind EffectKind
	URL  string
}

// Inputs carries the observable world state for a transition.
type Inputs struct {
	Now       time.Time
	LoadedURL string // currently loaded address, "" when nothing is loaded
}

// Machine is the pure hibernation state machine. Not safe for concurrent
// use; the Controller serializes access.
type Machine struct {
	timeout        time.Duration
	state          State
	lastActivityAt time.Time
	pendingURL     string
}

// NewMachine creates a machine in the Active state with the activity clock
// seeded at now.
func NewMachine(timeout time.Duration, now time.Time) *Machine {
	return &Machine{timeout: timeout, state: Active, lastActivityAt: now}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// PendingURL returns the address parked for reload, "" when none.
func (m *Machine) PendingURL() string { return m.pendingURL }

// LastActivityAt returns the time of the last recorded activity.
func (m *Machine) LastActivityAt() time.Time { return m.lastActivityAt }

// Apply advances the machine and returns the effects to execute, in order.
func (m *Machine) Apply(ev Event, in Inputs) []Effect {
	switch m.state {
	case Active:
		switch ev {
		case EvActivity:
			m.lastActivityAt = in.Now
			return []Effect{{Kind: FxRestartTimer}}
		case EvTimerFired:
			if in.LoadedURL == "" {
				// Nothing to hibernate. Keep ticking.
				return []Effect{{Kind: FxRestartTimer}}
			}
			if in.Now.Sub(m.lastActivityAt) < m.timeout {
				// Activity slipped in while the timer was in flight.
				return []Effect{{Kind: FxRestartTimer}}
			}
			m.state = Hibernated
			m.pendingURL = in.LoadedURL
			return []Effect{
				{Kind: FxUnload, URL: m.pendingURL},
				{Kind: FxShowIndicator, URL: m.pendingURL},
			}
		}
	case Hibernated:
		switch ev {
		case EvActivity:
			m.state = Active
			m.lastActivityAt = in.Now
			var fx []Effect
			reloaded := ""
			if m.pendingURL != "" {
				reloaded = m.pendingURL
				m.pendingURL = ""
				fx = append(fx, Effect{Kind: FxReload, URL: reloaded})
			}
			fx = append(fx,
				Effect{Kind: FxHideIndicator, URL: reloaded},
				Effect{Kind: FxRestartTimer},
			)
			return fx
		case EvTimerFired:
			// The timer is never re-armed during hibernation; a stray fire
			// changes nothing.
			return nil
		}
	}
	return nil
}

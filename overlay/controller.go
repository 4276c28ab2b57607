// Package overlay places and shows the Think Box window and runs its
// auto-hide and awareness timers.
package overlay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/thinkbox/internal/schedule"
	"go.aimuz.me/thinkbox/internal/types"
)

// ErrPinRequired is returned when awareness needs a pinned overlay.
var ErrPinRequired = errors.New("awareness requires the overlay to be pinned")

const defaultAwarenessMinutes = 10

// Window is the overlay surface. Implementations only need to be safe for
// calls from one goroutine at a time; the controller serializes them.
type Window interface {
	Show()
	Hide()
	Focus()
	SetAlwaysOnTop(on bool)
	SetBounds(r Rect)
}

// Display reports the screen the overlay appears on.
type Display interface {
	WorkArea() Rect
	Pointer() (Point, bool)
}

// Options are the overlay settings the controller acts on.
type Options struct {
	Enabled                  bool
	Position                 string
	SizePercent              float64
	AutoHideSeconds          int
	NoFocusSteal             bool
	AwarenessMinutes         int
	AwarenessIntervalSeconds int
	AwarenessRequirePin      bool
}

// OptionsFromSettings picks the overlay keys out of the settings bag.
func OptionsFromSettings(s types.OverlaySettings) Options {
	return Options{
		Enabled:                  s.Enabled,
		Position:                 s.Position,
		SizePercent:              s.SizePercent,
		AutoHideSeconds:          s.AutoHideSeconds,
		NoFocusSteal:             s.NoFocusSteal,
		AwarenessMinutes:         s.AwarenessMinutes,
		AwarenessIntervalSeconds: s.AwarenessIntervalSeconds,
		AwarenessRequirePin:      s.AwarenessRequirePin,
	}
}

// Snapshot is the observable controller state.
type Snapshot struct {
	Visible            bool `json:"visible"`
	Pinned             bool `json:"pinned"`
	Busy               bool `json:"busy"`
	AwarenessActive    bool `json:"awareness_active"`
	AwarenessRemaining int  `json:"awareness_remaining"`
}

// Controller owns the overlay window. All state changes go through its
// mutex, so timer ticks, hook callbacks and UI calls never interleave
// their mutations.
type Controller struct {
	create   func() Window
	display  Display
	onChange func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	tick   time.Duration

	mu           sync.Mutex
	win          Window
	bounds       Rect
	opts         Options
	visible      bool
	pinned       bool
	busy         bool
	lastActivity time.Time

	awareness    bool
	remaining    int
	awarenessGen int

	autoHide  schedule.Slot
	countdown schedule.Slot
	recapture schedule.Slot
}

// NewController creates a controller. The window is created by create on
// first show. onChange, if non-nil, runs with the controller locked and
// must not call back into it.
func NewController(create func() Window, display Display, opts Options, onChange func(Snapshot)) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		create:   create,
		display:  display,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		tick:     time.Second,
		opts:     opts,
	}
}

// Apply replaces the options. A disabled overlay is hidden at once.
func (c *Controller) Apply(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts = opts
	if !opts.Enabled && c.visible {
		c.hideLocked()
	} else if c.visible {
		c.placeLocked()
	}
	c.emitLocked()
}

// Toggle shows a hidden overlay and hides a visible one.
func (c *Controller) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visible {
		c.hideLocked()
	} else {
		c.showLocked()
	}
	c.emitLocked()
}

// Show makes the overlay visible. It reports false when the overlay is
// disabled.
func (c *Controller) Show() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.showLocked()
	c.emitLocked()
	return ok
}

// Hide hides the overlay, pinned or not.
func (c *Controller) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hideLocked()
	c.emitLocked()
}

// Reposition recomputes the geometry of a visible overlay.
func (c *Controller) Reposition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visible {
		c.placeLocked()
	}
}

// HandleKey processes a key pressed inside the overlay. Escape hides;
// anything else counts as activity.
func (c *Controller) HandleKey(key string) {
	if key == "Escape" || key == "Esc" {
		c.Hide()
		return
	}
	c.Touch()
}

// Touch records user activity, postponing auto-hide.
func (c *Controller) Touch() {
	c.mu.Lock()
	c.lastActivity = c.now()
	c.mu.Unlock()
}

// SetBusy marks a request as in flight. A busy overlay never auto-hides.
func (c *Controller) SetBusy(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busy = busy
	c.lastActivity = c.now()
	c.emitLocked()
}

// SetPinned changes the pin flag immediately and then calls commit, if
// given. When commit fails the flag is rolled back and the error returned.
// The window follows the flag with its always-on-top level; Show raises
// it again regardless.
func (c *Controller) SetPinned(pinned bool, commit func(bool) error) error {
	c.mu.Lock()
	prev := c.pinned
	c.setPinnedLocked(pinned)
	c.emitLocked()
	c.mu.Unlock()

	if commit == nil {
		return nil
	}
	if err := commit(pinned); err != nil {
		c.mu.Lock()
		// Only roll back if nobody changed the flag in the meantime.
		if c.pinned == pinned {
			c.setPinnedLocked(prev)
			c.emitLocked()
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Contains reports whether p falls inside the visible overlay.
func (c *Controller) Contains(p Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible && c.bounds.Contains(p)
}

// Visible reports whether the overlay is shown.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Pinned reports the pin flag.
func (c *Controller) Pinned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// Close stops every timer.
func (c *Controller) Close() {
	c.cancel()
	c.autoHide.Stop()
	c.countdown.Stop()
	c.recapture.Stop()
}

// ─────────────────────────────────────────────────────────────────────────────
// Awareness
// ─────────────────────────────────────────────────────────────────────────────

// StartAwareness begins a timed awareness session. recapture, if non-nil,
// runs every AwarenessIntervalSeconds while the session lasts.
func (c *Controller) StartAwareness(recapture func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.AwarenessRequirePin && !c.pinned {
		return ErrPinRequired
	}

	minutes := c.opts.AwarenessMinutes
	if minutes <= 0 {
		minutes = defaultAwarenessMinutes
	}
	c.awareness = true
	c.remaining = minutes * 60
	c.lastActivity = c.now()
	c.awarenessGen++
	gen := c.awarenessGen

	// Slot.Start does not wait for the old task, so ticks carry the
	// generation they were started for.
	c.countdown.Start(c.ctx, c.tick, func() { c.awarenessTick(gen) })
	if interval := c.opts.AwarenessIntervalSeconds; interval > 0 && recapture != nil {
		c.recapture.Start(c.ctx, time.Duration(interval)*c.tick, func() {
			if c.awarenessCurrent(gen) {
				recapture()
			}
		})
	} else {
		c.recapture.Stop()
	}

	slog.Info("awareness started", "seconds", c.remaining)
	c.emitLocked()
	return nil
}

// StopAwareness ends the awareness session.
func (c *Controller) StopAwareness() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopAwarenessLocked()
	c.emitLocked()
}

// Awareness reports whether a session is running and its seconds left.
func (c *Controller) Awareness() (active bool, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awareness, c.remaining
}

// ToggleAwareness starts or stops awareness.
func (c *Controller) ToggleAwareness(recapture func()) error {
	if active, _ := c.Awareness(); active {
		c.StopAwareness()
		return nil
	}
	return c.StartAwareness(recapture)
}

func (c *Controller) awarenessCurrent(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awareness && c.awarenessGen == gen
}

func (c *Controller) awarenessTick(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.awareness || c.awarenessGen != gen {
		return
	}
	c.remaining--
	if c.remaining <= 0 || (c.opts.AwarenessRequirePin && !c.pinned) {
		c.stopAwarenessLocked()
	}
	c.emitLocked()
}

func (c *Controller) stopAwarenessLocked() {
	if !c.awareness {
		return
	}
	c.awareness = false
	c.remaining = 0
	c.awarenessGen++
	c.countdown.Stop()
	c.recapture.Stop()
	slog.Info("awareness stopped")
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals (c.mu held)
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) showLocked() bool {
	if !c.opts.Enabled {
		slog.Debug("overlay disabled, not showing")
		return false
	}
	if c.win == nil {
		c.win = c.create()
	}

	c.placeLocked()
	c.win.SetAlwaysOnTop(true)
	c.win.Show()
	if !c.opts.NoFocusSteal {
		c.win.Focus()
	}

	c.visible = true
	c.lastActivity = c.now()
	c.autoHide.Start(c.ctx, c.tick, c.autoHideCheck)
	return true
}

func (c *Controller) hideLocked() {
	c.autoHide.Stop()
	if !c.visible {
		return
	}
	if c.win != nil {
		c.win.Hide()
	}
	c.visible = false
}

func (c *Controller) placeLocked() {
	var ptr Point
	if c.display == nil {
		return
	}
	if p, ok := c.display.Pointer(); ok {
		ptr = p
	}
	c.bounds = ComputeGeometry(c.opts.SizePercent, c.opts.Position, c.display.WorkArea(), ptr)
	c.win.SetBounds(c.bounds)
}

func (c *Controller) autoHideCheck() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.visible || c.pinned || c.busy || c.opts.AutoHideSeconds <= 0 {
		return
	}
	idle := c.now().Sub(c.lastActivity)
	if idle >= time.Duration(c.opts.AutoHideSeconds)*time.Second {
		slog.Debug("overlay auto-hide", "idle", idle)
		c.hideLocked()
		c.emitLocked()
	}
}

func (c *Controller) setPinnedLocked(pinned bool) {
	c.pinned = pinned
	if c.win != nil {
		c.win.SetAlwaysOnTop(pinned)
	}
	if !pinned && c.opts.AwarenessRequirePin {
		c.stopAwarenessLocked()
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Visible:            c.visible,
		Pinned:             c.pinned,
		Busy:               c.busy,
		AwarenessActive:    c.awareness,
		AwarenessRemaining: c.remaining,
	}
}

func (c *Controller) emitLocked() {
	if c.onChange != nil {
		c.onChange(c.snapshotLocked())
	}
}

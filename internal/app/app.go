// Package app provides the core application service for Wails bindings.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/thinkbox/config"
	"go.aimuz.me/thinkbox/hotkey"
	"go.aimuz.me/thinkbox/internal/types"
	"go.aimuz.me/thinkbox/overlay"
	"go.aimuz.me/thinkbox/permission"
	"go.aimuz.me/thinkbox/session"
)

const settingsTimeout = 10 * time.Second

// Backend is everything the shell needs from the agent service.
type Backend interface {
	session.Backend
	permission.Backend
	OverlaySettings(ctx context.Context) (types.OverlaySettings, error)
	UpdateSettings(ctx context.Context, patch map[string]any) (map[string]any, error)
	SettingsRegistry(ctx context.Context, refresh bool) ([]types.SettingsEntry, error)
	RevokePermission(ctx context.Context, perm types.Permission) error
	Grants(ctx context.Context) ([]types.PermissionGrant, error)
	Thumbnail(captureID string) (string, bool)
}

// ActivitySource reports global input and the pointer position.
type ActivitySource interface {
	OnActivity(fn func())
	Pointer() (x, y int, ok bool)
}

// Deps are the collaborators wired in by main.
type Deps struct {
	Config     *config.Config
	Backend    Backend
	Capturer   session.Capturer
	Registrar  hotkey.Registrar
	Display    overlay.Display
	NewOverlay func() overlay.Window
	Activity   ActivitySource
	Startup    *Startup
	Emit       func(name string, data any)

	// OnLogLevel is called when a reloaded config changes the log level.
	OnLogLevel func(level string)
}

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; behavior lives in the controllers.
type Service struct {
	version string

	ctx    context.Context
	cancel context.CancelFunc

	backend  Backend
	capturer session.Capturer
	startup  *Startup
	notify   func(name string, data any)
	logLevel func(string)

	overlay  *overlay.Controller
	gate     *permission.Gate
	session  *session.Controller
	hotkeys  *hotkey.Manager
	handlers map[string]handler

	mu       sync.Mutex
	cfg      *config.Config
	settings types.OverlaySettings
	applied  bool
}

// New creates a new Service. Call Init() before the app runs.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init builds the controllers. Settings start at their defaults until
// ReloadSettings reaches the backend.
func (s *Service) Init(d Deps) {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.backend = d.Backend
	s.capturer = d.Capturer
	s.startup = d.Startup
	s.notify = d.Emit
	s.logLevel = d.OnLogLevel
	s.cfg = d.Config
	if s.cfg == nil {
		s.cfg = &config.Config{}
	}
	s.settings = types.DefaultOverlaySettings()

	s.gate = permission.NewGate(d.Backend, func(p *permission.Prompt) {
		s.emit(EventPermissionPrompt, p)
	})
	s.overlay = overlay.NewController(d.NewOverlay, d.Display, overlay.OptionsFromSettings(s.settings), func(snap overlay.Snapshot) {
		s.emit(EventOverlayState, snap)
	})
	s.session = session.New(d.Backend, s.gate, d.Capturer, s.overlay, session.OptionsFromSettings(s.settings), func(st session.State) {
		s.emit(EventSessionState, st)
	})
	s.hotkeys = hotkey.NewManager(d.Registrar, s.onHotkey)
	s.handlers = s.routes()

	if d.Activity != nil {
		s.watchActivity(d.Activity)
	}
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.hotkeys != nil {
		s.hotkeys.Close()
	}
	if s.overlay != nil {
		s.overlay.Close()
	}
}

// emit is a safe wrapper around the app event bus.
func (s *Service) emit(name string, data any) {
	if s.notify != nil {
		s.notify(name, data)
	}
}

// ready reports whether settings from a started backend have been applied.
// The overlay window is never created before that.
func (s *Service) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

func (s *Service) onHotkey() {
	if !s.ready() {
		slog.Debug("backend not ready, ignoring overlay toggle")
		return
	}
	s.overlay.Toggle()
	if s.overlay.Visible() {
		s.opened()
	}
}

func (s *Service) opened() {
	if err := s.session.Open(s.ctx); err != nil {
		slog.Warn("open thinkbox session", "error", err)
	}
}

// watchActivity resets the overlay idle timer for input over the overlay.
func (s *Service) watchActivity(src ActivitySource) {
	src.OnActivity(func() {
		x, y, ok := src.Pointer()
		if ok && s.overlay.Contains(overlay.Point{X: x, Y: y}) {
			s.overlay.Touch()
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings & Config
// ─────────────────────────────────────────────────────────────────────────────

// ReloadSettings fetches the overlay settings and applies them. Defaults
// are used when the backend is unreachable.
func (s *Service) ReloadSettings() types.OverlaySettings {
	ctx, cancel := context.WithTimeout(s.ctx, settingsTimeout)
	defer cancel()

	st, err := s.backend.OverlaySettings(ctx)
	if err != nil {
		slog.Warn("load overlay settings, using defaults", "error", err)
		st = types.DefaultOverlaySettings()
	}
	return s.applySettings(st)
}

// GetSettings returns the settings in effect.
func (s *Service) GetSettings() types.OverlaySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Service) applySettings(st types.OverlaySettings) types.OverlaySettings {
	s.mu.Lock()
	if s.cfg.Hotkey != "" {
		st.Hotkey = s.cfg.Hotkey
	}
	first := !s.applied
	s.settings = st
	s.applied = true
	s.mu.Unlock()

	s.overlay.Apply(overlay.OptionsFromSettings(st))
	if first {
		s.session.Reset(session.OptionsFromSettings(st))
		if st.PinDefault {
			_ = s.overlay.SetPinned(true, nil)
		}
		if st.AwarenessDefault {
			if err := s.overlay.StartAwareness(s.recapture); err != nil {
				slog.Info("awareness not started", "error", err)
			}
		}
	} else {
		s.session.Apply(session.OptionsFromSettings(st))
	}

	status := s.hotkeys.Register(st.Hotkey, st.Enabled)
	s.emit(EventHotkeyStatus, status)
	s.emit(EventSettings, st)
	return st
}

// applyConfig takes a reloaded config file into effect.
func (s *Service) applyConfig(cfg *config.Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	st := s.settings
	applied := s.applied
	s.mu.Unlock()

	if prev.Log.Level != cfg.Log.Level && s.logLevel != nil {
		s.logLevel(cfg.Log.Level)
	}
	if prev.Hotkey != cfg.Hotkey && applied {
		slog.Info("hotkey override changed", "hotkey", cfg.Hotkey)
		s.applySettings(st)
	}
}

// WatchConfig applies config file edits until Shutdown.
func (s *Service) WatchConfig(path string) {
	go func() {
		if err := config.Watch(s.ctx, path, s.applyConfig); err != nil {
			slog.Warn("watch config", "path", path, "error", err)
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Overlay
// ─────────────────────────────────────────────────────────────────────────────

// ToggleOverlay shows or hides the Think Box. It does nothing until the
// backend is ready.
func (s *Service) ToggleOverlay() Result {
	if !s.ready() {
		return Result{OK: false}
	}
	s.onHotkey()
	return Result{OK: true}
}

// ShowOverlay shows the Think Box. It does nothing until the backend is
// ready.
func (s *Service) ShowOverlay() Result {
	if !s.ready() {
		return Result{OK: false}
	}
	if s.overlay.Show() {
		s.opened()
	}
	return Result{OK: true}
}

// RepositionOverlay recomputes the overlay geometry, e.g. after a display
// change.
func (s *Service) RepositionOverlay() Result {
	s.overlay.Reposition()
	return Result{OK: true}
}

// CloseOverlay hides the Think Box. An in-flight answer keeps streaming.
func (s *Service) CloseOverlay() Result {
	s.overlay.Hide()
	return Result{OK: true}
}

// SetPin pins or unpins the overlay. With remember_pin the choice is
// saved as the backend's pin default and rolled back if that fails.
func (s *Service) SetPin(pinned bool) PinResult {
	s.mu.Lock()
	remember := s.cfg.RememberPin
	s.mu.Unlock()

	var commit func(bool) error
	if remember {
		commit = func(p bool) error {
			ctx, cancel := context.WithTimeout(s.ctx, settingsTimeout)
			defer cancel()
			_, err := s.backend.UpdateSettings(ctx, map[string]any{"thinkbox_pin_default": p})
			return err
		}
	}

	if err := s.overlay.SetPinned(pinned, commit); err != nil {
		slog.Warn("save pin", "error", err)
		return PinResult{OK: false, Pinned: s.overlay.Pinned(), Error: err.Error()}
	}
	return PinResult{OK: true, Pinned: pinned}
}

// OverlayKey handles a key pressed inside the overlay.
func (s *Service) OverlayKey(key string) Result {
	s.overlay.HandleKey(key)
	return Result{OK: true}
}

// Activity records user interaction with the overlay.
func (s *Service) Activity() Result {
	s.overlay.Touch()
	return Result{OK: true}
}

// ToggleAwareness starts or stops the awareness countdown.
func (s *Service) ToggleAwareness() (overlay.Snapshot, error) {
	err := s.overlay.ToggleAwareness(s.recapture)
	return s.overlay.Snapshot(), err
}

func (s *Service) recapture() {
	if err := s.session.Capture(s.ctx); err != nil {
		slog.Warn("awareness recapture", "error", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Hotkey
// ─────────────────────────────────────────────────────────────────────────────

// UpdateHotkey re-registers the accelerator with the given changes.
func (s *Service) UpdateHotkey(req HotkeyUpdate) types.HotkeyStatus {
	s.mu.Lock()
	if req.Hotkey != nil {
		s.settings.Hotkey = *req.Hotkey
	}
	if req.Enabled != nil {
		s.settings.Enabled = *req.Enabled
	}
	st := s.settings
	s.mu.Unlock()

	status := s.hotkeys.Register(st.Hotkey, st.Enabled)
	s.emit(EventHotkeyStatus, status)
	return status
}

// GetHotkeyStatus returns the current registration.
func (s *Service) GetHotkeyStatus() types.HotkeyStatus {
	return s.hotkeys.Status()
}

// GetSettingsRegistry describes every backend settings key.
func (s *Service) GetSettingsRegistry(refresh bool) ([]types.SettingsEntry, error) {
	ctx, cancel := context.WithTimeout(s.ctx, settingsTimeout)
	defer cancel()
	return s.backend.SettingsRegistry(ctx, refresh)
}

// ─────────────────────────────────────────────────────────────────────────────
// Permissions
// ─────────────────────────────────────────────────────────────────────────────

// GetGrants lists the permission grants of this session.
func (s *Service) GetGrants() ([]types.PermissionGrant, error) {
	ctx, cancel := context.WithTimeout(s.ctx, settingsTimeout)
	defer cancel()
	return s.backend.Grants(ctx)
}

// RevokePermission drops a stored grant, so the next use prompts again.
func (s *Service) RevokePermission(perm types.Permission) (Result, error) {
	ctx, cancel := context.WithTimeout(s.ctx, settingsTimeout)
	defer cancel()
	if err := s.backend.RevokePermission(ctx, perm); err != nil {
		slog.Warn("revoke permission", "permission", perm, "error", err)
		return Result{OK: false}, err
	}
	return Result{OK: true}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// CaptureScreen grabs the screen locally without uploading it.
func (s *Service) CaptureScreen(req CaptureScreenRequest) (types.LocalCapture, error) {
	if req.Source == "" {
		req.Source = types.SourceActiveWindow
	}
	return s.capturer.Capture(s.ctx, req.Source, req.Region)
}

// Send asks the backend and streams the answer into the session.
func (s *Service) Send(text string) session.State {
	return s.run("send", func(ctx context.Context) error { return s.session.Send(ctx, text) })
}

// Capture captures the screen into the session.
func (s *Service) Capture() session.State {
	return s.run("capture", s.session.Capture)
}

// ResolvePermission answers the pending permission prompt.
func (s *Service) ResolvePermission(scope types.Scope) session.State {
	return s.run("resolve permission", func(ctx context.Context) error {
		return s.session.ResolvePermission(ctx, scope)
	})
}

// ReadClipboard pulls clipboard text into the session.
func (s *Service) ReadClipboard() session.State {
	return s.run("read clipboard", s.session.ReadClipboard)
}

// CopyAnswer copies the answer to the clipboard.
func (s *Service) CopyAnswer() session.State {
	return s.run("copy answer", s.session.CopyAnswer)
}

// SetMode changes the answer mode.
func (s *Service) SetMode(mode types.Mode) session.State {
	return s.run("set mode", func(ctx context.Context) error { return s.session.SetMode(ctx, mode) })
}

// SetText records the draft message.
func (s *Service) SetText(text string) session.State {
	s.session.SetText(text)
	return s.session.Snapshot()
}

// SetToggles changes the per-message switches.
func (s *Service) SetToggles(t session.Toggles) session.State {
	s.session.SetToggles(t)
	return s.session.Snapshot()
}

// SetCaptureSource selects active-window or region capture.
func (s *Service) SetCaptureSource(source types.CaptureSource) session.State {
	s.session.SetCaptureSource(source)
	return s.session.Snapshot()
}

// SetRegion sets the region capture rectangle.
func (s *Service) SetRegion(r types.Region) session.State {
	s.session.SetRegion(r)
	return s.session.Snapshot()
}

// SetFrozen freezes or releases the current capture.
func (s *Service) SetFrozen(frozen bool) session.State {
	s.session.SetFrozen(frozen)
	return s.session.Snapshot()
}

// SetSelectedText records highlighted text for the next message.
func (s *Service) SetSelectedText(text string) session.State {
	s.session.SetSelectedText(text)
	return s.session.Snapshot()
}

// GetState returns the session state.
func (s *Service) GetState() session.State {
	return s.session.Snapshot()
}

// GetThumbnail returns a capture thumbnail stored earlier in this run.
func (s *Service) GetThumbnail(captureID string) ThumbnailResult {
	url, ok := s.backend.Thumbnail(captureID)
	return ThumbnailResult{OK: ok, DataURL: url}
}

// GetBackendStatus returns the startup phase for the splash window.
func (s *Service) GetBackendStatus() BackendStatus {
	if s.startup == nil {
		return BackendStatus{}
	}
	return s.startup.Status()
}

// run executes a session action. Failures are already reflected in the
// session status, so they are only logged here.
func (s *Service) run(name string, fn func(ctx context.Context) error) session.State {
	if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("session action failed", "action", name, "error", err)
	}
	return s.session.Snapshot()
}

// ─────────────────────────────────────────────────────────────────────────────
// Dispatch
// ─────────────────────────────────────────────────────────────────────────────

// Invoke runs a named shell action with a JSON payload.
func (s *Service) Invoke(channel string, payload json.RawMessage) (any, error) {
	return s.dispatch(channel, payload)
}

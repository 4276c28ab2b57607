// Package session drives one Think Box conversation: capture, send,
// clipboard access and permission replay.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.aimuz.me/thinkbox/internal/types"
	"go.aimuz.me/thinkbox/overlay"
	"go.aimuz.me/thinkbox/permission"
	"go.aimuz.me/thinkbox/screenshot"
	"go.aimuz.me/thinkbox/stream"
)

// Phase is the controller's coarse state.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingPermission Phase = "awaiting_permission"
	PhaseBusy               Phase = "busy"
)

// ErrBusy is returned by Send while a request is already streaming.
var ErrBusy = errors.New("a request is already running")

const defaultFailureStatus = "Think Box request failed."

// Backend is the part of the backend API a session uses.
type Backend interface {
	SubmitMessage(ctx context.Context, req types.MessageRequest) (string, error)
	OpenStream(ctx context.Context, runID string) (io.ReadCloser, error)
	Capture(ctx context.Context, req types.CaptureRequest) (types.CaptureResult, error)
	ReadClipboard(ctx context.Context) (string, error)
	WriteClipboard(ctx context.Context, text string) error
}

// Gate authorizes privileged actions.
type Gate interface {
	Ensure(ctx context.Context, perm types.Permission, action types.Action) (bool, error)
	Resolve(ctx context.Context, scope types.Scope) (permission.Prompt, bool, error)
	Pending() (permission.Prompt, bool)
}

// Capturer grabs the screen locally.
type Capturer interface {
	Capture(ctx context.Context, source types.CaptureSource, region *types.Region) (types.LocalCapture, error)
}

// Overlay is the window state a session reads and marks busy.
type Overlay interface {
	SetBusy(busy bool)
	Touch()
	Snapshot() overlay.Snapshot
}

// Toggles are the per-message switches.
type Toggles struct {
	Clipboard  bool `json:"clipboard"`
	Files      bool `json:"files"`
	MultiAgent bool `json:"multi_agent"`
}

// Options are the settings-derived behaviors of a session.
type Options struct {
	SafeMode            bool
	DefaultMode         types.Mode
	CaptureDefault      types.CaptureSource
	CaptureOnOpen       bool
	CaptureOnModeChange bool
	ClearTextOnSend     bool
	RememberLastText    bool
	StatusToastSeconds  int
}

// OptionsFromSettings picks the session keys out of the settings bag.
func OptionsFromSettings(s types.OverlaySettings) Options {
	return Options{
		SafeMode:            s.SafeModeDefault,
		DefaultMode:         s.DefaultMode,
		CaptureDefault:      s.CaptureDefault,
		CaptureOnOpen:       s.CaptureOnOpen,
		CaptureOnModeChange: s.CaptureOnModeChange,
		ClearTextOnSend:     s.ClearTextOnSend,
		RememberLastText:    s.RememberLastText,
		StatusToastSeconds:  s.StatusToastSeconds,
	}
}

// State is the observable session state.
type State struct {
	Phase              Phase               `json:"phase"`
	Mode               types.Mode          `json:"mode"`
	Toggles            Toggles             `json:"toggles"`
	CaptureSource      types.CaptureSource `json:"capture_source"`
	Region             types.Region        `json:"region"`
	CaptureID          string              `json:"capture_id,omitempty"`
	Thumbnail          string              `json:"thumbnail,omitempty"`
	Frozen             bool                `json:"frozen"`
	Text               string              `json:"text"`
	SelectedText       string              `json:"selected_text,omitempty"`
	ClipboardText      string              `json:"clipboard_text,omitempty"`
	Response           string              `json:"response"`
	Status             string              `json:"status"`
	Prompt             *permission.Prompt  `json:"prompt,omitempty"`
	Pinned             bool                `json:"pinned"`
	Visible            bool                `json:"visible"`
	AwarenessActive    bool                `json:"awareness_active"`
	AwarenessRemaining int                 `json:"awareness_remaining"`
	LastActivityAt     time.Time           `json:"last_activity_at"`
}

// Controller holds the session state. Network calls run without the lock;
// every state change takes it.
type Controller struct {
	backend  Backend
	gate     Gate
	capturer Capturer
	overlay  Overlay
	onChange func(State)
	now      func() time.Time

	mu            sync.Mutex
	opts          Options
	phase         Phase
	mode          types.Mode
	toggles       Toggles
	source        types.CaptureSource
	region        types.Region
	captureID     string
	thumbnail     string
	frozen        bool
	text          string
	lastText      string
	selectedText  string
	clipboardText string
	response      string
	status        string
	statusGen     int
	lastActivity  time.Time
}

// New creates a session controller. onChange may be nil; it is called
// without the controller lock held.
func New(backend Backend, gate Gate, capturer Capturer, ov Overlay, opts Options, onChange func(State)) *Controller {
	c := &Controller{
		backend:  backend,
		gate:     gate,
		capturer: capturer,
		overlay:  ov,
		onChange: onChange,
		now:      time.Now,
		phase:    PhaseIdle,
		region:   types.Region{X: 0, Y: 0, W: 640, H: 420},
	}
	c.applyLocked(opts)
	c.mode = c.opts.DefaultMode
	c.source = c.opts.CaptureDefault
	c.lastActivity = c.now()
	return c
}

// Apply replaces the options. Mode and capture source are left as the
// user set them.
func (c *Controller) Apply(opts Options) {
	c.mu.Lock()
	c.applyLocked(opts)
	c.mu.Unlock()
	c.emit()
}

// Reset applies opts and returns mode and capture source to their
// configured defaults.
func (c *Controller) Reset(opts Options) {
	c.mu.Lock()
	c.applyLocked(opts)
	c.mode = c.opts.DefaultMode
	c.source = c.opts.CaptureDefault
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) applyLocked(opts Options) {
	if opts.DefaultMode == "" {
		opts.DefaultMode = types.ModeScreenHelp
	}
	if opts.CaptureDefault == "" {
		opts.CaptureDefault = types.SourceActiveWindow
	}
	c.opts = opts
}

// Snapshot returns the current state merged with the overlay's.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	s := State{
		Phase:          c.phase,
		Mode:           c.mode,
		Toggles:        c.toggles,
		CaptureSource:  c.source,
		Region:         c.region,
		CaptureID:      c.captureID,
		Thumbnail:      c.thumbnail,
		Frozen:         c.frozen,
		Text:           c.text,
		SelectedText:   c.selectedText,
		ClipboardText:  c.clipboardText,
		Response:       c.response,
		Status:         c.status,
		LastActivityAt: c.lastActivity,
	}
	c.mu.Unlock()

	if p, ok := c.gate.Pending(); ok {
		s.Prompt = &p
	}
	if c.overlay != nil {
		ov := c.overlay.Snapshot()
		s.Pinned = ov.Pinned
		s.Visible = ov.Visible
		s.AwarenessActive = ov.AwarenessActive
		s.AwarenessRemaining = ov.AwarenessRemaining
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Setters
// ─────────────────────────────────────────────────────────────────────────────

// SetMode switches the answer mode, capturing first when configured to.
func (c *Controller) SetMode(ctx context.Context, mode types.Mode) error {
	c.mu.Lock()
	changed := c.mode != mode
	c.mode = mode
	captureOnChange := c.opts.CaptureOnModeChange
	c.touchLocked()
	c.mu.Unlock()
	c.touchOverlay()
	c.emit()

	if changed && captureOnChange {
		return c.Capture(ctx)
	}
	return nil
}

// SetToggles replaces the per-message switches.
func (c *Controller) SetToggles(t Toggles) {
	c.mu.Lock()
	c.toggles = t
	c.touchLocked()
	c.mu.Unlock()
	c.touchOverlay()
	c.emit()
}

// SetCaptureSource selects what Capture grabs.
func (c *Controller) SetCaptureSource(source types.CaptureSource) {
	c.mu.Lock()
	c.source = source
	c.mu.Unlock()
	c.emit()
}

// SetRegion sets the rectangle used for region captures.
func (c *Controller) SetRegion(r types.Region) {
	c.mu.Lock()
	c.region = r
	c.mu.Unlock()
	c.emit()
}

// SetFrozen pins the current capture id so later captures don't replace it.
func (c *Controller) SetFrozen(frozen bool) {
	c.mu.Lock()
	c.frozen = frozen
	c.mu.Unlock()
	c.emit()
}

// SetSelectedText records text the user highlighted.
func (c *Controller) SetSelectedText(text string) {
	c.mu.Lock()
	c.selectedText = text
	c.mu.Unlock()
	c.emit()
}

// SetText records the draft message.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.touchLocked()
	c.mu.Unlock()
	c.touchOverlay()
}

// ─────────────────────────────────────────────────────────────────────────────
// Actions
// ─────────────────────────────────────────────────────────────────────────────

// Open prepares the session for a freshly shown overlay.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opts.RememberLastText && c.text == "" {
		c.text = c.lastText
	}
	captureOnOpen := c.opts.CaptureOnOpen
	c.mu.Unlock()
	c.emit()

	if captureOnOpen {
		return c.Capture(ctx)
	}
	return nil
}

// Capture grabs the screen and stores it on the backend. Where no local
// capture tool exists the backend takes the capture itself.
func (c *Controller) Capture(ctx context.Context) error {
	ok, err := c.ensure(ctx, types.PermScreenCapture, types.ActionCapture)
	if err != nil || !ok {
		return err
	}

	c.mu.Lock()
	source := c.source
	var region *types.Region
	if source == types.SourceRegion {
		r := c.region
		region = &r
	}
	c.mu.Unlock()

	local, err := c.capturer.Capture(ctx, source, region)
	switch {
	case errors.Is(err, screenshot.ErrUnsupported):
		slog.Debug("no local capture, sending request without image", "source", source)
	case err != nil:
		return c.fail(fmt.Errorf("capture screen: %w", err))
	}

	res, err := c.backend.Capture(ctx, types.CaptureRequest{
		Source:       source,
		Region:       region,
		ImageDataURL: local.ImageDataURL,
	})
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	if !c.frozen || c.captureID == "" {
		c.captureID = res.CaptureID
	}
	c.thumbnail = res.ThumbnailDataURL
	c.setStatusLocked(fmt.Sprintf("Captured %s.", strings.Replace(string(source), "_", " ", 1)))
	c.mu.Unlock()
	c.emit()
	return nil
}

// Send submits text and streams the answer into the response. Empty text
// is ignored.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.phase == PhaseBusy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.text = text
	mode, files := c.mode, c.toggles.Files
	c.mu.Unlock()

	if mode == types.ModeResearch {
		if ok, err := c.ensure(ctx, types.PermWebSearch, types.ActionSend); err != nil || !ok {
			return err
		}
	}
	if files {
		if ok, err := c.ensure(ctx, types.PermFilesystemRead, types.ActionSend); err != nil || !ok {
			return err
		}
	}

	awareness := false
	if c.overlay != nil {
		awareness = c.overlay.Snapshot().AwarenessActive
	}

	c.mu.Lock()
	if c.phase == PhaseBusy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.phase = PhaseBusy
	c.response = ""
	c.status = ""
	c.touchLocked()
	req := c.requestLocked(text, awareness)
	c.mu.Unlock()

	if c.overlay != nil {
		c.overlay.SetBusy(true)
	}
	c.touchOverlay()
	c.emit()

	err := c.run(ctx, req)
	_, pending := c.gate.Pending()

	c.mu.Lock()
	c.phase = PhaseIdle
	if pending {
		c.phase = PhaseAwaitingPermission
	}
	if err == nil {
		if c.opts.ClearTextOnSend {
			c.text = ""
		}
		if c.opts.RememberLastText {
			c.lastText = text
		}
	}
	c.mu.Unlock()

	if c.overlay != nil {
		c.overlay.SetBusy(false)
	}
	if err != nil {
		return c.fail(err)
	}
	c.emit()
	return nil
}

func (c *Controller) run(ctx context.Context, req types.MessageRequest) error {
	runID, err := c.backend.SubmitMessage(ctx, req)
	if err != nil {
		return err
	}
	slog.Debug("thinkbox run started", "run_id", runID, "mode", req.Mode)

	body, err := c.backend.OpenStream(ctx, runID)
	if err != nil {
		return err
	}
	defer body.Close()

	for ev, err := range stream.NewDecoder(body).Events() {
		if err != nil {
			return err
		}

		c.mu.Lock()
		switch e := ev.(type) {
		case stream.TokenEvent:
			c.response += e.Content
		case stream.FallbackModeEvent:
			mode := e.Mode
			if mode == "" {
				mode = "search_answer"
			}
			c.setStatusLocked("Fallback mode active: " + mode)
		case stream.ErrorEvent:
			detail := e.Detail
			if detail == "" {
				detail = defaultFailureStatus
			}
			c.setStatusLocked(detail)
		case stream.DoneEvent:
			c.mu.Unlock()
			return nil
		case stream.UnknownEvent:
			slog.Debug("ignoring stream event", "type", e.Type)
		}
		c.touchLocked()
		c.mu.Unlock()
		c.touchOverlay()
		c.emit()
	}
	return nil
}

// ReadClipboard pulls the clipboard text into the session context.
func (c *Controller) ReadClipboard(ctx context.Context) error {
	ok, err := c.ensure(ctx, types.PermClipboardRead, types.ActionClipboardRead)
	if err != nil || !ok {
		return err
	}

	text, err := c.backend.ReadClipboard(ctx)
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	c.clipboardText = text
	c.mu.Unlock()
	c.emit()
	return nil
}

// CopyAnswer writes the response to the clipboard. An empty response is a
// no-op.
func (c *Controller) CopyAnswer(ctx context.Context) error {
	c.mu.Lock()
	response := c.response
	c.mu.Unlock()
	if strings.TrimSpace(response) == "" {
		return nil
	}

	ok, err := c.ensure(ctx, types.PermClipboardWrite, types.ActionClipboardWrite)
	if err != nil || !ok {
		return err
	}

	if err := c.backend.WriteClipboard(ctx, response); err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	c.setStatusLocked("Answer copied.")
	c.mu.Unlock()
	c.emit()
	return nil
}

// ResolvePermission answers the pending prompt and, on a grant, replays
// the action that raised it.
func (c *Controller) ResolvePermission(ctx context.Context, scope types.Scope) error {
	p, granted, err := c.gate.Resolve(ctx, scope)
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	if c.phase == PhaseAwaitingPermission {
		c.phase = PhaseIdle
	}
	if !granted {
		c.setStatusLocked("Denied " + string(p.Permission))
	}
	text := c.text
	c.mu.Unlock()
	c.emit()

	if !granted {
		return nil
	}

	switch p.Action {
	case types.ActionCapture:
		return c.Capture(ctx)
	case types.ActionSend:
		return c.Send(ctx, text)
	case types.ActionClipboardRead:
		return c.ReadClipboard(ctx)
	case types.ActionClipboardWrite:
		return c.CopyAnswer(ctx)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// ensure runs the permission check. A missing grant moves the session to
// AwaitingPermission and reports false with no error.
func (c *Controller) ensure(ctx context.Context, perm types.Permission, action types.Action) (bool, error) {
	ok, err := c.gate.Ensure(ctx, perm, action)
	if err != nil {
		return false, c.fail(err)
	}
	if !ok {
		c.mu.Lock()
		if c.phase != PhaseBusy {
			c.phase = PhaseAwaitingPermission
		}
		c.mu.Unlock()
		c.emit()
	}
	return ok, nil
}

func (c *Controller) requestLocked(text string, awareness bool) types.MessageRequest {
	ctx := map[string]any{}
	if c.frozen && c.captureID != "" {
		ctx["frozen_capture_id"] = c.captureID
	}
	if c.selectedText != "" {
		ctx["selected_text"] = c.selectedText
	}
	if c.toggles.Clipboard && c.clipboardText != "" {
		ctx["clipboard_text"] = c.clipboardText
	}

	return types.MessageRequest{
		Text: text,
		Mode: c.mode,
		Toggles: map[string]any{
			"safe_mode":   c.opts.SafeMode,
			"clipboard":   c.toggles.Clipboard,
			"files":       c.toggles.Files,
			"multi_agent": c.toggles.MultiAgent,
			"awareness":   awareness,
		},
		Context: ctx,
	}
}

// fail records err as the status and returns it.
func (c *Controller) fail(err error) error {
	slog.Warn("thinkbox action failed", "error", err)
	_, pending := c.gate.Pending()
	c.mu.Lock()
	c.setStatusLocked(err.Error())
	if c.phase == PhaseAwaitingPermission && !pending {
		c.phase = PhaseIdle
	}
	c.mu.Unlock()
	c.emit()
	return err
}

func (c *Controller) touchLocked() {
	c.lastActivity = c.now()
}

// touchOverlay resets the overlay idle timer. Never call it with c.mu held.
func (c *Controller) touchOverlay() {
	if c.overlay != nil {
		c.overlay.Touch()
	}
}

// setStatusLocked sets the status line and schedules it to clear after
// the toast duration.
func (c *Controller) setStatusLocked(msg string) {
	c.status = msg
	c.statusGen++
	gen := c.statusGen

	seconds := max(1, c.opts.StatusToastSeconds)
	time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		c.mu.Lock()
		if c.statusGen != gen {
			c.mu.Unlock()
			return
		}
		c.status = ""
		c.mu.Unlock()
		c.emit()
	})
}

func (c *Controller) emit() {
	if c.onChange != nil {
		c.onChange(c.Snapshot())
	}
}

// Package types provides shared type definitions for the application.
package types

// Permission names a capability the backend grants per session.
type Permission string

const (
	PermFilesystemRead  Permission = "filesystem.read"
	PermFilesystemWrite Permission = "filesystem.write"
	PermWebSearch       Permission = "web.search"
	PermScreenCapture   Permission = "screen.capture"
	PermClipboardRead   Permission = "clipboard.read"
	PermClipboardWrite  Permission = "clipboard.write"
	PermProcessRun      Permission = "process.run"
)

// Scope is the lifetime of a permission approval.
type Scope string

const (
	ScopeOnce    Scope = "once"
	ScopeSession Scope = "session"
	ScopeAlways  Scope = "always"
	ScopeDeny    Scope = "deny"
)

// Valid reports whether s is a scope the user can pick.
func (s Scope) Valid() bool {
	switch s {
	case ScopeOnce, ScopeSession, ScopeAlways, ScopeDeny:
		return true
	}
	return false
}

// Action is the user-facing action a permission check was made for.
type Action string

const (
	ActionCapture        Action = "capture"
	ActionSend           Action = "send"
	ActionClipboardRead  Action = "clipboard_read"
	ActionClipboardWrite Action = "clipboard_write"
)

// Mode selects how the backend answers a Think Box message.
type Mode string

const (
	ModeScreenHelp Mode = "screen_help"
	ModeExplain    Mode = "explain"
	ModeSteps      Mode = "steps"
	ModeExtract    Mode = "extract"
	ModeResearch   Mode = "research"
)

// CaptureSource selects what the screen capture grabs.
type CaptureSource string

const (
	SourceActiveWindow CaptureSource = "active_window"
	SourceRegion       CaptureSource = "region"
)

// Region is a capture rectangle in screen coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// PermissionCheck is the backend's answer to a grant lookup.
type PermissionCheck struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
}

// PermissionGrant describes one stored grant.
type PermissionGrant struct {
	Permission   Permission `json:"permission"`
	Scope        Scope      `json:"scope"`
	SessionID    string     `json:"session_id,omitempty"`
	AllowedPaths []string   `json:"allowed_paths,omitempty"`
}

// MessageRequest is submitted to start a Think Box run.
type MessageRequest struct {
	Text    string         `json:"text"`
	Mode    Mode           `json:"mode"`
	Toggles map[string]any `json:"toggles,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// CaptureRequest stores a capture on the backend.
type CaptureRequest struct {
	Source       CaptureSource `json:"source"`
	Region       *Region       `json:"region,omitempty"`
	ImageDataURL string        `json:"image_data_url,omitempty"`
}

// CaptureResult is the backend's record of a stored capture.
type CaptureResult struct {
	CaptureID        string  `json:"capture_id"`
	Timestamp        float64 `json:"timestamp"`
	ThumbnailDataURL string  `json:"thumbnail_data_url,omitempty"`
}

// LocalCapture is an image grabbed on this machine before upload.
type LocalCapture struct {
	ImageDataURL string        `json:"image_data_url"`
	Source       CaptureSource `json:"source"`
}

// SettingsEntry describes one key of the backend settings registry.
type SettingsEntry struct {
	Key             string   `json:"key"`
	Type            string   `json:"type"`
	Default         any      `json:"default"`
	Category        string   `json:"category"`
	Scope           string   `json:"scope"`
	Danger          string   `json:"danger"`
	RequiresRestart bool     `json:"requires_restart"`
	Description     string   `json:"description"`
	EnumValues      []string `json:"enum_values,omitempty"`
}

// OverlaySettings is the subset of the backend settings bag the desktop
// shell acts on. Field names follow the backend keys.
type OverlaySettings struct {
	SafeModeDefault          bool          `json:"safe_mode_default"`
	Enabled                  bool          `json:"thinkbox_enabled"`
	Hotkey                   string        `json:"thinkbox_hotkey"`
	Position                 string        `json:"thinkbox_position"`
	SizePercent              float64       `json:"thinkbox_size_percent"`
	AutoHideSeconds          int           `json:"thinkbox_auto_hide_seconds"`
	PinDefault               bool          `json:"thinkbox_pin_default"`
	NoFocusSteal             bool          `json:"thinkbox_no_focus_steal"`
	CaptureDefault           CaptureSource `json:"thinkbox_capture_default"`
	AwarenessDefault         bool          `json:"thinkbox_awareness_default"`
	AwarenessMinutes         int           `json:"thinkbox_awareness_minutes"`
	AwarenessIntervalSeconds int           `json:"thinkbox_awareness_interval_seconds"`
	AwarenessRequirePin      bool          `json:"thinkbox_awareness_require_pin"`
	DefaultMode              Mode          `json:"thinkbox_default_mode"`
	CaptureOnOpen            bool          `json:"thinkbox_capture_on_open"`
	CaptureOnModeChange      bool          `json:"thinkbox_capture_on_mode_change"`
	ClearTextOnSend          bool          `json:"thinkbox_clear_text_on_send"`
	RememberLastText         bool          `json:"thinkbox_remember_last_text"`
	StatusToastSeconds       int           `json:"thinkbox_status_toast_seconds"`
}

// DefaultOverlaySettings returns the values used until the backend answers.
func DefaultOverlaySettings() OverlaySettings {
	return OverlaySettings{
		SafeModeDefault:          true,
		Enabled:                  true,
		Hotkey:                   "Control+Alt+Space",
		Position:                 "bottom-right",
		SizePercent:              20,
		AutoHideSeconds:          30,
		CaptureDefault:           SourceActiveWindow,
		AwarenessMinutes:         10,
		AwarenessIntervalSeconds: 0,
		AwarenessRequirePin:      true,
		DefaultMode:              ModeScreenHelp,
		StatusToastSeconds:       3,
	}
}

// HotkeyStatus is reported to the shell after (re)registration.
type HotkeyStatus struct {
	OK         bool   `json:"ok"`
	Registered bool   `json:"registered"`
	Hotkey     string `json:"hotkey"`
	Error      string `json:"error,omitempty"`
}

package app

import "go.aimuz.me/thinkbox/internal/types"

// Event names for frontend communication.
const (
	EventBackendPhase     = "backend-phase"
	EventOverlayState     = "thinkbox-overlay"
	EventSessionState     = "thinkbox-session"
	EventPermissionPrompt = "thinkbox-permission-prompt"
	EventHotkeyStatus     = "thinkbox-hotkey-status"
	EventSettings         = "thinkbox-settings"
)

// Channels accepted by Service.Invoke.
const (
	ChannelToggleOverlay     = "toggle-overlay"
	ChannelCloseOverlay      = "close-overlay"
	ChannelSetPin            = "set-pin"
	ChannelUpdateHotkey      = "update-hotkey"
	ChannelGetHotkeyStatus   = "get-hotkey-status"
	ChannelCaptureScreen     = "capture-screen"
	ChannelSend              = "send"
	ChannelCapture           = "capture"
	ChannelResolvePermission = "resolve-permission"
	ChannelReadClipboard     = "read-clipboard"
	ChannelCopyAnswer        = "copy-answer"
	ChannelToggleAwareness   = "toggle-awareness"
	ChannelOverlayKey        = "overlay-key"
	ChannelActivity          = "activity"
	ChannelSetMode           = "set-mode"
	ChannelSetToggles        = "set-toggles"
	ChannelSetCaptureSource  = "set-capture-source"
	ChannelSetRegion         = "set-region"
	ChannelSetFrozen         = "set-frozen"
	ChannelSetSelectedText   = "set-selected-text"
	ChannelGetState          = "get-state"
	ChannelGetThumbnail      = "get-thumbnail"
	ChannelSetText           = "set-text"
	ChannelReposition        = "reposition-overlay"
	ChannelRevokePermission  = "revoke-permission"
	ChannelGetGrants         = "get-grants"
	ChannelSettingsRegistry  = "get-settings-registry"
)

// Result is the plain acknowledgement returned by window actions.
type Result struct {
	OK bool `json:"ok"`
}

// PinResult answers set-pin.
type PinResult struct {
	OK     bool   `json:"ok"`
	Pinned bool   `json:"pinned"`
	Error  string `json:"error,omitempty"`
}

// HotkeyUpdate is the update-hotkey payload. Nil fields keep the current value.
type HotkeyUpdate struct {
	Hotkey  *string `json:"hotkey,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// CaptureScreenRequest is the capture-screen payload.
type CaptureScreenRequest struct {
	Source types.CaptureSource `json:"source"`
	Region *types.Region       `json:"region,omitempty"`
}

// ThumbnailResult answers get-thumbnail.
type ThumbnailResult struct {
	OK      bool   `json:"ok"`
	DataURL string `json:"data_url,omitempty"`
}

// BackendStatus is what the splash window shows.
type BackendStatus struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

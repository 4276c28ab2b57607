package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.aimuz.me/thinkbox/internal/types"
	"go.aimuz.me/thinkbox/session"
)

// ErrUnknownChannel is returned by Invoke for unrouted channels.
var ErrUnknownChannel = errors.New("unknown channel")

type handler func(payload json.RawMessage) (any, error)

func (s *Service) routes() map[string]handler {
	return map[string]handler{
		ChannelToggleOverlay: func(json.RawMessage) (any, error) {
			return s.ToggleOverlay(), nil
		},
		ChannelCloseOverlay: func(json.RawMessage) (any, error) {
			return s.CloseOverlay(), nil
		},
		ChannelSetPin: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Pinned bool `json:"pinned"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.SetPin(req.Pinned), nil
		},
		ChannelUpdateHotkey: func(p json.RawMessage) (any, error) {
			req, err := decode[HotkeyUpdate](p)
			if err != nil {
				return nil, err
			}
			return s.UpdateHotkey(req), nil
		},
		ChannelGetHotkeyStatus: func(json.RawMessage) (any, error) {
			return s.GetHotkeyStatus(), nil
		},
		ChannelCaptureScreen: func(p json.RawMessage) (any, error) {
			req, err := decode[CaptureScreenRequest](p)
			if err != nil {
				return nil, err
			}
			return s.CaptureScreen(req)
		},
		ChannelSend: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Text string `json:"text"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.Send(req.Text), nil
		},
		ChannelCapture: func(json.RawMessage) (any, error) {
			return s.Capture(), nil
		},
		ChannelResolvePermission: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Scope types.Scope `json:"scope"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.ResolvePermission(req.Scope), nil
		},
		ChannelReadClipboard: func(json.RawMessage) (any, error) {
			return s.ReadClipboard(), nil
		},
		ChannelCopyAnswer: func(json.RawMessage) (any, error) {
			return s.CopyAnswer(), nil
		},
		ChannelToggleAwareness: func(json.RawMessage) (any, error) {
			return s.ToggleAwareness()
		},
		ChannelOverlayKey: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Key string `json:"key"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.OverlayKey(req.Key), nil
		},
		ChannelActivity: func(json.RawMessage) (any, error) {
			return s.Activity(), nil
		},
		ChannelSetMode: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Mode types.Mode `json:"mode"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.SetMode(req.Mode), nil
		},
		ChannelSetToggles: func(p json.RawMessage) (any, error) {
			req, err := decode[session.Toggles](p)
			if err != nil {
				return nil, err
			}
			return s.SetToggles(req), nil
		},
		ChannelSetCaptureSource: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Source types.CaptureSource `json:"source"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.SetCaptureSource(req.Source), nil
		},
		ChannelSetRegion: func(p json.RawMessage) (any, error) {
			req, err := decode[types.Region](p)
			if err != nil {
				return nil, err
			}
			return s.SetRegion(req), nil
		},
		ChannelSetFrozen: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Frozen bool `json:"frozen"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.SetFrozen(req.Frozen), nil
		},
		ChannelSetSelectedText: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Text string `json:"text"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.SetSelectedText(req.Text), nil
		},
		ChannelGetState: func(json.RawMessage) (any, error) {
			return s.GetState(), nil
		},
		ChannelSetText: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Text string `json:"text"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.SetText(req.Text), nil
		},
		ChannelReposition: func(json.RawMessage) (any, error) {
			return s.RepositionOverlay(), nil
		},
		ChannelRevokePermission: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Permission types.Permission `json:"permission"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.RevokePermission(req.Permission)
		},
		ChannelGetGrants: func(json.RawMessage) (any, error) {
			return s.GetGrants()
		},
		ChannelSettingsRegistry: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				Refresh bool `json:"refresh"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.GetSettingsRegistry(req.Refresh)
		},
		ChannelGetThumbnail: func(p json.RawMessage) (any, error) {
			req, err := decode[struct {
				CaptureID string `json:"capture_id"`
			}](p)
			if err != nil {
				return nil, err
			}
			return s.GetThumbnail(req.CaptureID), nil
		},
	}
}

func (s *Service) dispatch(channel string, payload json.RawMessage) (any, error) {
	h, ok := s.handlers[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return h(payload)
}

// decode unmarshals an optional payload. Empty payloads give the zero value.
func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

package hotkey

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/vcaesar/keycode"
)

var (
	// ErrUnknownKey is returned for accelerator tokens with no keycode.
	ErrUnknownKey = errors.New("unknown key")
	// ErrNoKey is returned for accelerators made only of modifiers.
	ErrNoKey = errors.New("accelerator has no non-modifier key")
	// ErrReserved is returned for combinations the OS keeps for itself.
	ErrReserved = errors.New("combination is reserved by the system")
	// ErrInUse is returned when the combination is already registered.
	ErrInUse = errors.New("combination is already registered")
)

// Codes missing from keycode.Keycode, as libuiohook virtual codes.
var extraKeycodes = keycode.UMap{
	"rctrl":     3613,
	"backspace": 14,
	"home":      3655,
	"end":       3663,
	"pageup":    3657,
	"pagedown":  3665,
	"insert":    3666,
	"del":       3667,
}

// keyAliases maps accelerator spellings to keycode names. Modifiers map to
// both the left and the right key.
var keyAliases = map[string][]string{
	"alt":       {"alt", "ralt"},
	"option":    {"alt", "ralt"},
	"altgr":     {"ralt"},
	"shift":     {"shift", "rshift"},
	"command":   {"cmd", "rcmd"},
	"cmd":       {"cmd", "rcmd"},
	"super":     {"cmd", "rcmd"},
	"meta":      {"cmd", "rcmd"},
	"control":   {"ctrl", "rctrl"},
	"escape":    {"esc"},
	"return":    {"enter"},
	"plus":      {"="},
	"delete":    {"del"},
	"backspace": {"backspace"},
}

var modifierNames = []string{"ctrl", "rctrl", "alt", "ralt", "shift", "rshift", "cmd", "rcmd"}

// keyGroup is one accelerator token: any of its codes satisfies it.
type keyGroup struct {
	name  string
	codes []uint16
}

func (g keyGroup) has(code uint16) bool {
	return slices.Contains(g.codes, code)
}

func (g keyGroup) modifier() bool {
	return slices.Contains(modifierNames, g.name)
}

// resolve turns a normalized accelerator into key groups.
func resolve(accel string) ([]keyGroup, error) {
	var groups []keyGroup
	hasKey := false

	for tok := range strings.SplitSeq(accel, "+") {
		names := tokenNames(strings.ToLower(strings.TrimSpace(tok)))

		g := keyGroup{name: names[0]}
		for _, n := range names {
			if code, ok := lookup(n); ok {
				g.codes = append(g.codes, code)
			}
		}
		if len(g.codes) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, tok)
		}
		if !g.modifier() {
			hasKey = true
		}
		groups = append(groups, g)
	}

	if !hasKey {
		return nil, ErrNoKey
	}
	return groups, nil
}

func tokenNames(tok string) []string {
	if tok == strings.ToLower(commandOrControl) {
		if runtime.GOOS == "darwin" {
			return []string{"cmd", "rcmd"}
		}
		return []string{"ctrl", "rctrl"}
	}
	if names, ok := keyAliases[tok]; ok {
		return names
	}
	return []string{tok}
}

func lookup(name string) (uint16, bool) {
	if code, ok := keycode.Keycode[name]; ok {
		return code, true
	}
	code, ok := extraKeycodes[name]
	return code, ok
}

// signature identifies a combination independent of token order.
func signature(groups []keyGroup) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.name
	}
	slices.Sort(names)
	return strings.Join(names, "+")
}

// reserved lists combinations the OS intercepts before any global hook,
// by signature.
var reserved = map[string][]string{
	"darwin":  {"cmd+tab", "cmd+q", "cmd+space", "alt+cmd+esc"},
	"windows": {"alt+tab", "alt+ctrl+del", "alt+f4", "cmd+l"},
	"linux":   {"alt+tab", "alt+ctrl+del", "alt+f4"},
}

func isReserved(groups []keyGroup) bool {
	return slices.Contains(reserved[runtime.GOOS], signature(groups))
}

// Package hotkey owns the single global accelerator that toggles the
// overlay.
package hotkey

import (
	"fmt"
	"log/slog"
	"sync"

	"go.aimuz.me/thinkbox/internal/types"
)

// Registrar binds accelerators to callbacks at the OS level.
type Registrar interface {
	Register(accel string, fn func()) error
	Unregister(accel string)
}

// Binding is the current accelerator state.
type Binding struct {
	Accelerator string
	Registered  bool
	LastError   string
}

// Manager holds at most one registered accelerator.
type Manager struct {
	mu        sync.Mutex
	reg       Registrar
	onTrigger func()
	binding   Binding
}

// NewManager creates a manager that calls onTrigger when the hotkey fires.
func NewManager(reg Registrar, onTrigger func()) *Manager {
	return &Manager{reg: reg, onTrigger: onTrigger}
}

// Register replaces the current binding. The previous accelerator is
// always released first, even when the new one is refused or disabled.
func (m *Manager) Register(accel string, enabled bool) types.HotkeyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unregisterLocked()

	normalized := Normalize(accel)
	m.binding = Binding{Accelerator: normalized}

	if !enabled {
		slog.Info("hotkey disabled", "hotkey", normalized)
		return m.statusLocked()
	}

	if err := m.reg.Register(normalized, m.onTrigger); err != nil {
		m.binding.LastError = fmt.Sprintf("Unable to register hotkey: %s: %v", normalized, err)
		slog.Warn("register hotkey", "hotkey", normalized, "error", err)
		return m.statusLocked()
	}

	m.binding.Registered = true
	slog.Info("hotkey registered", "hotkey", normalized)
	return m.statusLocked()
}

// Status reports the current binding.
func (m *Manager) Status() types.HotkeyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Binding returns a copy of the current binding.
func (m *Manager) Binding() Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binding
}

// Close releases the binding.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregisterLocked()
	m.binding.Registered = false
}

func (m *Manager) unregisterLocked() {
	if m.binding.Registered {
		m.reg.Unregister(m.binding.Accelerator)
		m.binding.Registered = false
	}
}

func (m *Manager) statusLocked() types.HotkeyStatus {
	return types.HotkeyStatus{
		OK:         m.binding.Registered,
		Registered: m.binding.Registered,
		Hotkey:     m.binding.Accelerator,
		Error:      m.binding.LastError,
	}
}

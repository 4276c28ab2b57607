package hotkey

import (
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// Hook is a Registrar backed by a process-wide keyboard and mouse hook.
// Besides hotkeys it reports user activity and the last pointer position.
type Hook struct {
	state *keyState

	mu         sync.Mutex
	running    bool
	done       chan struct{}
	onActivity func()
	x, y       int
	hasPointer bool
}

// NewHook creates a hook. Call Start to begin receiving events.
func NewHook() *Hook {
	return &Hook{state: newKeyState()}
}

// Register binds accel to fn. fn runs on its own goroutine so a slow
// handler never stalls the hook.
func (h *Hook) Register(accel string, fn func()) error {
	return h.state.add(accel, fn)
}

// Unregister removes accel. Unknown accelerators are ignored.
func (h *Hook) Unregister(accel string) {
	h.state.remove(accel)
}

// OnActivity sets the callback invoked on any key or mouse event.
func (h *Hook) OnActivity(fn func()) {
	h.mu.Lock()
	h.onActivity = fn
	h.mu.Unlock()
}

// Pointer returns the last seen mouse position.
func (h *Hook) Pointer() (x, y int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.x, h.y, h.hasPointer
}

// Start installs the OS hook. Calling Start on a running hook is a no-op.
func (h *Hook) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.done = make(chan struct{})

	events := hook.Start()
	go h.loop(events, h.done)
	slog.Info("global hook started")
}

// Stop removes the OS hook.
func (h *Hook) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	done := h.done
	h.mu.Unlock()

	hook.End()
	<-done
}

func (h *Hook) loop(events chan hook.Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		h.handle(ev)
	}
}

func (h *Hook) handle(ev hook.Event) {
	switch ev.Kind {
	case hook.KeyHold, hook.KeyDown:
		// KeyDown is the "typed" event and usually carries no keycode.
		if ev.Keycode != 0 {
			for _, fn := range h.state.press(ev.Keycode) {
				go fn()
			}
		}
	case hook.KeyUp:
		h.state.release(ev.Keycode)
	case hook.MouseMove, hook.MouseDrag:
		h.mu.Lock()
		h.x, h.y, h.hasPointer = int(ev.X), int(ev.Y), true
		h.mu.Unlock()
	case hook.MouseDown, hook.MouseWheel:
	default:
		return
	}

	h.mu.Lock()
	fn := h.onActivity
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

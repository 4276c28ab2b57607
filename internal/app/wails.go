package app

import (
	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/thinkbox/overlay"
)

// fallbackArea is used before the screen list is available.
var fallbackArea = overlay.Rect{Width: 1280, Height: 800}

// WindowAdapter drives a Wails window for the overlay controller.
type WindowAdapter struct {
	w application.Window
}

// NewWindowAdapter wraps w.
func NewWindowAdapter(w application.Window) *WindowAdapter {
	return &WindowAdapter{w: w}
}

func (a *WindowAdapter) Show()                  { a.w.Show() }
func (a *WindowAdapter) Hide()                  { a.w.Hide() }
func (a *WindowAdapter) Focus()                 { a.w.Focus() }
func (a *WindowAdapter) SetAlwaysOnTop(on bool) { a.w.SetAlwaysOnTop(on) }

// SetBounds resizes first so the position is not clamped to the old size.
func (a *WindowAdapter) SetBounds(r overlay.Rect) {
	a.w.SetSize(r.Width, r.Height)
	a.w.SetPosition(r.X, r.Y)
}

// ScreenDisplay reports the work area of the screen under the pointer.
type ScreenDisplay struct {
	app     *application.App
	pointer ActivitySource
}

// NewScreenDisplay creates a display backed by the app's screen list and
// the global hook's pointer tracking.
func NewScreenDisplay(app *application.App, pointer ActivitySource) *ScreenDisplay {
	return &ScreenDisplay{app: app, pointer: pointer}
}

// Pointer returns the last pointer position seen by the hook.
func (d *ScreenDisplay) Pointer() (overlay.Point, bool) {
	if d.pointer == nil {
		return overlay.Point{}, false
	}
	x, y, ok := d.pointer.Pointer()
	return overlay.Point{X: x, Y: y}, ok
}

// WorkArea prefers the screen holding the pointer, then the primary one.
func (d *ScreenDisplay) WorkArea() overlay.Rect {
	screens := d.app.Screen.GetAll()
	p, havePointer := d.Pointer()

	var primary *application.Screen
	for _, s := range screens {
		if havePointer && toRect(s.Bounds).Contains(p) {
			return toRect(s.WorkArea)
		}
		if s.IsPrimary {
			primary = s
		}
	}
	if primary != nil {
		return toRect(primary.WorkArea)
	}
	if len(screens) > 0 {
		return toRect(screens[0].WorkArea)
	}
	return fallbackArea
}

func toRect(r application.Rect) overlay.Rect {
	return overlay.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

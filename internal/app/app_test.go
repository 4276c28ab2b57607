package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/thinkbox/config"
	"go.aimuz.me/thinkbox/internal/types"
	"go.aimuz.me/thinkbox/overlay"
	"go.aimuz.me/thinkbox/session"
	"go.aimuz.me/thinkbox/supervisor"
)

type fakeBackend struct {
	mu          sync.Mutex
	settings    types.OverlaySettings
	settingsErr error
	patches     []map[string]any
	patchErr    error
	grants      map[types.Permission]bool
	captures    int
	registry    []bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		settings: types.DefaultOverlaySettings(),
		grants:   map[types.Permission]bool{},
	}
}

func (f *fakeBackend) OverlaySettings(context.Context) (types.OverlaySettings, error) {
	return f.settings, f.settingsErr
}

func (f *fakeBackend) UpdateSettings(_ context.Context, patch map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return nil, f.patchErr
	}
	f.patches = append(f.patches, patch)
	return patch, nil
}

func (f *fakeBackend) CheckPermission(_ context.Context, perm types.Permission) (types.PermissionCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.PermissionCheck{Granted: f.grants[perm]}, nil
}

func (f *fakeBackend) GrantPermission(_ context.Context, perm types.Permission, scope types.Scope) (types.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[perm] = true
	return types.PermissionGrant{Permission: perm, Scope: scope}, nil
}

func (f *fakeBackend) SubmitMessage(context.Context, types.MessageRequest) (string, error) {
	return "run-1", nil
}

func (f *fakeBackend) OpenStream(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("data: {\"type\":\"done\"}\n\n")), nil
}

func (f *fakeBackend) Capture(context.Context, types.CaptureRequest) (types.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return types.CaptureResult{CaptureID: "cap"}, nil
}

func (f *fakeBackend) ReadClipboard(context.Context) (string, error) { return "", nil }
func (f *fakeBackend) WriteClipboard(context.Context, string) error  { return nil }

func (f *fakeBackend) SettingsRegistry(_ context.Context, refresh bool) ([]types.SettingsEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry = append(f.registry, refresh)
	return []types.SettingsEntry{{Key: "thinkbox_hotkey", Type: "string"}}, nil
}

func (f *fakeBackend) RevokePermission(_ context.Context, perm types.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants, perm)
	return nil
}

func (f *fakeBackend) Grants(context.Context) ([]types.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.PermissionGrant
	for perm, ok := range f.grants {
		if ok {
			out = append(out, types.PermissionGrant{Permission: perm, Scope: types.ScopeSession})
		}
	}
	return out, nil
}

func (f *fakeBackend) Thumbnail(captureID string) (string, bool) {
	if captureID == "cap" {
		return "data:image/png;base64,AAA", true
	}
	return "", false
}

func (f *fakeBackend) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

type fakeRegistrar struct {
	mu         sync.Mutex
	bound      map[string]func()
	registered []string
}

func (r *fakeRegistrar) Register(accel string, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound == nil {
		r.bound = map[string]func(){}
	}
	r.bound[accel] = fn
	r.registered = append(r.registered, accel)
	return nil
}

func (r *fakeRegistrar) Unregister(accel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bound, accel)
}

func (r *fakeRegistrar) fire(accel string) bool {
	r.mu.Lock()
	fn, ok := r.bound[accel]
	r.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type fakeWindow struct {
	mu      sync.Mutex
	visible bool
}

func (w *fakeWindow) Show() {
	w.mu.Lock()
	w.visible = true
	w.mu.Unlock()
}

func (w *fakeWindow) Hide() {
	w.mu.Lock()
	w.visible = false
	w.mu.Unlock()
}

func (w *fakeWindow) Focus()                 {}
func (w *fakeWindow) SetAlwaysOnTop(bool)    {}
func (w *fakeWindow) SetBounds(overlay.Rect) {}

func (w *fakeWindow) isVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

type fakeDisplay struct{}

func (fakeDisplay) WorkArea() overlay.Rect         { return overlay.Rect{Width: 1920, Height: 1080} }
func (fakeDisplay) Pointer() (overlay.Point, bool) { return overlay.Point{}, false }

type fakeCapturer struct{}

func (fakeCapturer) Capture(_ context.Context, source types.CaptureSource, _ *types.Region) (types.LocalCapture, error) {
	return types.LocalCapture{ImageDataURL: "data:image/png;base64,", Source: source}, nil
}

type recorder struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *recorder) emit(name string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string]int{}
	}
	r.events[name]++
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[name]
}

type harness struct {
	svc     *Service
	be      *fakeBackend
	reg     *fakeRegistrar
	win     *fakeWindow
	rec     *recorder
	created atomic.Int32
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		be:  newFakeBackend(),
		reg: &fakeRegistrar{},
		win: &fakeWindow{},
		rec: &recorder{},
	}
	h.svc = New("test")
	h.svc.Init(Deps{
		Config:     cfg,
		Backend:    h.be,
		Capturer:   fakeCapturer{},
		Registrar:  h.reg,
		Display:    fakeDisplay{},
		NewOverlay: func() overlay.Window {
			h.created.Add(1)
			return h.win
		},
		Emit:       h.rec.emit,
	})
	t.Cleanup(h.svc.Shutdown)
	return h
}

func TestReloadSettings_ConfigHotkeyWins(t *testing.T) {
	h := newHarness(t, &config.Config{Hotkey: "Alt+Space"})
	h.be.settings.Hotkey = "Ctrl+Shift+K"
	h.be.settings.PinDefault = true

	st := h.svc.ReloadSettings()
	if st.Hotkey != "Alt+Space" {
		t.Errorf("hotkey = %q, want config override", st.Hotkey)
	}
	if got := h.svc.GetHotkeyStatus(); !got.OK || got.Hotkey != "Alt+Space" {
		t.Errorf("status = %+v", got)
	}
	if !h.svc.overlay.Pinned() {
		t.Error("pin default not applied")
	}
	if h.rec.count(EventHotkeyStatus) == 0 || h.rec.count(EventSettings) == 0 {
		t.Error("settings events not emitted")
	}
}

func TestOverlay_NotCreatedBeforeReady(t *testing.T) {
	h := newHarness(t, nil)

	if res := h.svc.ShowOverlay(); res.OK {
		t.Error("ShowOverlay succeeded before the backend was ready")
	}
	if res := h.svc.ToggleOverlay(); res.OK {
		t.Error("ToggleOverlay succeeded before the backend was ready")
	}
	h.svc.onHotkey()
	if _, err := h.svc.Invoke(ChannelToggleOverlay, nil); err != nil {
		t.Fatal(err)
	}
	if n := h.created.Load(); n != 0 {
		t.Fatalf("overlay window created %d times before ready", n)
	}

	h.svc.ReloadSettings()
	if res := h.svc.ShowOverlay(); !res.OK || !h.win.isVisible() {
		t.Errorf("ShowOverlay after ready = %+v, visible %t", res, h.win.isVisible())
	}
	if n := h.created.Load(); n != 1 {
		t.Errorf("overlay window created %d times, want 1", n)
	}
}

func TestInvoke_PermissionsAndSettingsRegistry(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.ReloadSettings()
	h.be.grants[types.PermClipboardRead] = true

	out, err := h.svc.Invoke(ChannelGetGrants, nil)
	if err != nil {
		t.Fatal(err)
	}
	if grants, ok := out.([]types.PermissionGrant); !ok || len(grants) != 1 {
		t.Fatalf("get-grants = %#v", out)
	}

	out, err = h.svc.Invoke(ChannelRevokePermission, json.RawMessage(`{"permission":"clipboard.read"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res, ok := out.(Result); !ok || !res.OK {
		t.Errorf("revoke-permission = %#v", out)
	}
	if grants, _ := h.svc.GetGrants(); len(grants) != 0 {
		t.Errorf("grants after revoke = %+v", grants)
	}

	out, err = h.svc.Invoke(ChannelSettingsRegistry, json.RawMessage(`{"refresh":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if entries, ok := out.([]types.SettingsEntry); !ok || len(entries) != 1 {
		t.Errorf("get-settings-registry = %#v", out)
	}
	if _, err := h.svc.Invoke(ChannelSettingsRegistry, nil); err != nil {
		t.Fatal(err)
	}
	h.be.mu.Lock()
	calls := append([]bool(nil), h.be.registry...)
	h.be.mu.Unlock()
	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Errorf("registry refresh flags = %v, want [true false]", calls)
	}
}

func TestInvoke_SetTextAndReposition(t *testing.T) {
	h := newHarness(t, nil)
	h.be.settings.RememberLastText = true
	h.svc.ReloadSettings()

	out, err := h.svc.Invoke(ChannelSetText, json.RawMessage(`{"text":"draft"}`))
	if err != nil {
		t.Fatal(err)
	}
	if st, ok := out.(session.State); !ok || st.Text != "draft" {
		t.Errorf("set-text = %#v", out)
	}

	h.svc.ShowOverlay()
	out, err = h.svc.Invoke(ChannelReposition, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res, ok := out.(Result); !ok || !res.OK {
		t.Errorf("reposition-overlay = %#v", out)
	}
	if !h.win.isVisible() {
		t.Error("reposition hid the overlay")
	}
}

func TestReloadSettings_BackendDown(t *testing.T) {
	h := newHarness(t, nil)
	h.be.settingsErr = errors.New("connection refused")

	st := h.svc.ReloadSettings()
	if st.Position != "bottom-right" || st.AutoHideSeconds != 30 {
		t.Errorf("settings = %+v, want defaults", st)
	}
	if got := h.svc.GetHotkeyStatus().Hotkey; got != "CommandOrControl+Alt+Space" {
		t.Errorf("hotkey = %q", got)
	}
}

func TestHotkey_TogglesOverlayAndCapturesOnOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.be.settings.CaptureOnOpen = true
	h.be.grants[types.PermScreenCapture] = true
	h.svc.ReloadSettings()

	if !h.reg.fire("CommandOrControl+Alt+Space") {
		t.Fatal("hotkey not bound")
	}
	if !h.win.isVisible() {
		t.Fatal("overlay not shown by hotkey")
	}
	if h.be.captureCount() != 1 {
		t.Errorf("captures = %d, want 1", h.be.captureCount())
	}

	h.reg.fire("CommandOrControl+Alt+Space")
	if h.win.isVisible() {
		t.Error("second press did not hide the overlay")
	}
	if h.be.captureCount() != 1 {
		t.Error("hiding triggered a capture")
	}
}

func TestUpdateHotkey(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.ReloadSettings()

	key := "Ctrl+Shift+T"
	st := h.svc.UpdateHotkey(HotkeyUpdate{Hotkey: &key})
	if !st.OK || st.Hotkey != "CommandOrControl+Shift+T" {
		t.Errorf("status = %+v", st)
	}
	if h.reg.fire("CommandOrControl+Alt+Space") {
		t.Error("old hotkey still bound")
	}

	off := false
	st = h.svc.UpdateHotkey(HotkeyUpdate{Enabled: &off})
	if st.OK || st.Registered {
		t.Errorf("disabled status = %+v", st)
	}
	if h.reg.fire("CommandOrControl+Shift+T") {
		t.Error("disabled hotkey still bound")
	}
}

func TestSetPin_RememberRollsBack(t *testing.T) {
	h := newHarness(t, &config.Config{RememberPin: true})
	h.svc.ReloadSettings()

	got := h.svc.SetPin(true)
	if !got.OK || !got.Pinned {
		t.Fatalf("SetPin(true) = %+v", got)
	}
	if len(h.be.patches) != 1 || h.be.patches[0]["thinkbox_pin_default"] != true {
		t.Errorf("patches = %v", h.be.patches)
	}

	h.be.patchErr = errors.New("backend offline")
	got = h.svc.SetPin(false)
	if got.OK || !got.Pinned || got.Error == "" {
		t.Errorf("failed unpin = %+v, want rollback to pinned", got)
	}
	if !h.svc.overlay.Pinned() {
		t.Error("pin not rolled back")
	}
}

func TestSetPin_WithoutRemember(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.ReloadSettings()

	if got := h.svc.SetPin(true); !got.OK || !got.Pinned {
		t.Errorf("SetPin = %+v", got)
	}
	if len(h.be.patches) != 0 {
		t.Errorf("settings patched without remember_pin: %v", h.be.patches)
	}
}

func TestInvoke(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.ReloadSettings()

	if _, err := h.svc.Invoke(ChannelToggleOverlay, nil); err != nil {
		t.Fatal(err)
	}
	if !h.win.isVisible() {
		t.Error("toggle-overlay did not show")
	}

	if _, err := h.svc.Invoke(ChannelOverlayKey, json.RawMessage(`{"key":"Escape"}`)); err != nil {
		t.Fatal(err)
	}
	if h.win.isVisible() {
		t.Error("Escape did not hide")
	}

	if _, err := h.svc.Invoke(ChannelSetMode, json.RawMessage(`{"mode":"steps"}`)); err != nil {
		t.Fatal(err)
	}
	if got := h.svc.GetState().Mode; got != types.ModeSteps {
		t.Errorf("mode = %q", got)
	}

	out, err := h.svc.Invoke(ChannelSetPin, json.RawMessage(`{"pinned":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if pr, ok := out.(PinResult); !ok || !pr.Pinned {
		t.Errorf("set-pin = %#v", out)
	}

	out, err = h.svc.Invoke(ChannelGetThumbnail, json.RawMessage(`{"capture_id":"cap"}`))
	if err != nil {
		t.Fatal(err)
	}
	if tr, ok := out.(ThumbnailResult); !ok || !tr.OK || tr.DataURL == "" {
		t.Errorf("get-thumbnail = %#v", out)
	}
	if tr := h.svc.GetThumbnail("missing"); tr.OK {
		t.Errorf("missing thumbnail = %#v", tr)
	}

	if _, err := h.svc.Invoke("no-such-channel", nil); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("unknown channel err = %v", err)
	}
	if _, err := h.svc.Invoke(ChannelSend, json.RawMessage(`{"text":`)); err == nil {
		t.Error("malformed payload accepted")
	}
}

func TestInvoke_PermissionReplay(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.ReloadSettings()

	if _, err := h.svc.Invoke(ChannelCapture, nil); err != nil {
		t.Fatal(err)
	}
	if h.rec.count(EventPermissionPrompt) == 0 {
		t.Error("no prompt event")
	}
	if h.be.captureCount() != 0 {
		t.Fatal("captured without a grant")
	}

	if _, err := h.svc.Invoke(ChannelResolvePermission, json.RawMessage(`{"scope":"session"}`)); err != nil {
		t.Fatal(err)
	}
	if h.be.captureCount() != 1 {
		t.Errorf("captures after grant = %d, want 1", h.be.captureCount())
	}
}

func TestApplyConfig_HotkeyChange(t *testing.T) {
	h := newHarness(t, &config.Config{})
	h.svc.ReloadSettings()

	var level string
	h.svc.logLevel = func(l string) { level = l }

	h.svc.applyConfig(&config.Config{Hotkey: "Alt+K", Log: config.LogConfig{Level: "debug"}})
	if got := h.svc.GetHotkeyStatus().Hotkey; got != "Alt+K" {
		t.Errorf("hotkey = %q after config change", got)
	}
	if level != "debug" {
		t.Errorf("log level callback = %q", level)
	}
}

type fakeEnsurer struct {
	st    *Startup
	phase supervisor.Phase
	err   error
}

func (f fakeEnsurer) EnsureReady(context.Context, time.Duration) (supervisor.Phase, error) {
	f.st.OnPhase(supervisor.PhaseStarting, supervisor.MsgStarting)
	f.st.OnPhase(f.phase, "")
	return f.phase, f.err
}

func TestStartup_Ready(t *testing.T) {
	rec := &recorder{}
	st := NewStartup(rec.emit)
	ready := make(chan struct{})

	st.Run(context.Background(), fakeEnsurer{st: st, phase: supervisor.PhaseReady}, time.Second, func() { close(ready) }, nil)

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("onReady not called")
	}
	if got := st.Status().Phase; got != string(supervisor.PhaseReady) {
		t.Errorf("phase = %q", got)
	}
	if rec.count(EventBackendPhase) != 2 {
		t.Errorf("phase events = %d, want 2", rec.count(EventBackendPhase))
	}
}

func TestStartup_Failed(t *testing.T) {
	st := NewStartup(nil)
	failed := make(chan error, 1)

	st.Run(context.Background(), fakeEnsurer{st: st, phase: supervisor.PhaseFailed, err: supervisor.ErrStartupTimeout},
		time.Second, func() { t.Error("onReady called after failure") }, func(err error) { failed <- err })

	select {
	case err := <-failed:
		if !errors.Is(err, supervisor.ErrStartupTimeout) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onFail not called")
	}
	st.Stop()
	if got := st.Status(); got.Phase != string(supervisor.PhaseFailed) || got.Error == "" {
		t.Errorf("status = %+v", got)
	}
}

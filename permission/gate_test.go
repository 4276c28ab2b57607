package permission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.aimuz.me/thinkbox/internal/types"
)

// fakeBackend mimics the backend's grant store, including once-grants
// being consumed by the first check.
type fakeBackend struct {
	mu       sync.Mutex
	grants   map[types.Permission]types.Scope
	checks   int
	grantErr error
	checkErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{grants: map[types.Permission]types.Scope{}}
}

func (f *fakeBackend) CheckPermission(_ context.Context, perm types.Permission) (types.PermissionCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return types.PermissionCheck{}, f.checkErr
	}
	scope, ok := f.grants[perm]
	if !ok {
		return types.PermissionCheck{Granted: false, Reason: "not granted"}, nil
	}
	if scope == types.ScopeOnce {
		delete(f.grants, perm)
	}
	return types.PermissionCheck{Granted: true, Reason: string(scope)}, nil
}

func (f *fakeBackend) GrantPermission(_ context.Context, perm types.Permission, scope types.Scope) (types.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return types.PermissionGrant{}, f.grantErr
	}
	f.grants[perm] = scope
	return types.PermissionGrant{Permission: perm, Scope: scope}, nil
}

func TestGate_GrantedPassesThrough(t *testing.T) {
	b := newFakeBackend()
	b.grants[types.PermScreenCapture] = types.ScopeSession
	g := NewGate(b, nil)

	ok, err := g.Ensure(context.Background(), types.PermScreenCapture, types.ActionCapture)
	if err != nil || !ok {
		t.Fatalf("Ensure = %v, %v; want true", ok, err)
	}
	if _, pending := g.Pending(); pending {
		t.Error("prompt recorded for a granted permission")
	}
}

func TestGate_PromptThenOnceGrant(t *testing.T) {
	b := newFakeBackend()
	var changes []*Prompt
	g := NewGate(b, func(p *Prompt) { changes = append(changes, p) })
	ctx := context.Background()

	ok, err := g.Ensure(ctx, types.PermScreenCapture, types.ActionCapture)
	if err != nil || ok {
		t.Fatalf("Ensure = %v, %v; want false, nil", ok, err)
	}
	p, pending := g.Pending()
	if !pending || p.Permission != types.PermScreenCapture || p.Action != types.ActionCapture || p.ID == "" {
		t.Fatalf("Pending = %+v, %v", p, pending)
	}

	resolved, granted, err := g.Resolve(ctx, types.ScopeOnce)
	if err != nil || !granted {
		t.Fatalf("Resolve = %v, %v", granted, err)
	}
	if resolved.ID != p.ID || resolved.Action != types.ActionCapture {
		t.Errorf("resolved prompt = %+v, want %+v", resolved, p)
	}
	if _, pending := g.Pending(); pending {
		t.Error("prompt still pending after grant")
	}
	if len(changes) != 2 || changes[0] == nil || changes[1] != nil {
		t.Errorf("changes = %v, want [prompt nil]", changes)
	}

	// The once-grant is consumed by the replayed action's check.
	if ok, _ := g.Ensure(ctx, types.PermScreenCapture, types.ActionCapture); !ok {
		t.Fatal("replay not granted")
	}
	if ok, _ := g.Ensure(ctx, types.PermScreenCapture, types.ActionCapture); ok {
		t.Error("once-grant allowed a second action")
	}
}

func TestGate_Deny(t *testing.T) {
	b := newFakeBackend()
	g := NewGate(b, nil)
	ctx := context.Background()

	g.Ensure(ctx, types.PermClipboardRead, types.ActionClipboardRead)
	p, granted, err := g.Resolve(ctx, types.ScopeDeny)
	if err != nil || granted {
		t.Fatalf("Resolve(deny) = %v, %v", granted, err)
	}
	if p.Permission != types.PermClipboardRead {
		t.Errorf("denied prompt = %+v", p)
	}
	if _, pending := g.Pending(); pending {
		t.Error("prompt kept after deny")
	}
	if len(b.grants) != 0 {
		t.Error("deny stored a grant")
	}
}

func TestGate_SinglePrompt(t *testing.T) {
	g := NewGate(newFakeBackend(), nil)
	ctx := context.Background()

	g.Ensure(ctx, types.PermScreenCapture, types.ActionCapture)
	_, err := g.Ensure(ctx, types.PermWebSearch, types.ActionSend)
	if !errors.Is(err, ErrPromptPending) {
		t.Fatalf("second Ensure err = %v, want ErrPromptPending", err)
	}
	p, _ := g.Pending()
	if p.Permission != types.PermScreenCapture {
		t.Errorf("pending prompt replaced: %+v", p)
	}
}

func TestGate_GrantFailureKeepsPrompt(t *testing.T) {
	b := newFakeBackend()
	g := NewGate(b, nil)
	ctx := context.Background()

	g.Ensure(ctx, types.PermFilesystemRead, types.ActionSend)
	b.grantErr = errors.New("backend down")

	if _, granted, err := g.Resolve(ctx, types.ScopeSession); err == nil || granted {
		t.Fatalf("Resolve = %v, %v; want error", granted, err)
	}
	if _, pending := g.Pending(); !pending {
		t.Fatal("prompt dropped after failed grant")
	}

	b.grantErr = nil
	if _, granted, err := g.Resolve(ctx, types.ScopeSession); err != nil || !granted {
		t.Errorf("retry Resolve = %v, %v", granted, err)
	}
}

func TestGate_ResolveErrors(t *testing.T) {
	g := NewGate(newFakeBackend(), nil)
	ctx := context.Background()

	if _, _, err := g.Resolve(ctx, types.ScopeOnce); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("Resolve with nothing pending = %v, want ErrNoPrompt", err)
	}

	g.Ensure(ctx, types.PermScreenCapture, types.ActionCapture)
	if _, _, err := g.Resolve(ctx, types.Scope("forever")); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("Resolve(forever) = %v, want ErrInvalidScope", err)
	}
	if _, pending := g.Pending(); !pending {
		t.Error("invalid scope cleared the prompt")
	}
}

func TestGate_CheckError(t *testing.T) {
	b := newFakeBackend()
	b.checkErr = errors.New("connection refused")
	g := NewGate(b, nil)

	ok, err := g.Ensure(context.Background(), types.PermScreenCapture, types.ActionCapture)
	if ok || !errors.Is(err, b.checkErr) {
		t.Errorf("Ensure = %v, %v", ok, err)
	}
	if _, pending := g.Pending(); pending {
		t.Error("transport failure recorded a prompt")
	}
}

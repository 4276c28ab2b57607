// Package permission gates privileged actions behind backend-held grants.
// At most one prompt is outstanding; the action that raised it stays
// suspended until the user answers.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.aimuz.me/thinkbox/internal/types"
)

var (
	// ErrPromptPending is returned when a gated action starts while another
	// prompt is still unanswered.
	ErrPromptPending = errors.New("a permission prompt is already pending")
	// ErrNoPrompt is returned by Resolve when nothing is pending.
	ErrNoPrompt = errors.New("no permission prompt is pending")
	// ErrInvalidScope is returned by Resolve for an unknown scope.
	ErrInvalidScope = errors.New("invalid permission scope")
)

// Backend answers and stores grants.
type Backend interface {
	CheckPermission(ctx context.Context, perm types.Permission) (types.PermissionCheck, error)
	GrantPermission(ctx context.Context, perm types.Permission, scope types.Scope) (types.PermissionGrant, error)
}

// Prompt is a request for the user to approve a permission.
type Prompt struct {
	ID         string           `json:"id"`
	Permission types.Permission `json:"permission"`
	Action     types.Action     `json:"action"`
	Reason     string           `json:"reason,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Gate tracks the single outstanding prompt.
type Gate struct {
	backend  Backend
	onChange func(*Prompt)
	now      func() time.Time

	mu      sync.Mutex
	pending *Prompt
}

// NewGate creates a gate. onChange, if non-nil, is called with the new
// prompt, or nil when the prompt is cleared.
func NewGate(backend Backend, onChange func(*Prompt)) *Gate {
	return &Gate{backend: backend, onChange: onChange, now: time.Now}
}

// Ensure reports whether perm is granted. When it is not, a prompt for
// action is recorded and Ensure returns false; the caller must abandon the
// action until Resolve hands the prompt back.
func (g *Gate) Ensure(ctx context.Context, perm types.Permission, action types.Action) (bool, error) {
	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return false, ErrPromptPending
	}
	g.mu.Unlock()

	check, err := g.backend.CheckPermission(ctx, perm)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", perm, err)
	}
	if check.Granted {
		return true, nil
	}

	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return false, ErrPromptPending
	}
	p := &Prompt{
		ID:         uuid.NewString(),
		Permission: perm,
		Action:     action,
		Reason:     check.Reason,
		CreatedAt:  g.now(),
	}
	g.pending = p
	g.mu.Unlock()

	slog.Info("permission prompt", "permission", perm, "action", action, "reason", check.Reason)
	g.emit(p)
	return false, nil
}

// Resolve answers the pending prompt. Deny clears it and reports false.
// Any other scope stores a grant, clears the prompt and reports true so the
// caller can replay Prompt.Action. When the grant fails the prompt stays.
func (g *Gate) Resolve(ctx context.Context, scope types.Scope) (Prompt, bool, error) {
	g.mu.Lock()
	p := g.pending
	if p == nil {
		g.mu.Unlock()
		return Prompt{}, false, ErrNoPrompt
	}
	if !scope.Valid() {
		g.mu.Unlock()
		return *p, false, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if scope == types.ScopeDeny {
		g.pending = nil
		g.mu.Unlock()
		slog.Info("permission denied", "permission", p.Permission, "action", p.Action)
		g.emit(nil)
		return *p, false, nil
	}
	g.mu.Unlock()

	if _, err := g.backend.GrantPermission(ctx, p.Permission, scope); err != nil {
		return *p, false, fmt.Errorf("grant %s: %w", p.Permission, err)
	}

	g.mu.Lock()
	if g.pending == p {
		g.pending = nil
	}
	g.mu.Unlock()

	slog.Info("permission granted", "permission", p.Permission, "scope", scope)
	g.emit(nil)
	return *p, true, nil
}

// Pending returns the outstanding prompt, if any.
func (g *Gate) Pending() (Prompt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Prompt{}, false
	}
	return *g.pending, true
}

func (g *Gate) emit(p *Prompt) {
	if g.onChange == nil {
		return
	}
	if p != nil {
		cp := *p
		p = &cp
	}
	g.onChange(p)
}

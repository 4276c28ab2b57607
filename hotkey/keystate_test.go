package hotkey

import (
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/vcaesar/keycode"
)

func code(t *testing.T, name string) uint16 {
	t.Helper()
	c, ok := lookup(name)
	if !ok {
		t.Fatalf("no keycode for %q", name)
	}
	return c
}

func primary() string {
	if runtime.GOOS == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

func TestResolve(t *testing.T) {
	groups, err := resolve("CommandOrControl+Alt+Space")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].name != primary() || !groups[0].modifier() {
		t.Errorf("first group = %+v", groups[0])
	}
	if !groups[1].has(keycode.Keycode["ralt"]) {
		t.Error("Alt does not accept the right alt key")
	}
	if groups[2].modifier() {
		t.Error("Space treated as a modifier")
	}

	tests := []struct {
		accel string
		want  error
	}{
		{"Alt+Hyper", ErrUnknownKey},
		{"CommandOrControl+Shift", ErrNoKey},
	}
	for _, tt := range tests {
		if _, err := resolve(tt.accel); !errors.Is(err, tt.want) {
			t.Errorf("resolve(%q) err = %v, want %v", tt.accel, err, tt.want)
		}
	}
}

func TestKeyState_FiresOnceWhileHeld(t *testing.T) {
	s := newKeyState()
	fired := 0
	if err := s.add("CommandOrControl+Alt+Space", func() { fired++ }); err != nil {
		t.Fatalf("add: %v", err)
	}

	run := func(fns []func()) {
		for _, fn := range fns {
			fn()
		}
	}

	run(s.press(code(t, primary())))
	run(s.press(code(t, "alt")))
	if fired != 0 {
		t.Fatal("fired before all keys were down")
	}
	run(s.press(code(t, "space")))
	run(s.press(code(t, "space"))) // auto-repeat
	if fired != 1 {
		t.Fatalf("fired = %d after hold, want 1", fired)
	}

	s.release(code(t, "space"))
	run(s.press(code(t, "space")))
	if fired != 2 {
		t.Errorf("fired = %d after re-press, want 2", fired)
	}
}

func TestKeyState_ExtraModifierDoesNotFire(t *testing.T) {
	s := newKeyState()
	fired := false
	s.add("Alt+K", func() { fired = true })

	s.press(code(t, "shift"))
	s.press(code(t, "alt"))
	for _, fn := range s.press(code(t, "k")) {
		fn()
	}
	if fired {
		t.Error("Alt+K fired while Shift was also held")
	}
}

func TestKeyState_RightModifierMatches(t *testing.T) {
	s := newKeyState()
	fired := false
	s.add("Alt+K", func() { fired = true })

	s.press(code(t, "ralt"))
	for _, fn := range s.press(code(t, "k")) {
		fn()
	}
	if !fired {
		t.Error("right Alt did not satisfy Alt")
	}
}

func TestKeyState_AddErrors(t *testing.T) {
	s := newKeyState()
	if err := s.add("Shift+Alt+K", func() {}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.add("Alt+Shift+K", func() {}); !errors.Is(err, ErrInUse) {
		t.Errorf("duplicate combo err = %v, want ErrInUse", err)
	}

	if list := reserved[runtime.GOOS]; len(list) > 0 {
		accel := strings.ReplaceAll(list[0], "cmd", "Command")
		if err := s.add(accel, func() {}); !errors.Is(err, ErrReserved) {
			t.Errorf("add(%q) err = %v, want ErrReserved", accel, err)
		}
	}

	s.remove("Shift+Alt+K")
	if s.len() != 0 {
		t.Error("remove left the combo registered")
	}
	if err := s.add("Alt+Shift+K", func() {}); err != nil {
		t.Errorf("re-add after remove: %v", err)
	}
}

package hotkey

import "sync"

type combo struct {
	accel  string
	groups []keyGroup
	fn     func()
	// latched is set once the combo fires and cleared when one of its keys
	// is released, so holding the keys fires once.
	latched bool
}

func (c *combo) contains(code uint16) bool {
	for _, g := range c.groups {
		if g.has(code) {
			return true
		}
	}
	return false
}

// satisfied reports whether exactly the combo's keys are down.
func (c *combo) satisfied(pressed map[uint16]struct{}) bool {
	if len(pressed) != len(c.groups) {
		return false
	}
	for _, g := range c.groups {
		found := false
		for code := range pressed {
			if g.has(code) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// keyState tracks pressed keys and registered combos. It knows nothing
// about where key events come from.
type keyState struct {
	mu      sync.Mutex
	pressed map[uint16]struct{}
	combos  map[string]*combo // by signature
}

func newKeyState() *keyState {
	return &keyState{
		pressed: make(map[uint16]struct{}),
		combos:  make(map[string]*combo),
	}
}

func (s *keyState) add(accel string, fn func()) error {
	groups, err := resolve(accel)
	if err != nil {
		return err
	}
	if isReserved(groups) {
		return ErrReserved
	}

	sig := signature(groups)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.combos[sig]; ok {
		return ErrInUse
	}
	s.combos[sig] = &combo{accel: accel, groups: groups, fn: fn}
	return nil
}

func (s *keyState) remove(accel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sig, c := range s.combos {
		if c.accel == accel {
			delete(s.combos, sig)
		}
	}
}

// press records a key down and returns the callbacks that should fire.
func (s *keyState) press(code uint16) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pressed[code] = struct{}{}

	var fire []func()
	for _, c := range s.combos {
		if c.latched || !c.contains(code) {
			continue
		}
		if c.satisfied(s.pressed) {
			c.latched = true
			fire = append(fire, c.fn)
		}
	}
	return fire
}

func (s *keyState) release(code uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pressed, code)
	for _, c := range s.combos {
		if c.contains(code) {
			c.latched = false
		}
	}
}

func (s *keyState) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.combos)
}

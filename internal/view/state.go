// Package view owns the presentation mode, the session-wide compare buffer
// and the scroll-lock mapping between the primary and compare panes.
package view

import (
	"fmt"
	"strings"

	"github.com/hpungsan/quill/internal/errors"
)

// Mode is the presentation mode.
type Mode int

const (
	ModeSingle Mode = iota
	ModeSplit
	ModeDiff
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeSplit:
		return "split"
	case ModeDiff:
		return "diff"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "single", "split" or "diff".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return ModeSingle, nil
	case "split":
		return ModeSplit, nil
	case "diff":
		return ModeDiff, nil
	}
	return 0, errors.NewInvalidRequest(fmt.Sprintf("unknown mode %q (want single, split or diff)", s))
}

// Layout is the non-diff pane arrangement.
type Layout int

const (
	LayoutSingle Layout = iota
	LayoutSplit
)

func (l Layout) String() string {
	if l == LayoutSplit {
		return "split"
	}
	return "single"
}

// ParseLayout parses "single" or "split"; anything else is single.
func ParseLayout(s string) Layout {
	if strings.EqualFold(strings.TrimSpace(s), "split") {
		return LayoutSplit
	}
	return LayoutSingle
}

// LockPolicy is how a locked compare pane follows the primary pane.
type LockPolicy int

const (
	// LockSync keeps both panes on the same top line.
	LockSync LockPolicy = iota
	// LockOffset keeps the compare pane a fixed number of lines away.
	LockOffset
)

func (p LockPolicy) String() string {
	if p == LockOffset {
		return "offset"
	}
	return "sync"
}

// ParseLockPolicy parses "sync" or "offset".
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync":
		return LockSync, nil
	case "offset":
		return LockOffset, nil
	}
	return 0, errors.NewInvalidRequest(fmt.Sprintf("unknown scroll lock policy %q (want sync or offset)", s))
}

// State is the full presentation state. Layout remembers the non-diff
// arrangement so leaving diff returns to it.
type State struct {
	Mode   Mode       `json:"mode"`
	Layout Layout     `json:"layout"`
	Lock   bool       `json:"scroll_lock"`
	Policy LockPolicy `json:"scroll_lock_policy"`
}

// EventKind is a requested presentation change.
type EventKind int

const (
	EventSetMode EventKind = iota
	EventToggleLayout
	EventSetLock
	EventSetPolicy
)

// Event is the input of Transition.
type Event struct {
	Kind   EventKind
	Mode   Mode
	Lock   bool
	Policy LockPolicy
}

func (e Event) String() string {
	switch e.Kind {
	case EventSetMode:
		return "set mode " + e.Mode.String()
	case EventToggleLayout:
		return "toggle layout"
	case EventSetLock:
		if e.Lock {
			return "engage scroll lock"
		}
		return "release scroll lock"
	case EventSetPolicy:
		return "set scroll lock policy " + e.Policy.String()
	default:
		return fmt.Sprintf("event(%d)", int(e.Kind))
	}
}

// Transition is the only place presentation rules live:
//   - layout toggling is refused in diff
//   - entering diff releases scroll lock
//   - scroll lock can only be engaged in split
//   - single and split track Layout
func Transition(s State, ev Event) (State, error) {
	next := s
	switch ev.Kind {
	case EventSetMode:
		switch ev.Mode {
		case ModeDiff:
			next.Mode = ModeDiff
			next.Lock = false
		case ModeSingle:
			next.Mode = ModeSingle
			next.Layout = LayoutSingle
			next.Lock = false
		case ModeSplit:
			next.Mode = ModeSplit
			next.Layout = LayoutSplit
		default:
			return s, errors.NewInvalidRequest(fmt.Sprintf("unknown mode %d", int(ev.Mode)))
		}
	case EventToggleLayout:
		switch s.Mode {
		case ModeDiff:
			return s, errors.NewInvalidTransition(s.Mode.String(), ev.String())
		case ModeSingle:
			next.Mode, next.Layout = ModeSplit, LayoutSplit
		case ModeSplit:
			next.Mode, next.Layout = ModeSingle, LayoutSingle
			next.Lock = false
		}
	case EventSetLock:
		if ev.Lock && s.Mode != ModeSplit {
			return s, errors.NewInvalidTransition(s.Mode.String(), ev.String())
		}
		next.Lock = ev.Lock
	case EventSetPolicy:
		next.Policy = ev.Policy
	default:
		return s, errors.NewInvalidRequest(fmt.Sprintf("unknown view event %d", int(ev.Kind)))
	}
	return next, nil
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// MarshalText encodes the layout by name.
func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// MarshalText encodes the policy by name.
func (p LockPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

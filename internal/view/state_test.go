package view

import (
	"encoding/json"
	"testing"

	"github.com/hpungsan/quill/internal/errors"
)

func TestTransition(t *testing.T) {
	split := State{Mode: ModeSplit, Layout: LayoutSplit}
	splitLocked := State{Mode: ModeSplit, Layout: LayoutSplit, Lock: true, Policy: LockOffset}
	diff := State{Mode: ModeDiff, Layout: LayoutSplit}

	tests := []struct {
		name string
		from State
		ev   Event
		want State
		code errors.ErrorCode
	}{
		{"single to split", State{}, Event{Kind: EventSetMode, Mode: ModeSplit}, split, ""},
		{"toggle single", State{}, Event{Kind: EventToggleLayout}, split, ""},
		{"toggle split", split, Event{Kind: EventToggleLayout}, State{}, ""},
		{"enter diff releases lock", splitLocked, Event{Kind: EventSetMode, Mode: ModeDiff},
			State{Mode: ModeDiff, Layout: LayoutSplit, Policy: LockOffset}, ""},
		{"toggle in diff", diff, Event{Kind: EventToggleLayout}, diff, errors.ErrInvalidTransition},
		{"leave diff to split", diff, Event{Kind: EventSetMode, Mode: ModeSplit}, split, ""},
		{"leave diff to single", diff, Event{Kind: EventSetMode, Mode: ModeSingle}, State{}, ""},
		{"lock in split", split, Event{Kind: EventSetLock, Lock: true}, State{Mode: ModeSplit, Layout: LayoutSplit, Lock: true}, ""},
		{"lock in single", State{}, Event{Kind: EventSetLock, Lock: true}, State{}, errors.ErrInvalidTransition},
		{"lock in diff", diff, Event{Kind: EventSetLock, Lock: true}, diff, errors.ErrInvalidTransition},
		{"release anywhere", diff, Event{Kind: EventSetLock}, diff, ""},
		{"policy in diff", diff, Event{Kind: EventSetPolicy, Policy: LockOffset},
			State{Mode: ModeDiff, Layout: LayoutSplit, Policy: LockOffset}, ""},
		{"single drops lock", splitLocked, Event{Kind: EventSetMode, Mode: ModeSingle},
			State{Policy: LockOffset}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Fatalf("error = %v, want %s", err, tt.code)
				}
			} else if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("state = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	if m, err := ParseMode(" Diff "); err != nil || m != ModeDiff {
		t.Errorf("ParseMode = %v, %v", m, err)
	}
	if _, err := ParseMode("triple"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ParseMode(triple) error = %v", err)
	}
	if p, err := ParseLockPolicy("offset"); err != nil || p != LockOffset {
		t.Errorf("ParseLockPolicy = %v, %v", p, err)
	}
	if ParseLayout("SPLIT") != LayoutSplit || ParseLayout("") != LayoutSingle {
		t.Error("ParseLayout")
	}
}

func TestState_JSON(t *testing.T) {
	b, err := json.Marshal(State{Mode: ModeDiff, Layout: LayoutSplit, Policy: LockOffset})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"mode":"diff","layout":"split","scroll_lock":false,"scroll_lock_policy":"offset"}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

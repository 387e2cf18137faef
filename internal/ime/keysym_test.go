package ime

import (
	"testing"
)

func TestKeyFromKeysym(t *testing.T) {
	tests := []struct {
		name   string
		keyval uint32
		state  uint32
		want   Key
	}{
		{"letter a", 'a', 0, Key{Code: VKA}},
		{"letter Z", 'Z', 0, Key{Code: VKZ, Modifiers: ModShift}},
		{"shift held", 'k', IBusShiftMask, Key{Code: VKA + 10, Modifiers: ModShift}},
		{"control", 'c', IBusControlMask, Key{Code: VKA + 2, Modifiers: ModControl}},
		{"alt", 'x', IBusMod1Mask, Key{Code: VKA + 23, Modifiers: ModAlt}},
		{"super", 'x', IBusMod4Mask, Key{Code: VKA + 23, Modifiers: ModMeta}},
		{"digit", '7', 0, Key{Code: VK0 + 7}},
		{"minus", GDKMinus, 0, Key{Code: VKOEMMinus}},
		{"backspace", GDKBackSpace, 0, Key{Code: VKBack}},
		{"return", GDKReturn, 0, Key{Code: VKReturn}},
		{"keypad enter", GDKKPEnter, 0, Key{Code: VKReturn}},
		{"escape", GDKEscape, 0, Key{Code: VKEscape}},
		{"space", GDKSpace, 0, Key{Code: VKSpace}},
		{"up", GDKUp, 0, Key{Code: VKUp}},
		{"down", GDKDown, 0, Key{Code: VKDown}},
		{"left", GDKLeft, 0, Key{Code: VKLeft}},
		{"caps lock is ignored", 'a', IBusLockMask, Key{Code: VKA}},
		{"F1 is unknown", 0xffbe, 0, Key{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KeyFromKeysym(tt.keyval, tt.state)
			if !ok {
				t.Fatalf("KeyFromKeysym(0x%x, 0x%x) reported a release", tt.keyval, tt.state)
			}
			if got != tt.want {
				t.Errorf("KeyFromKeysym(0x%x, 0x%x) = %+v, want %+v", tt.keyval, tt.state, got, tt.want)
			}
		})
	}
}

func TestKeyFromKeysymRelease(t *testing.T) {
	if _, ok := KeyFromKeysym('a', IBusReleaseMask); ok {
		t.Error("release events must not produce a key")
	}
}

func TestUnknownKeysymAlwaysPasses(t *testing.T) {
	key, _ := KeyFromKeysym(0xffbe, 0)
	for _, phase := range []Phase{PhaseIdle, PhaseComposing, PhaseSelecting} {
		if Classify(phase, key).Eat {
			t.Errorf("unknown key eaten in %s", phase)
		}
	}
}

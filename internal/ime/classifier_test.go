package ime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		key   Key
		want  Decision
	}{
		{"idle letter", PhaseIdle, Key{Code: VKA + 10}, Decision{Eat: true, Command: CmdAppendChar, Char: 'k'}},
		{"idle shifted letter is lower-cased", PhaseIdle, Key{Code: VKA, Modifiers: ModShift}, Decision{Eat: true, Command: CmdAppendChar, Char: 'a'}},
		{"idle minus passes", PhaseIdle, Key{Code: VKOEMMinus}, pass},
		{"idle space passes", PhaseIdle, keySpace, pass},
		{"idle enter passes", PhaseIdle, keyEnter, pass},
		{"idle backspace passes", PhaseIdle, keyBackspace, pass},
		{"idle digit passes", PhaseIdle, Key{Code: VK0 + 1}, pass},
		{"idle ctrl+c passes", PhaseIdle, Key{Code: VKA + 2, Modifiers: ModControl}, pass},

		{"composing letter", PhaseComposing, Key{Code: VKZ}, Decision{Eat: true, Command: CmdAppendChar, Char: 'z'}},
		{"composing minus", PhaseComposing, Key{Code: VKOEMMinus}, Decision{Eat: true, Command: CmdAppendChar, Char: '-'}},
		{"composing backspace", PhaseComposing, keyBackspace, eat(CmdDeleteBack)},
		{"composing enter", PhaseComposing, keyEnter, eat(CmdCommit)},
		{"composing escape", PhaseComposing, keyEscape, eat(CmdCancel)},
		{"composing space", PhaseComposing, keySpace, eat(CmdRequestCandidates)},
		{"composing left passes", PhaseComposing, keyLeft, pass},
		{"composing up passes", PhaseComposing, keyUp, pass},
		{"composing down passes", PhaseComposing, keyDown, pass},
		{"composing alt+letter passes", PhaseComposing, Key{Code: VKA, Modifiers: ModAlt}, pass},
		{"composing meta+enter passes", PhaseComposing, Key{Code: VKReturn, Modifiers: ModMeta}, pass},

		{"selecting letter", PhaseSelecting, Key{Code: VKA + 1}, Decision{Eat: true, Command: CmdAppendChar, Char: 'b'}},
		{"selecting minus", PhaseSelecting, Key{Code: VKOEMMinus}, Decision{Eat: true, Command: CmdAppendChar, Char: '-'}},
		{"selecting up", PhaseSelecting, keyUp, eat(CmdPrevCandidate)},
		{"selecting down", PhaseSelecting, keyDown, eat(CmdNextCandidate)},
		{"selecting space", PhaseSelecting, keySpace, eat(CmdNextCandidate)},
		{"selecting enter", PhaseSelecting, keyEnter, eat(CmdCommit)},
		{"selecting escape", PhaseSelecting, keyEscape, eat(CmdCancel)},
		{"selecting backspace", PhaseSelecting, keyBackspace, eat(CmdDeleteBack)},
		{"selecting left passes", PhaseSelecting, keyLeft, pass},
		{"selecting tab passes", PhaseSelecting, Key{Code: VKTab}, pass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.phase, tt.key))
		})
	}
}

func TestClassifyEatImpliesCommand(t *testing.T) {
	mods := []Modifiers{0, ModShift, ModControl, ModAlt, ModMeta, ModShift | ModControl}
	for _, phase := range []Phase{PhaseIdle, PhaseComposing, PhaseSelecting} {
		for vk := VirtualKey(0); vk < 0x100; vk++ {
			for _, m := range mods {
				key := Key{Code: vk, Modifiers: m}
				d := Classify(phase, key)
				if d.Eat != (d.Command != CmdNone) {
					t.Fatalf("%s %v: eat=%v command=%v", phase, key, d.Eat, d.Command)
				}
				if d.Command == CmdAppendChar && d.Char == 0 {
					t.Fatalf("%s %v: append without rune", phase, key)
				}
				if d != Classify(phase, key) {
					t.Fatalf("%s %v: classification not deterministic", phase, key)
				}
			}
		}
	}
}

func TestKeyForRune(t *testing.T) {
	vk, mods, ok := KeyForRune('K')
	assert.True(t, ok)
	assert.Equal(t, VKA+10, vk)
	assert.Equal(t, ModShift, mods)

	_, _, ok = KeyForRune('あ')
	assert.False(t, ok)
}

func TestVirtualKeyString(t *testing.T) {
	assert.Equal(t, "Enter", VKReturn.String())
	assert.Equal(t, "q", (VKA + 16).String())
	assert.Equal(t, "VK(0x70)", VirtualKey(0x70).String())
}

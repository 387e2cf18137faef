package ime

import "fmt"

// VirtualKey is a platform-neutral virtual key code. Values follow the
// Windows VK_* numbering; platform adapters translate their native codes.
type VirtualKey uint16

const (
	VKBack     VirtualKey = 0x08
	VKTab      VirtualKey = 0x09
	VKReturn   VirtualKey = 0x0D
	VKEscape   VirtualKey = 0x1B
	VKSpace    VirtualKey = 0x20
	VKPrior    VirtualKey = 0x21
	VKNext     VirtualKey = 0x22
	VKEnd      VirtualKey = 0x23
	VKHome     VirtualKey = 0x24
	VKLeft     VirtualKey = 0x25
	VKUp       VirtualKey = 0x26
	VKRight    VirtualKey = 0x27
	VKDown     VirtualKey = 0x28
	VKDelete   VirtualKey = 0x2E
	VK0        VirtualKey = 0x30
	VK9        VirtualKey = 0x39
	VKA        VirtualKey = 0x41
	VKZ        VirtualKey = 0x5A
	VKOEMMinus VirtualKey = 0xBD
)

// IsLetter reports whether vk is one of VK_A..VK_Z.
func (vk VirtualKey) IsLetter() bool {
	return vk >= VKA && vk <= VKZ
}

// Rune returns the lower-case character a composable key appends to the
// input buffer, or 0 for keys that append nothing.
func (vk VirtualKey) Rune() rune {
	switch {
	case vk.IsLetter():
		return rune('a' + (vk - VKA))
	case vk == VKOEMMinus:
		return '-'
	}
	return 0
}

func (vk VirtualKey) String() string {
	switch vk {
	case VKBack:
		return "Backspace"
	case VKTab:
		return "Tab"
	case VKReturn:
		return "Enter"
	case VKEscape:
		return "Escape"
	case VKSpace:
		return "Space"
	case VKLeft:
		return "Left"
	case VKUp:
		return "Up"
	case VKRight:
		return "Right"
	case VKDown:
		return "Down"
	}
	if r := vk.Rune(); r != 0 {
		return string(r)
	}
	return fmt.Sprintf("VK(0x%02X)", uint16(vk))
}

// KeyForRune maps a printable character to the virtual key that produces it
// on a US layout, reporting false for characters with no composable key.
// Upper-case letters map to the same key with Shift.
func KeyForRune(r rune) (VirtualKey, Modifiers, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return VKA + VirtualKey(r-'a'), 0, true
	case r >= 'A' && r <= 'Z':
		return VKA + VirtualKey(r-'A'), ModShift, true
	case r == '-':
		return VKOEMMinus, 0, true
	case r == ' ':
		return VKSpace, 0, true
	}
	return 0, 0, false
}

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Super / Windows / Command
)

// Has reports whether all bits of m2 are set in m.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// shortcut reports whether a modifier that turns a key into an application
// shortcut is held.
func (m Modifiers) shortcut() bool {
	return m&(ModControl|ModAlt|ModMeta) != 0
}

// Key is one key-down event.
type Key struct {
	Code      VirtualKey
	Modifiers Modifiers
}

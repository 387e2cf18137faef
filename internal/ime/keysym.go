package ime

// IBus key event state masks.
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super
	IBusSuperMask   uint32 = 1 << 26
	IBusMetaMask    uint32 = 1 << 28
	IBusReleaseMask uint32 = 1 << 30
)

// X11/GDK key symbols the composition core cares about.
const (
	GDKBackSpace = 0xff08
	GDKTab       = 0xff09
	GDKReturn    = 0xff0d
	GDKKPEnter   = 0xff8d
	GDKEscape    = 0xff1b
	GDKHome      = 0xff50
	GDKLeft      = 0xff51
	GDKUp        = 0xff52
	GDKRight     = 0xff53
	GDKDown      = 0xff54
	GDKPageUp    = 0xff55
	GDKPageDown  = 0xff56
	GDKEnd       = 0xff57
	GDKDelete    = 0xffff
	GDKSpace     = 0x0020
	GDKMinus     = 0x002d
)

var keysymToVK = map[uint32]VirtualKey{
	GDKBackSpace: VKBack,
	GDKTab:       VKTab,
	GDKReturn:    VKReturn,
	GDKKPEnter:   VKReturn,
	GDKEscape:    VKEscape,
	GDKHome:      VKHome,
	GDKLeft:      VKLeft,
	GDKUp:        VKUp,
	GDKRight:     VKRight,
	GDKDown:      VKDown,
	GDKPageUp:    VKPrior,
	GDKPageDown:  VKNext,
	GDKEnd:       VKEnd,
	GDKDelete:    VKDelete,
	GDKSpace:     VKSpace,
	GDKMinus:     VKOEMMinus,
}

// KeyFromKeysym translates an IBus key event into a Key. It returns false
// for key releases, which the core never handles. Keysyms with no virtual
// key equivalent map to code 0 and always pass through.
func KeyFromKeysym(keyval, state uint32) (Key, bool) {
	if state&IBusReleaseMask != 0 {
		return Key{}, false
	}

	var mods Modifiers
	if state&IBusShiftMask != 0 {
		mods |= ModShift
	}
	if state&IBusControlMask != 0 {
		mods |= ModControl
	}
	if state&IBusMod1Mask != 0 {
		mods |= ModAlt
	}
	if state&(IBusMod4Mask|IBusSuperMask|IBusMetaMask) != 0 {
		mods |= ModMeta
	}

	switch {
	case keyval >= 'a' && keyval <= 'z':
		return Key{Code: VKA + VirtualKey(keyval-'a'), Modifiers: mods}, true
	case keyval >= 'A' && keyval <= 'Z':
		return Key{Code: VKA + VirtualKey(keyval-'A'), Modifiers: mods | ModShift}, true
	case keyval >= '0' && keyval <= '9':
		return Key{Code: VK0 + VirtualKey(keyval-'0'), Modifiers: mods}, true
	}
	return Key{Code: keysymToVK[keyval], Modifiers: mods}, true
}

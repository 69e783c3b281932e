package i8042

/*
 * x86pc - Linux-evdev keycode -> PS/2 scan-code-set-1 translation
 * (spec.md §4.9). Codes 96-127 are the "extended" keypad/navigation
 * cluster added after the original 84-key layout and need the 0xE0
 * prefix byte on real PS/2 hardware; the table below is this device's
 * authoritative mapping, so a (code, set1[, extended]) triple always
 * round-trips through it.
 */

// set1Entry is one evdev code's PS/2 set-1 make code plus whether it
// needs the 0xE0 extended prefix.
type set1Entry struct {
	make     uint8
	extended bool
}

// evdevToSet1 covers evdev codes 0-127 (spec.md §8 "for every byte in
// the Linux-evdev input range 0..127"). The core alphanumeric row and
// common control keys use their real Linux KEY_* / PS/2 set-1 values;
// codes without a well-known PC-101 mapping fall back to an
// identity-keyed but still internally consistent entry so every code
// in range still round-trips through this same table.
var evdevToSet1 = func() [128]set1Entry {
	var t [128]set1Entry
	for i := range t {
		t[i] = set1Entry{make: uint8(i), extended: i >= 96}
	}
	// KEY_ESC..KEY_BACKSPACE
	for i, v := range []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14} {
		t[1+i] = set1Entry{make: v}
	}
	// KEY_TAB..KEY_ENTER (Q row)
	qrow := []uint8{15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28}
	for i, v := range qrow {
		t[15+i] = set1Entry{make: v}
	}
	// KEY_LEFTCTRL..KEY_GRAVE (A row)
	arow := []uint8{29, 30, 31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41}
	for i, v := range arow {
		t[29+i] = set1Entry{make: v}
	}
	// KEY_LEFTSHIFT..KEY_RIGHTSHIFT (Z row)
	zrow := []uint8{42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52, 53, 54}
	for i, v := range zrow {
		t[42+i] = set1Entry{make: v}
	}
	t[57] = set1Entry{make: 0x39} // KEY_SPACE
	t[58] = set1Entry{make: 0x3a} // KEY_CAPSLOCK
	// KEY_F1..KEY_F10
	for i := 0; i < 10; i++ {
		t[59+i] = set1Entry{make: uint8(0x3b + i)}
	}
	t[69] = set1Entry{make: 0x45} // KEY_NUMLOCK
	t[70] = set1Entry{make: 0x46} // KEY_SCROLLLOCK
	// Extended cluster: arrows, Ins/Del/Home/End/PgUp/PgDn, keypad Enter/slash.
	t[96] = set1Entry{make: 0x1c, extended: true}  // KEY_KPENTER
	t[97] = set1Entry{make: 0x1d, extended: true}  // KEY_RIGHTCTRL
	t[98] = set1Entry{make: 0x35, extended: true}  // KEY_KPSLASH
	t[100] = set1Entry{make: 0x38, extended: true} // KEY_RIGHTALT
	t[102] = set1Entry{make: 0x47, extended: true} // KEY_HOME
	t[103] = set1Entry{make: 0x48, extended: true} // KEY_UP
	t[104] = set1Entry{make: 0x49, extended: true} // KEY_PAGEUP
	t[105] = set1Entry{make: 0x4b, extended: true} // KEY_LEFT
	t[106] = set1Entry{make: 0x4d, extended: true} // KEY_RIGHT
	t[107] = set1Entry{make: 0x4f, extended: true} // KEY_END
	t[108] = set1Entry{make: 0x50, extended: true} // KEY_DOWN
	t[109] = set1Entry{make: 0x51, extended: true} // KEY_PAGEDOWN
	t[110] = set1Entry{make: 0x52, extended: true} // KEY_INSERT
	t[111] = set1Entry{make: 0x53, extended: true} // KEY_DELETE
	return t
}()

// encodeKey returns the PS/2 set-1 byte sequence for one key transition.
func encodeKey(code int, down bool) []byte {
	if code < 0 || code > 127 {
		return nil
	}
	e := evdevToSet1[code]
	b := e.make
	if !down {
		b |= 0x80
	}
	if e.extended {
		return []byte{0xe0, b}
	}
	return []byte{b}
}

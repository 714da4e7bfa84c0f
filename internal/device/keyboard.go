package device

// KeyMapper is implemented by devices that map physical keys to fragments.
type KeyMapper interface {
	// KeyIndex returns the fragment index lit by key.
	KeyIndex(key Key) (int, bool)

	// Keys returns every mapped key.
	Keys() []Key
}

// Keyboard is a Surface whose fragments correspond to physical keys.
type Keyboard struct {
	*Surface
	keys map[Key]int
}

// NewKeyboard creates a keyboard surface with a key to fragment index map.
// Keys whose index is outside the layout are dropped.
//
// Parameters:
//   - cfg: surface description
//   - keys: key to fragment index map; nil selects DefaultKeyMap for a
//     standard 22x6 grid
//
// Returns:
//   - *Keyboard: the keyboard device
//   - error: ErrInvalidLayout if the layout is empty
func NewKeyboard(cfg SurfaceConfig, keys map[Key]int) (*Keyboard, error) {
	if cfg.Type == "" {
		cfg.Type = TypeKeyboard
	}
	s, err := NewSurface(cfg)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = DefaultKeyMap()
	}
	m := make(map[Key]int, len(keys))
	for k, idx := range keys {
		if idx >= 0 && idx < s.LEDCount() {
			m[k] = idx
		}
	}
	return &Keyboard{Surface: s, keys: m}, nil
}

// KeyIndex returns the fragment index lit by key.
func (k *Keyboard) KeyIndex(key Key) (int, bool) {
	idx, ok := k.keys[key]
	return idx, ok
}

// Keys returns every mapped key in unspecified order.
func (k *Keyboard) Keys() []Key {
	out := make([]Key, 0, len(k.keys))
	for key := range k.keys {
		out = append(out, key)
	}
	return out
}

// DefaultKeyMap returns the US layout mapping for a 22x6 keyboard grid.
func DefaultKeyMap() map[Key]int {
	rows := [KeyboardRows][]Key{
		{"", "Escape", "", "F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12", "PrintScreen", "ScrollLock", "Pause"},
		{"", "Backquote", "1", "2", "3", "4", "5", "6", "7", "8", "9", "0", "Minus", "Equal", "Backspace", "Insert", "Home", "PageUp", "NumLock", "NumDivide", "NumMultiply", "NumSubtract"},
		{"", "Tab", "Q", "W", "E", "R", "T", "Y", "U", "I", "O", "P", "LeftBracket", "RightBracket", "Backslash", "Delete", "End", "PageDown", "Num7", "Num8", "Num9", "NumAdd"},
		{"", "CapsLock", "A", "S", "D", "F", "G", "H", "J", "K", "L", "Semicolon", "Apostrophe", "", "Enter", "", "", "", "Num4", "Num5", "Num6"},
		{"", "LeftShift", "", "Z", "X", "C", "V", "B", "N", "M", "Comma", "Period", "Slash", "", "RightShift", "", "Up", "", "Num1", "Num2", "Num3", "NumEnter"},
		{"", "LeftControl", "LeftWindows", "LeftAlt", "", "", "", "Space", "", "", "", "RightAlt", "Function", "RightMenu", "RightControl", "Left", "Down", "Right", "", "Num0", "NumDecimal"},
	}
	m := make(map[Key]int, 110)
	for y, row := range rows {
		for x, key := range row {
			if key != "" && x < KeyboardColumns {
				m[key] = y*KeyboardColumns + x
			}
		}
	}
	return m
}

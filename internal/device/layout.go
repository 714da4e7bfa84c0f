package device

// Grid sizes of the standard device kinds.
//
// These match the fixed colour array sizes of the native vendor SDKs so that
// fragment index i maps straight onto array slot i.
const (
	KeyboardColumns = 22
	KeyboardRows    = 6
	MouseColumns    = 9
	MouseRows       = 7
	KeypadColumns   = 5
	KeypadRows      = 4
	HeadsetLEDs     = 5
	MousepadLEDs    = 15
	ChromaLinkLEDs  = 5
)

// Grid returns a row-major layout of cols x rows fragments with its top-left
// corner at origin.
func Grid(origin Fragment, cols, rows int) []Fragment {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	out := make([]Fragment, 0, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out = append(out, Fragment{X: origin.X + x, Y: origin.Y + y})
		}
	}
	return out
}

// Strip returns n fragments in a horizontal line starting at origin.
func Strip(origin Fragment, n int) []Fragment {
	return Grid(origin, n, 1)
}

// StandardLayout returns the default fragment layout for a device type, placed
// at origin. Unknown types return nil.
func StandardLayout(t Type, origin Fragment) []Fragment {
	switch t {
	case TypeKeyboard:
		return Grid(origin, KeyboardColumns, KeyboardRows)
	case TypeMouse:
		return Grid(origin, MouseColumns, MouseRows)
	case TypeKeypad:
		return Grid(origin, KeypadColumns, KeypadRows)
	case TypeHeadset:
		return Strip(origin, HeadsetLEDs)
	case TypeMousepad:
		return Strip(origin, MousepadLEDs)
	case TypeChromaLink:
		return Strip(origin, ChromaLinkLEDs)
	default:
		return nil
	}
}

// Bounds returns the inclusive bounding box of frags.
func Bounds(frags []Fragment) (minF, maxF Fragment) {
	if len(frags) == 0 {
		return Fragment{}, Fragment{}
	}
	minF, maxF = frags[0], frags[0]
	for _, f := range frags[1:] {
		minF.X = min(minF.X, f.X)
		minF.Y = min(minF.Y, f.Y)
		maxF.X = max(maxF.X, f.X)
		maxF.Y = max(maxF.Y, f.Y)
	}
	return minF, maxF
}

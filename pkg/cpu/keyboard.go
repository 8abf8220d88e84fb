package cpu

// KeyCount is the number of keys on the hex keypad.
const KeyCount = 16

// symbolKeys maps host key symbols to keypad nibbles.
//
//	1 2 3 4    0 1 2 3
//	q w e r -> 4 5 6 7
//	a s d f    8 9 A B
//	z x c v    C D E F
var symbolKeys = map[rune]byte{
	'1': 0x0, '2': 0x1, '3': 0x2, '4': 0x3,
	'q': 0x4, 'w': 0x5, 'e': 0x6, 'r': 0x7,
	'a': 0x8, 's': 0x9, 'd': 0xA, 'f': 0xB,
	'z': 0xC, 'x': 0xD, 'c': 0xE, 'v': 0xF,
}

// KeySymbols lists the host symbols in keypad order.
var KeySymbols = [KeyCount]rune{
	'1', '2', '3', '4',
	'q', 'w', 'e', 'r',
	'a', 's', 'd', 'f',
	'z', 'x', 'c', 'v',
}

// KeyForSymbol returns the keypad nibble for a host key symbol.
// Upper-case letters are accepted as well.
func KeyForSymbol(r rune) (byte, bool) {
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}
	k, ok := symbolKeys[r]
	return k, ok
}

// Keyboard tracks the keypad state and drives the blocking key read.
//
// The blocking read is a two state machine. Await moves Idle to Awaiting and
// clears the edge flag on first entry only, so a key-down arriving between
// retries is kept. Ack consumes the edge flag and returns to Idle.
type Keyboard struct {
	keys     [KeyCount]bool
	lastKey  byte
	keypress bool
	awaiting bool
}

// Notify records a key-down or key-up event. Keys outside 0x0-0xF are ignored.
func (k *Keyboard) Notify(key byte, down bool) {
	if key >= KeyCount {
		return
	}
	k.keys[key] = down
	if down {
		k.keypress = true
		k.lastKey = key
	}
}

// Key reports whether key n is held down.
func (k *Keyboard) Key(n byte) bool {
	if n >= KeyCount {
		return false
	}
	return k.keys[n]
}

// LastKey returns the most recently pressed key.
func (k *Keyboard) LastKey() byte {
	return k.lastKey
}

func (k *Keyboard) Await() {
	if !k.awaiting {
		k.keypress = false
	}
	k.awaiting = true
}

func (k *Keyboard) Ack() bool {
	if !k.keypress {
		return false
	}
	k.keypress = false
	k.awaiting = false
	return true
}

// Awaiting reports whether a blocking key read is in progress.
func (k *Keyboard) Awaiting() bool {
	return k.awaiting
}

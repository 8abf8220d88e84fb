package cpu

// Timer is an 8-bit countdown register decremented by an external 60Hz tick.
type Timer struct {
	value byte
}

func (t *Timer) Set(v byte) {
	t.value = v
}

// Tick decrements the timer unless it already reached zero.
func (t *Timer) Tick() {
	if t.value != 0 {
		t.value--
	}
}

func (t *Timer) Value() byte {
	return t.value
}

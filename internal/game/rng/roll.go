package rng

// Chance rolls a probability check against src.
//
// Precondition: src must be non-nil.
// Postcondition: Returns true with probability clamp01(p); p <= 0 never
// succeeds and p >= 1 always succeeds.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Jitter perturbs value by a uniform factor in [1-fraction, 1+fraction].
//
// Precondition: src must be non-nil; fraction must be in [0, 1].
// Postcondition: Returns value * f for some f in [1-fraction, 1+fraction].
func Jitter(src Source, value float64, fraction float64) float64 {
	if fraction == 0 {
		return value
	}
	f := 1 - fraction + src.Float64()*2*fraction
	return value * f
}

// Clamp01 clamps p to the closed interval [0, 1].
func Clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// fixedSource is a Source that replays scripted values; used by tests that
// need exact roll sequences (forced hits, forced crits, disabled jitter).
type fixedSource struct {
	ints     []int
	floats   []float64
	intIdx   int
	floatIdx int
}

// NewFixedSource returns a Source that replays the given int and float
// streams in order, repeating the final value once a stream is exhausted.
//
// Precondition: at least one of ints/floats must be non-empty for the
// corresponding method to be called.
func NewFixedSource(ints []int, floats []float64) Source {
	return &fixedSource{ints: ints, floats: floats}
}

func (f *fixedSource) Intn(n int) int {
	if len(f.ints) == 0 {
		panic("rng: fixed source has no int values")
	}
	v := f.ints[f.intIdx]
	if f.intIdx < len(f.ints)-1 {
		f.intIdx++
	}
	if v >= n {
		v = n - 1
	}
	return v
}

func (f *fixedSource) Float64() float64 {
	if len(f.floats) == 0 {
		panic("rng: fixed source has no float values")
	}
	v := f.floats[f.floatIdx]
	if f.floatIdx < len(f.floats)-1 {
		f.floatIdx++
	}
	return v
}

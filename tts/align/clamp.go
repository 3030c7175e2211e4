package align

// Boundary is a spoken word expressed as a rune offset and length.
type Boundary struct {
	Offset int
	Length int
}

// End returns the exclusive end offset.
func (b Boundary) End() int {
	return b.Offset + b.Length
}

// Clamp forces boundary events into a non-decreasing, non-overlapping
// sequence. Providers report timing with jitter; an event that starts inside
// the previous one is moved to its end, and an event that ends there is
// dropped. Events are never reordered.
type Clamp struct {
	lastEnd int
}

// Apply returns the clamped boundary, or false when nothing is left of it.
func (c *Clamp) Apply(b Boundary) (Boundary, bool) {
	start := b.Offset
	if start < c.lastEnd {
		start = c.lastEnd
	}
	end := b.End()
	if end <= start {
		return Boundary{}, false
	}
	c.lastEnd = end
	return Boundary{Offset: start, Length: end - start}, true
}

// Reset starts a new sequence.
func (c *Clamp) Reset() {
	c.lastEnd = 0
}

package prediction

// Correction smooths a single post-rollback visual discontinuity toward
// the authoritative value over a handful of ticks using an ease-out
// curve. Starting a new correction replaces any in-flight one outright
// rather than stacking corrections on top of each other.
type Correction struct {
	from       any
	totalTicks float64
	elapsed    float64
}

// NewCorrection begins blending away from the pre-rollback value over
// factor*replaySteps ticks.
func NewCorrection(from any, replaySteps int32, factor float64) *Correction {
	total := factor * float64(replaySteps)
	if total < 1 {
		total = 1
	}
	return &Correction{from: from, totalTicks: total}
}

// Done reports whether the blend has finished.
func (c *Correction) Done() bool { return c.elapsed >= c.totalTicks }

// Advance steps the blend forward by one tick and returns the ease-out
// weight (0..1) to apply toward the authoritative value this tick.
func (c *Correction) Advance() float64 {
	if c.Done() {
		return 1
	}
	c.elapsed++
	p := c.elapsed / c.totalTicks
	if p > 1 {
		p = 1
	}
	inv := 1 - p
	return 1 - inv*inv*inv // ease-out cubic
}

// Blend applies the correction's current weight between the saved
// pre-rollback value and to, via a caller-supplied lerp (components are
// type-erased to this package).
func (c *Correction) Blend(to any, lerp func(from, to any, t float64) any) any {
	return lerp(c.from, to, c.Advance())
}

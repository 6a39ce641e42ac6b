package timestamp

// Anchor pairs a timestamp marker with the monotonic sequence number observed
// when it was seen. Sequence is -1 when no probe reply had been seen yet.
type Anchor struct {
	Value    Value
	Sequence int
	Line     int
}

// Correlation compares two consecutive anchors.
type Correlation struct {
	Previous        Anchor
	Current         Anchor
	ElapsedSeconds  float64
	ElapsedSequence int
	// SequenceKnown is false when either anchor predates the first probe
	// reply; ElapsedSequence and Drift are then zero.
	SequenceKnown bool
	// Drift is ElapsedSeconds - ElapsedSequence. The probe sends roughly one
	// request per second, so a large drift points at a stalled or bursty feed.
	Drift float64
}

// Correlator tracks the current and previous anchors of a run.
type Correlator struct {
	current  *Anchor
	previous *Anchor
	anchors  int
}

// Observe parses raw and records it as the current anchor at the given
// sequence number. It returns a Correlation once a previous anchor exists.
//
// A marker that cannot be parsed leaves the anchors untouched. A marker on a
// different date than the previous one becomes the new anchor but yields an
// *UnsupportedTimeSpanError instead of a correlation.
func (c *Correlator) Observe(raw string, sequence, line int) (*Correlation, error) {
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	c.previous = c.current
	c.current = &Anchor{Value: v, Sequence: sequence, Line: line}
	c.anchors++

	if c.previous == nil {
		return nil, nil
	}

	elapsed, err := v.Sub(c.previous.Value)
	if err != nil {
		return nil, err
	}
	corr := &Correlation{
		Previous:       *c.previous,
		Current:        *c.current,
		ElapsedSeconds: elapsed,
	}
	if c.previous.Sequence >= 0 && c.current.Sequence >= 0 {
		corr.SequenceKnown = true
		corr.ElapsedSequence = c.current.Sequence - c.previous.Sequence
		corr.Drift = elapsed - float64(corr.ElapsedSequence)
	}
	return corr, nil
}

// Current returns the most recent anchor, if any.
func (c *Correlator) Current() (Anchor, bool) {
	if c.current == nil {
		return Anchor{}, false
	}
	return *c.current, true
}

// Anchors returns the number of markers recorded.
func (c *Correlator) Anchors() int { return c.anchors }

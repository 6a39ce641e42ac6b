package compute

import "fmt"

// SequenceWrap is the period of the probe's 16-bit icmp_seq counter.
const SequenceWrap = 65536

// Evidence is the network state implied by a sequence-bearing event.
type Evidence int

// Tracker states. None is only seen before the first observation.
const (
	None Evidence = iota
	Up
	Down
)

func (e Evidence) String() string {
	switch e {
	case None:
		return "none"
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("evidence(%d)", int(e))
	}
}

// MarshalText lets Evidence render by name in JSON and YAML reports.
func (e Evidence) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Interval is a contiguous run of monotonic sequence numbers that share the
// same up/down state. Explanation names the event category that opened it.
// Intervals of one run never share a sequence number.
type Interval struct {
	Kind        Evidence `json:"kind" yaml:"kind"`
	Start       int      `json:"start" yaml:"start"`
	End         int      `json:"end" yaml:"end"`
	Explanation string   `json:"explanation" yaml:"explanation"`
}

// Length is the number of sequence numbers covered by the interval.
func (iv Interval) Length() int {
	return iv.End - iv.Start + 1
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s [%d, %d] len=%d (%s)", iv.Kind, iv.Start, iv.End, iv.Length(), iv.Explanation)
}

// Tracker turns the probe's wrapping sequence ordinal into a monotonic counter
// and groups consecutive observations into up and down intervals.
//
// The zero value is ready to use.
type Tracker struct {
	offset      int
	sequence    int // current monotonic value
	lastRaw     int
	initialized bool

	state Evidence
	open  Interval
	last  *Interval // most recently closed interval

	upSamples   int
	downSamples int
}

// Observe records an event of the given kind at raw ordinal raw.
//
// A raw value of 0 after the tracker has been initialized means the 16-bit
// counter wrapped, and the offset grows by SequenceWrap. A negative raw value
// means the event carried no ordinal; it is attributed to the current
// monotonic position and ignored before the first ordinal is seen.
//
// When the kind differs from the current state the open interval is closed at
// monotonic-1 and returned with ok set. An interval is never closed before its
// start; when an event without an ordinal flips the state at the interval's
// only sequence number, the new interval opens one past it. The very first observation opens an
// interval without closing one.
func (t *Tracker) Observe(kind Evidence, raw int, explanation string) (closed Interval, ok bool) {
	if kind != Up && kind != Down {
		return Interval{}, false
	}
	if raw < 0 {
		if !t.initialized {
			return Interval{}, false
		}
	} else {
		if raw == 0 && t.initialized && t.lastRaw != 0 {
			t.offset += SequenceWrap
		}
		t.lastRaw = raw
		t.sequence = raw + t.offset
		t.initialized = true
	}

	if kind == Up {
		t.upSamples++
	} else {
		t.downSamples++
	}

	seq := t.sequence
	switch {
	case t.state == None:
		t.open = Interval{Kind: kind, Start: seq, End: seq, Explanation: explanation}
	case t.state != kind:
		end := seq - 1
		if end < t.open.Start {
			end = t.open.Start
		}
		t.open.End = end
		closed, ok = t.open, true
		t.last = &closed
		start := seq
		if start <= end {
			start = end + 1
		}
		t.open = Interval{Kind: kind, Start: start, End: start, Explanation: explanation}
	default:
		if seq > t.open.End {
			t.open.End = seq
		}
	}
	t.state = kind
	return closed, ok
}

// State returns the current network state.
func (t *Tracker) State() Evidence { return t.state }

// Sequence returns the current monotonic sequence number, or -1 before the
// first ordinal has been observed.
func (t *Tracker) Sequence() int {
	if !t.initialized {
		return -1
	}
	return t.sequence
}

// Offset returns the accumulated wraparound offset.
func (t *Tracker) Offset() int { return t.offset }

// Current returns the open interval. ok is false before the first observation.
func (t *Tracker) Current() (Interval, bool) {
	if t.state == None {
		return Interval{}, false
	}
	return t.open, true
}

// LastClosed returns the most recently closed interval.
func (t *Tracker) LastClosed() (Interval, bool) {
	if t.last == nil {
		return Interval{}, false
	}
	return *t.last, true
}

// Samples returns the number of up and down observations recorded.
func (t *Tracker) Samples() (up, down int) {
	return t.upSamples, t.downSamples
}

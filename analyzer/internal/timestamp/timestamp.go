// Package timestamp parses and differences the ISO-8601 markers that the
// tagger injects into a probe stream, and correlates them with the probe's
// sequence counter.
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Layout is the timestamp layout written by the tagger.
const Layout = "2006-01-02T15:04:05.000000"

// pattern matches a whole YYYY-MM-DDTHH:MM:SS with an optional six-digit
// fraction. ISO formatters drop the fraction when it is exactly zero.
var pattern = regexp.MustCompile(
	`^([0-9]{4})-([0-9]{2})-([0-9]{2})T([0-9]{2}):([0-9]{2}):([0-9]{2})(?:\.([0-9]{6}))?$`)

// Value is a parsed timestamp marker. The raw string is kept for reporting.
type Value struct {
	Raw         string
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Microsecond int
}

// ParseError reports a string that is not a valid timestamp marker.
type ParseError struct {
	Raw string
	// Reason is set when the layout matched but a field is out of range.
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("timestamp: %q: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("timestamp: %q does not match YYYY-MM-DDTHH:MM:SS.ffffff", e.Raw)
}

// UnsupportedTimeSpanError reports a difference between two timestamps that
// fall on different calendar dates. Differences across a date boundary are
// not computed.
type UnsupportedTimeSpanError struct {
	From, To            string
	Years, Months, Days int
}

func (e *UnsupportedTimeSpanError) Error() string {
	return fmt.Sprintf("timestamp: span %s -> %s crosses a date boundary (%+dy %+dm %+dd)",
		e.From, e.To, e.Years, e.Months, e.Days)
}

// Parse splits s into its date and time fields. The whole string must be a
// marker and every field must be in range.
func Parse(s string) (Value, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Value{}, &ParseError{Raw: s}
	}
	fields := make([]int, 7)
	for i := range fields {
		if m[i+1] == "" {
			continue // absent fraction
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Value{}, &ParseError{Raw: s}
		}
		fields[i] = n
	}
	v := Value{
		Raw:         s,
		Year:        fields[0],
		Month:       fields[1],
		Day:         fields[2],
		Hour:        fields[3],
		Minute:      fields[4],
		Second:      fields[5],
		Microsecond: fields[6],
	}
	if reason := v.check(); reason != "" {
		return Value{}, &ParseError{Raw: s, Reason: reason}
	}
	return v, nil
}

func (v Value) check() string {
	switch {
	case v.Month < 1 || v.Month > 12:
		return fmt.Sprintf("month %d out of range", v.Month)
	case v.Day < 1 || v.Day > daysIn(v.Year, v.Month):
		return fmt.Sprintf("day %d out of range for %04d-%02d", v.Day, v.Year, v.Month)
	case v.Hour > 23:
		return fmt.Sprintf("hour %d out of range", v.Hour)
	case v.Minute > 59:
		return fmt.Sprintf("minute %d out of range", v.Minute)
	case v.Second > 59:
		return fmt.Sprintf("second %d out of range", v.Second)
	}
	return ""
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Format renders t in the marker layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parts returns the seven numeric fields, year first.
func (v Value) Parts() [7]int {
	return [7]int{v.Year, v.Month, v.Day, v.Hour, v.Minute, v.Second, v.Microsecond}
}

// SameDate reports whether v and o fall on the same calendar date.
func (v Value) SameDate(o Value) bool {
	return v.Year == o.Year && v.Month == o.Month && v.Day == o.Day
}

// Sub returns v minus o in seconds. Both values must be on the same calendar
// date; otherwise an *UnsupportedTimeSpanError is returned.
func (v Value) Sub(o Value) (float64, error) {
	if !v.SameDate(o) {
		return 0, &UnsupportedTimeSpanError{
			From:   o.Raw,
			To:     v.Raw,
			Years:  v.Year - o.Year,
			Months: v.Month - o.Month,
			Days:   v.Day - o.Day,
		}
	}
	secs := (v.Hour-o.Hour)*3600 + (v.Minute-o.Minute)*60 + (v.Second - o.Second)
	return float64(secs) + float64(v.Microsecond-o.Microsecond)/1e6, nil
}

func (v Value) String() string {
	return v.Raw
}

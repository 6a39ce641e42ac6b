// Package classify assigns a category to each line of probe output.
//
// Most records are one line long. Two sub-protocols read ahead: a send
// failure ("Network is down", "No route to host") is always followed by the
// timeout line that carries its sequence number, and an ICMP error report
// ("92 bytes from") spans three further lines that may be interleaved with
// timestamp comments written by a concurrent tagger.
package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pinglog/pinglog/analyzer/internal/linebuf"
)

// DefaultThreshold is the RTT, in milliseconds, above which a reply is
// classified RTTTooLong.
const DefaultThreshold = 100.0

// DefaultTimestampPattern recognizes tagged and untagged timestamp comments:
//
//	# timestamp: pid-4242: 2017-12-25T10:15:30.123456
//	# timestamp: 2017-12-25T10:15:30.123456
const DefaultTimestampPattern = `^# timestamp: (?:\S+: )?(?P<ts>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?)(?:\s|$)`

// Literal line shapes emitted by the probe.
const (
	lineNetworkDown = "ping: sendto: Network is down"
	lineNoRoute     = "ping: sendto: No route to host"
	prefixComment   = "#"
	prefixInit      = "PING "
	prefixTimeout   = "Request timeout for icmp_seq "
	prefixReply     = "64 bytes from "
	prefixICMPError = "92 bytes from "
	icmpErrorHeader = "Vr HL TOS  Len   ID Flg  off TTL Pro  cks      Src      Dst"
)

// 64 bytes from 166.84.1.3: icmp_seq=64539 ttl=246 time=23.707 ms
var replyPattern = regexp.MustCompile(
	`^64 bytes from (\d+\.\d+\.\d+\.\d+): icmp_seq=(\d+) ttl=(\d+) time=(-?\d+(?:\.\d*)?) ms`)

// Config holds the classifier parameters.
type Config struct {
	// Threshold is the RTT in milliseconds above which a reply is too long.
	// Zero means DefaultThreshold.
	Threshold float64

	// TimestampPattern recognizes timestamp comment lines. It must contain a
	// capture group for the timestamp itself; a group named "ts" is preferred,
	// otherwise the first group is used. Empty means DefaultTimestampPattern.
	TimestampPattern string
}

// Event is the classification of one logical record.
type Event struct {
	Category Category
	// Seq is the raw icmp_seq for sequence-bearing categories, -1 otherwise
	// or when the record carried none.
	Seq int
	// Timestamp is the embedded marker of a Timestamp comment.
	Timestamp string
	// RTT and Host are set for replies.
	RTT  float64
	Host string
	// Line is the physical line number of the record's first line.
	Line int
}

// LineSource is the lookahead buffer the classifier reads from.
type LineSource interface {
	Next() (linebuf.Line, bool)
	PushBack(linebuf.Line)
}

// MalformedRecordError reports a line that has the prefix of a known record
// but cannot be parsed.
type MalformedRecordError struct {
	Line   int
	Text   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("classify: line %d: malformed record: %s: %q", e.Line, e.Reason, e.Text)
}

// Classifier turns lines into Events. It is not safe for concurrent use.
type Classifier struct {
	threshold  float64
	recognizer *regexp.Regexp
	tsGroup    int
	warnings   int
}

// New validates cfg and builds a Classifier.
func New(cfg Config) (*Classifier, error) {
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("classify: threshold must be >= 0, got %v", cfg.Threshold)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.TimestampPattern == "" {
		cfg.TimestampPattern = DefaultTimestampPattern
	}
	re, err := regexp.Compile(cfg.TimestampPattern)
	if err != nil {
		return nil, fmt.Errorf("classify: timestamp pattern: %w", err)
	}
	if re.NumSubexp() == 0 {
		return nil, fmt.Errorf("classify: timestamp pattern %q has no capture group", cfg.TimestampPattern)
	}
	group := re.SubexpIndex("ts")
	if group < 0 {
		group = 1
	}
	return &Classifier{threshold: cfg.Threshold, recognizer: re, tsGroup: group}, nil
}

// Threshold returns the RTT threshold in milliseconds.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Warnings returns the number of sub-protocol mismatches seen so far.
func (c *Classifier) Warnings() int { return c.warnings }

// IsTimestamp reports whether text is a timestamp marker. Classify and the
// gateway-failure protocol both decide by this rule.
func (c *Classifier) IsTimestamp(text string) bool {
	_, ok := c.marker(strings.TrimSpace(text))
	return ok
}

// marker returns the captured timestamp when the recognizer matches text.
func (c *Classifier) marker(text string) (string, bool) {
	m := c.recognizer.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[c.tsGroup], true
}

// Classify assigns a category to line, reading further lines from src when the
// record spans several lines. Lines read ahead and not consumed are pushed back
// onto src.
func (c *Classifier) Classify(src LineSource, line linebuf.Line) (Event, error) {
	text := strings.TrimSpace(line.Text)
	ev := Event{Seq: -1, Line: line.Number}
	ts, isMarker := c.marker(text)

	switch {
	case text == lineNetworkDown:
		seq, err := c.expectTimeout(src, line.Number, "network down")
		if err != nil {
			return Event{}, err
		}
		ev.Category, ev.Seq = Down, seq

	case isMarker:
		ev.Category, ev.Timestamp = Timestamp, ts

	case strings.HasPrefix(text, prefixComment):
		ev.Category = Comment

	case strings.HasPrefix(text, prefixInit):
		ev.Category = Initialization

	case text == lineNoRoute:
		seq, err := c.expectTimeout(src, line.Number, "no route")
		if err != nil {
			return Event{}, err
		}
		ev.Category, ev.Seq = Route, seq

	case strings.HasPrefix(text, prefixTimeout):
		seq, err := timeoutSeq(text, line.Number)
		if err != nil {
			return Event{}, err
		}
		ev.Category, ev.Seq = Timeout, seq

	case strings.HasPrefix(text, prefixReply):
		host, seq, rtt, err := ParseReply(text)
		if err != nil {
			return Event{}, &MalformedRecordError{Line: line.Number, Text: text, Reason: err.Error()}
		}
		ev.Seq, ev.RTT, ev.Host = seq, rtt, host
		switch {
		case rtt < 0:
			ev.Category = NegativeRTT
		case rtt > c.threshold:
			ev.Category = RTTTooLong
		default:
			ev.Category = Normal
		}

	case strings.HasPrefix(text, prefixICMPError):
		c.gatewayFailure(src, line.Number)
		ev.Category = GWFailure

	default:
		slog.Warn("classify: unexpected line", "line", line.Number, "text", text)
		ev.Category = Unexpected
	}
	return ev, nil
}

// ParseReply extracts host, icmp_seq and RTT from a reply line.
func ParseReply(text string) (host string, seq int, rtt float64, err error) {
	m := replyPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", 0, 0, fmt.Errorf("reply does not match %q", replyPattern.String())
	}
	seq, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("icmp_seq: %w", err)
	}
	rtt, err = strconv.ParseFloat(m[4], 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("time: %w", err)
	}
	return m[1], seq, rtt, nil
}

func timeoutSeq(text string, lineNo int) (int, error) {
	tail := strings.TrimSpace(strings.TrimPrefix(text, prefixTimeout))
	seq, err := strconv.Atoi(tail)
	if err != nil || seq < 0 {
		return 0, &MalformedRecordError{Line: lineNo, Text: text, Reason: "icmp_seq is not a non-negative integer"}
	}
	return seq, nil
}

// expectTimeout consumes the timeout line that follows a send failure and
// returns its sequence number, or -1 when the line is missing or of another
// shape.
func (c *Classifier) expectTimeout(src LineSource, lineNo int, protocol string) (int, error) {
	next, ok := src.Next()
	if !ok {
		c.warn(protocol, lineNo, "input ended before the timeout line")
		return -1, nil
	}
	text := strings.TrimSpace(next.Text)
	if !strings.HasPrefix(text, prefixTimeout) {
		c.warn(protocol, next.Number, "expected a timeout line", "text", text)
		return -1, nil
	}
	return timeoutSeq(text, next.Number)
}

// gatewayFailure consumes the header, data and blank lines of an ICMP error
// report. Timestamp comments found in those slots are set aside and pushed
// back afterwards in their original order.
func (c *Classifier) gatewayFailure(src LineSource, lineNo int) {
	const protocol = "gateway failure"
	var displaced []linebuf.Line
	defer func() {
		for i := len(displaced) - 1; i >= 0; i-- {
			src.PushBack(displaced[i])
		}
	}()

	for slot := 0; slot < 3; slot++ {
		var (
			next linebuf.Line
			ok   bool
		)
		for {
			next, ok = src.Next()
			if !ok || !c.IsTimestamp(next.Text) {
				break
			}
			displaced = append(displaced, next)
		}
		if !ok {
			c.warn(protocol, lineNo, "input ended inside the error report", "slot", slot)
			return
		}
		text := strings.TrimSpace(next.Text)
		switch slot {
		case 0:
			if text != icmpErrorHeader {
				c.warn(protocol, next.Number, "unexpected header line", "text", text)
			}
		case 2:
			if text != "" {
				c.warn(protocol, next.Number, "expected a blank line", "text", text)
			}
		}
	}
}

func (c *Classifier) warn(protocol string, lineNo int, msg string, args ...any) {
	c.warnings++
	attrs := append([]any{"protocol", protocol, "line", lineNo}, args...)
	slog.Warn("classify: "+msg, attrs...)
}

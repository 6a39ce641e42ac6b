// Package tagger copies a probe stream line by line and injects a timestamp
// comment every N lines, so the analyzer can correlate sequence numbers with
// wall-clock time.
package tagger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pinglog/pinglog/analyzer/internal/timestamp"
)

// DefaultInterval is the number of lines copied between two markers.
const DefaultInterval = 64

// DefaultTag names the stream after the current process.
func DefaultTag() string {
	return "pid-" + strconv.Itoa(os.Getpid())
}

// Options configures a Filter.
type Options struct {
	// Tag identifies the stream in each marker. Empty means DefaultTag().
	Tag string
	// Interval is the number of lines between markers. Zero means
	// DefaultInterval.
	Interval int
	// NoTag writes "# timestamp: <time>" without the stream tag.
	NoTag bool
	// Banner writes start and end comments around the stream.
	Banner bool
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Stats summarizes one Copy.
type Stats struct {
	Lines   int
	Markers int
}

// Filter inserts timestamp markers into a line stream.
type Filter struct {
	opts Options
}

// New validates opts and returns a Filter.
func New(opts Options) (*Filter, error) {
	if opts.Interval < 0 {
		return nil, fmt.Errorf("tagger: interval must be positive, got %d", opts.Interval)
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tag == "" {
		opts.Tag = DefaultTag()
	}
	if strings.ContainsAny(opts.Tag, " \t\r\n") {
		return nil, fmt.Errorf("tagger: tag %q must not contain whitespace", opts.Tag)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Filter{opts: opts}, nil
}

// Tag returns the stream tag, or "" when markers are untagged.
func (f *Filter) Tag() string {
	if f.opts.NoTag {
		return ""
	}
	return f.opts.Tag
}

// Marker renders the timestamp comment for t.
func (f *Filter) Marker(t time.Time) string {
	if f.opts.NoTag {
		return "# timestamp: " + timestamp.Format(t)
	}
	return "# timestamp: " + f.opts.Tag + ": " + timestamp.Format(t)
}

// Copy streams r to w, writing a marker before line 0, N, 2N, and so on.
// Output is flushed after every line so a downstream reader sees each reply
// as soon as the probe prints it. Copy returns when r is exhausted or ctx is
// cancelled; cancellation is only noticed between lines.
func (f *Filter) Copy(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	var st Stats
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	if f.opts.Banner {
		if err := f.banner(bw); err != nil {
			return st, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			if st.Lines%f.opts.Interval == 0 {
				if _, werr := fmt.Fprintln(bw, f.Marker(f.opts.Now())); werr != nil {
					return st, fmt.Errorf("tagger: write: %w", werr)
				}
				st.Markers++
			}
			if _, werr := fmt.Fprintln(bw, strings.TrimRight(text, "\r\n")); werr != nil {
				return st, fmt.Errorf("tagger: write: %w", werr)
			}
			if werr := bw.Flush(); werr != nil {
				return st, fmt.Errorf("tagger: write: %w", werr)
			}
			st.Lines++
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return st, fmt.Errorf("tagger: read: %w", err)
			}
			break
		}
	}

	if f.opts.Banner {
		fmt.Fprintf(bw, "# pinglog tag: end: %s\n", timestamp.Format(f.opts.Now()))
		fmt.Fprintf(bw, "# pinglog tag: lines: %d\n", st.Lines)
	}
	if err := bw.Flush(); err != nil {
		return st, fmt.Errorf("tagger: write: %w", err)
	}
	return st, nil
}

func (f *Filter) banner(w *bufio.Writer) error {
	fmt.Fprintf(w, "# pinglog tag: start: %s\n", timestamp.Format(f.opts.Now()))
	if f.opts.NoTag {
		fmt.Fprintln(w, "# pinglog tag: no tags")
	} else {
		fmt.Fprintf(w, "# pinglog tag: tag: %s\n", f.opts.Tag)
	}
	fmt.Fprintf(w, "# pinglog tag: interval: %d\n", f.opts.Interval)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("tagger: write: %w", err)
	}
	return nil
}

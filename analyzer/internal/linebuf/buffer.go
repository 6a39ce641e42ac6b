package linebuf

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
)

// DefaultDepth is the lookahead depth used when New is given depth <= 0.
const DefaultDepth = 4

// Line is one line of input with its 1-based physical line number.
// Text has the line terminator removed.
type Line struct {
	Text   string
	Number int
}

// Buffer is a fixed-depth lookahead queue over a line source.
//
// Buffer is not safe for concurrent use, with the exception of Close.
type Buffer struct {
	depth  int
	reader *bufio.Reader
	queue  []Line
	read   int  // physical lines read from the source
	eof    bool // source exhausted; never read again
	err    error

	closer    io.Closer
	closeOnce sync.Once
}

// New returns a Buffer reading from r with the given lookahead depth and
// fills it to depth.
func New(r io.Reader, depth int) *Buffer {
	if depth <= 0 {
		depth = DefaultDepth
	}
	b := &Buffer{
		depth:  depth,
		reader: bufio.NewReader(r),
		queue:  make([]Line, 0, depth+1),
	}
	if c, ok := r.(io.Closer); ok {
		b.closer = c
	}
	b.fill()
	return b
}

// Next removes and returns the head line, then refills the buffer up to its
// depth. It returns false once the source is exhausted and the buffer is
// drained; further calls keep returning false without reading the source.
func (b *Buffer) Next() (Line, bool) {
	if len(b.queue) == 0 {
		b.fill()
		if len(b.queue) == 0 {
			return Line{}, false
		}
	}
	line := b.queue[0]
	b.queue = b.queue[1:]
	b.fill()
	return line, true
}

// PushBack re-inserts line at the head of the buffer. The buffer may grow
// beyond its depth until the extra lines are consumed.
func (b *Buffer) PushBack(line Line) {
	b.queue = append(b.queue, Line{})
	copy(b.queue[1:], b.queue)
	b.queue[0] = line
}

// Len returns the number of lines currently buffered.
func (b *Buffer) Len() int { return len(b.queue) }

// Depth returns the configured lookahead depth.
func (b *Buffer) Depth() int { return b.depth }

// Lines returns the number of physical lines read from the source so far.
func (b *Buffer) Lines() int { return b.read }

// Err returns the first non-EOF error encountered while reading the source.
func (b *Buffer) Err() error { return b.err }

// Close releases the source. It is idempotent.
func (b *Buffer) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.closer != nil {
			err = b.closer.Close()
		}
	})
	return err
}

// fill reads from the source until the queue holds depth lines or the source
// is exhausted.
func (b *Buffer) fill() {
	for !b.eof && len(b.queue) < b.depth {
		text, err := b.reader.ReadString('\n')
		if len(text) > 0 {
			b.read++
			b.queue = append(b.queue, Line{
				Text:   strings.TrimRight(text, "\r\n"),
				Number: b.read,
			})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.err = err
			}
			b.eof = true
			_ = b.Close()
		}
	}
}

// String renders the buffered lines, head first. Used in debug logging.
func (b *Buffer) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, l := range b.queue {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(l.Text))
	}
	sb.WriteByte(']')
	return sb.String()
}

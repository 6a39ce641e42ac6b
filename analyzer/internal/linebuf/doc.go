// Package linebuf provides a lookahead line buffer with pushback over a
// line-oriented source.
//
// Buffer keeps up to Depth lines read ahead of the consumer. Next pops the
// head line and refills; PushBack re-inserts a line at the head so a consumer
// that read too far can undo the read. Pushing several lines back in reverse
// order of retrieval restores the original order.
//
// The buffer owns its source. If the reader is an io.Closer it is closed once
// the source is exhausted, on a read error, or when Close is called. Close is
// safe to call from another goroutine to interrupt a blocked read.
package linebuf

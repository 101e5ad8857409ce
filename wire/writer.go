package wire

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrShortWrite matches send errors where the socket accepted fewer bytes
// than offered without reporting an error.
var ErrShortWrite = errors.New("short write")

// SendError reports a frame write that did not complete.
// The connection is left open; the caller may retry on the next publish.
type SendError struct {
	// Written is the number of frame bytes accepted before the failure.
	Written int
	// Total is the full frame length.
	Total int
	// Err is the underlying socket error, or ErrShortWrite.
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed after %d/%d bytes: %v", e.Written, e.Total, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Short reports whether the failure was an incomplete write.
func (e *SendError) Short() bool {
	return errors.Is(e.Err, ErrShortWrite)
}

// writeDeadliner is implemented by net.Conn.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// FrameWriter writes encoded frames in bounded chunks.
// Each chunk is given its own write deadline so a stalled peer cannot block
// the caller indefinitely, while a slow but progressing peer still completes.
type FrameWriter struct {
	writer    io.Writer
	deadliner writeDeadliner
	timeout   time.Duration
	chunkSize int
}

// NewFrameWriter creates a frame writer. A zero timeout disables deadlines.
func NewFrameWriter(w io.Writer, timeout time.Duration, chunkSize int) *FrameWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	fw := &FrameWriter{
		writer:    w,
		timeout:   timeout,
		chunkSize: chunkSize,
	}
	if wd, ok := w.(writeDeadliner); ok {
		fw.deadliner = wd
	}
	return fw
}

// WriteFrame writes an already-encoded frame.
// Returns *SendError if any chunk fails or is short.
func (fw *FrameWriter) WriteFrame(frame []byte) (int, error) {
	total := 0
	for total < len(frame) {
		end := total + fw.chunkSize
		if end > len(frame) {
			end = len(frame)
		}

		if fw.deadliner != nil && fw.timeout > 0 {
			if err := fw.deadliner.SetWriteDeadline(time.Now().Add(fw.timeout)); err != nil {
				return total, &SendError{Written: total, Total: len(frame), Err: err}
			}
		}

		n, err := fw.writer.Write(frame[total:end])
		total += n
		if err != nil {
			return total, &SendError{Written: total, Total: len(frame), Err: err}
		}
		if n == 0 {
			return total, &SendError{Written: total, Total: len(frame), Err: ErrShortWrite}
		}
	}
	return total, nil
}

// Package wire implements the scene sync framing: a 4-byte big-endian
// length prefix followed by a zlib-compressed JSON payload.
package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Frame size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxOutboundPayload is the largest compressed payload the engine will send (50 MiB).
	MaxOutboundPayload = 50 * 1024 * 1024
	// MaxInboundPayload is the largest declared payload the engine will accept (10 MiB).
	MaxInboundPayload = 10 * 1024 * 1024
	// DefaultChunkSize bounds every individual socket read and write (64 KiB).
	DefaultChunkSize = 64 * 1024
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorClosed indicates the peer closed the connection.
	FrameErrorClosed FrameErrorKind = iota
	// FrameErrorTooLarge indicates a length over the configured limit.
	FrameErrorTooLarge
	// FrameErrorIO indicates an unrecoverable socket error.
	FrameErrorIO
	// FrameErrorDecode indicates a payload that could not be decompressed or parsed.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorClosed:
		return "closed"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorIO:
		return "io"
	case FrameErrorDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors for errors.Is checks against *FrameError.
var (
	// ErrConnectionClosed matches frame errors caused by a peer close.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrFrameTooLarge matches frame errors caused by an oversized length.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrDecode matches malformed payloads.
	ErrDecode = errors.New("decode error")
)

// FrameError represents a framing or payload error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	// Size is the declared or actual payload size when relevant.
	Size int64
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *FrameError) Is(target error) bool {
	switch target {
	case ErrConnectionClosed:
		return e.Kind == FrameErrorClosed
	case ErrFrameTooLarge:
		return e.Kind == FrameErrorTooLarge
	case ErrDecode:
		return e.Kind == FrameErrorDecode
	}
	return false
}

// IsFatal returns true if the error ends the connection.
// Closed and I/O errors are connection-level; oversized and undecodable
// frames are protocol-level and only drop the message.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorClosed || e.Kind == FrameErrorIO
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// EncodeFrame prefixes payload with its 4-byte big-endian length.
func EncodeFrame(payload []byte) ([]byte, error) {
	return EncodeFrameLimit(payload, MaxOutboundPayload)
}

// EncodeFrameLimit is EncodeFrame with a caller-chosen payload limit.
// A limit outside 1..MaxOutboundPayload uses MaxOutboundPayload.
func EncodeFrameLimit(payload []byte, limit int) ([]byte, error) {
	if limit <= 0 || limit > MaxOutboundPayload {
		limit = MaxOutboundPayload
	}
	if len(payload) > limit {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), limit),
			Size: int64(len(payload)),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// readDeadliner is implemented by net.Conn.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// FrameDecoder decodes length-prefixed frames from a stream.
//
// When the reader supports read deadlines and a poll interval is set, each
// read is bounded by that interval; a timeout with no data is retried after
// checking the context, so a cancelled context is noticed within one poll.
type FrameDecoder struct {
	reader     io.Reader
	deadliner  readDeadliner
	poll       time.Duration
	chunkSize  int
	maxPayload int
}

// DecoderOption configures a FrameDecoder.
type DecoderOption func(*FrameDecoder)

// WithChunkSize bounds each individual read.
func WithChunkSize(n int) DecoderOption {
	return func(d *FrameDecoder) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithPollInterval sets the per-read deadline used to poll for cancellation.
func WithPollInterval(poll time.Duration) DecoderOption {
	return func(d *FrameDecoder) {
		d.poll = poll
	}
}

// WithMaxPayload overrides the declared-length limit.
func WithMaxPayload(n int) DecoderOption {
	return func(d *FrameDecoder) {
		if n > 0 {
			d.maxPayload = n
		}
	}
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader, opts ...DecoderOption) *FrameDecoder {
	d := &FrameDecoder{
		reader:     r,
		chunkSize:  DefaultChunkSize,
		maxPayload: MaxInboundPayload,
	}
	if rd, ok := r.(readDeadliner); ok {
		d.deadliner = rd
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadFrame reads a single frame from the stream and returns its payload.
//
// Errors:
//   - ctx.Err(): cancelled while waiting for data
//   - *FrameError with Kind=FrameErrorClosed: peer closed (matches ErrConnectionClosed)
//   - *FrameError with Kind=FrameErrorTooLarge: declared length over the limit;
//     no payload bytes were read, call Discard to skip them
//   - *FrameError with Kind=FrameErrorIO: unrecoverable read error
func (d *FrameDecoder) ReadFrame(ctx context.Context) ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if err := d.readFull(ctx, lengthBuf[:], "length prefix"); err != nil {
		return nil, err
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if int64(payloadSize) > int64(d.maxPayload) {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, d.maxPayload),
			Size: int64(payloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if err := d.readFull(ctx, payload, "payload"); err != nil {
		return nil, err
	}
	return payload, nil
}

// Discard reads and drops n payload bytes using a single chunk-sized
// buffer, keeping the stream aligned after an oversized frame.
func (d *FrameDecoder) Discard(ctx context.Context, n int64) error {
	buf := make([]byte, d.chunkSize)
	for n > 0 {
		step := int64(len(buf))
		if n < step {
			step = n
		}
		if err := d.readFull(ctx, buf[:step], "discarded payload"); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// readFull fills buf in chunk-sized reads, retrying read timeouts.
func (d *FrameDecoder) readFull(ctx context.Context, buf []byte, what string) error {
	got := 0
	for got < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.deadliner != nil && d.poll > 0 {
			if err := d.deadliner.SetReadDeadline(time.Now().Add(d.poll)); err != nil {
				return &FrameError{Kind: FrameErrorIO, Msg: "failed to set read deadline", Err: err}
			}
		}

		end := got + d.chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		n, err := d.reader.Read(buf[got:end])
		got += n

		switch {
		case err == nil && n == 0:
			return &FrameError{
				Kind: FrameErrorClosed,
				Msg:  fmt.Sprintf("zero-length read on %s (%d/%d bytes)", what, got, len(buf)),
			}
		case err == nil:
			continue
		case isTimeout(err):
			continue
		case errors.Is(err, io.EOF):
			if got == len(buf) {
				return nil
			}
			return &FrameError{
				Kind: FrameErrorClosed,
				Msg:  fmt.Sprintf("connection closed reading %s (%d/%d bytes)", what, got, len(buf)),
				Err:  err,
			}
		case errors.Is(err, net.ErrClosed):
			return &FrameError{Kind: FrameErrorClosed, Msg: "connection closed locally", Err: err}
		default:
			return &FrameError{
				Kind: FrameErrorIO,
				Msg:  fmt.Sprintf("failed to read %s (%d/%d bytes)", what, got, len(buf)),
				Err:  err,
			}
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Package iox provides I/O helpers for connection and resource cleanup.
package iox

import (
	"io"
	"sync"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(listener))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Sync) where errors are unactionable:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }

// OnceCloser closes the wrapped Closer at most once. Every call to Close
// returns the result of the first call. Used where a connection may be torn
// down both by Stop and by its own reader goroutine.
type OnceCloser struct {
	c    io.Closer
	once sync.Once
	err  error
}

// NewOnceCloser wraps c.
func NewOnceCloser(c io.Closer) *OnceCloser {
	return &OnceCloser{c: c}
}

// Close closes the underlying Closer on the first call.
func (o *OnceCloser) Close() error {
	o.once.Do(func() { o.err = o.c.Close() })
	return o.err
}

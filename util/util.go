// Package util contains various general utility functions used throughout
// the project.
package util

import (
	"crypto/md5"
	"encoding/hex"
	"runtime"

	"github.com/go-playground/log"
)

// WrapError wraps error types to create compound error chains
func WrapError(text string, err error) error {
	return wrappedError{
		text:  text,
		inner: err,
	}
}

type wrappedError struct {
	text  string
	inner error
}

func (e wrappedError) Error() string {
	text := e.text
	if e.inner != nil {
		text += ": " + e.inner.Error()
	}
	return text
}

// Unwrap returns the wrapped error, if any
func (e wrappedError) Unwrap() error {
	return e.inner
}

// Waterfall executes a slice of functions until the first error returned. This
// error, if any, is returned to the caller.
func Waterfall(fns ...func() error) (err error) {
	for _, fn := range fns {
		err = fn()
		if err != nil {
			break
		}
	}
	return
}

// Parallel executes functions in parallel. The first error is returned, if
// any.
func Parallel(fns ...func() error) error {
	ch := make(chan error, len(fns))
	for i := range fns {
		fn := fns[i]
		go func() {
			ch <- fn()
		}()
	}

	var first error
	for range fns {
		if err := <-ch; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// HashBuffer computes a truncated MD5 hash from a buffer
func HashBuffer(buf []byte) string {
	hash := md5.Sum(buf)
	return hex.EncodeToString(hash[:])[:16]
}

// LogError logs an error with its stack trace
func LogError(ip string, err interface{}) {
	const size = 64 << 10
	buf := make([]byte, size)
	buf = buf[:runtime.Stack(buf, false)]
	log.Errorf("panic serving %v: %v\n%s", ip, err, buf)
}

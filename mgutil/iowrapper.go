package mgutil

import (
	"io"
	"sync"
)

// IOWrapper implements io.ReadWriteCloser by delegating to whichever of its fields are set.
//
// It's useful for giving a plain reader or writer the Close method of a ReadCloser or WriteCloser.
type IOWrapper struct {
	// Locker, if set, is held during every call
	Locker sync.Locker

	Reader io.Reader
	Writer io.Writer
	Closer io.Closer
}

func (iow *IOWrapper) lock() func() {
	if mu := iow.Locker; mu != nil {
		mu.Lock()
		return mu.Unlock
	}
	return func() {}
}

// Read reads from Reader, or returns io.EOF if it's nil
func (iow *IOWrapper) Read(p []byte) (int, error) {
	defer iow.lock()()

	if r := iow.Reader; r != nil {
		return r.Read(p)
	}
	return 0, io.EOF
}

// Write writes to Writer, or discards p if it's nil
func (iow *IOWrapper) Write(p []byte) (int, error) {
	defer iow.lock()()

	if w := iow.Writer; w != nil {
		return w.Write(p)
	}
	return len(p), nil
}

// Close closes Closer if it's set
func (iow *IOWrapper) Close() error {
	defer iow.lock()()

	if c := iow.Closer; c != nil {
		return c.Close()
	}
	return nil
}

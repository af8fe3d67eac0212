package feed

import (
	"io"
	"sync/atomic"
)

// CountingReader wraps an io.Reader to track bytes read.
// BytesRead may be called from another goroutine for progress logging.
type CountingReader struct {
	reader io.Reader
	n      atomic.Int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (r *CountingReader) BytesRead() int64 {
	return r.n.Load()
}

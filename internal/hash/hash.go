package hash

import (
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// DigestWriter wraps an io.Writer and computes an XXH3-64 digest and a byte
// count of all data written through it. The digest identifies output, it is
// not a signature.
type DigestWriter struct {
	writer io.Writer
	hash   *xxh3.Hasher
	n      int64
}

// NewDigestWriter creates a DigestWriter that writes to w.
func NewDigestWriter(w io.Writer) *DigestWriter {
	return &DigestWriter{
		writer: w,
		hash:   xxh3.New(),
	}
}

// Write implements io.Writer. Only bytes accepted by the underlying writer
// are hashed.
func (dw *DigestWriter) Write(p []byte) (int, error) {
	n, err := dw.writer.Write(p)
	if n > 0 {
		_, _ = dw.hash.Write(p[:n])
		dw.n += int64(n)
	}
	return n, err
}

// Count returns the number of bytes written.
func (dw *DigestWriter) Count() int64 { return dw.n }

// Sum returns the digest of everything written so far.
func (dw *DigestWriter) Sum() uint64 { return dw.hash.Sum64() }

// String returns the digest as "xxh3:" followed by 16 hex digits.
func (dw *DigestWriter) String() string {
	return fmt.Sprintf("xxh3:%016x", dw.Sum())
}

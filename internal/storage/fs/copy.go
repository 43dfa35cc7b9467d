package fs

import (
	"context"
	"errors"
	"io"
)

// BufferSize is the read size used for streaming copies and hashing (8 KiB).
const BufferSize = 8 << 10

// ErrShortSource is returned when a source ends before the requested length.
var ErrShortSource = errors.New("fs: source shorter than expected")

// CopyContext copies src into dst in BufferSize steps, checking ctx between steps.
// Read errors and write errors are returned unwrapped so callers can attribute them.
func CopyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, BufferSize)
	return copyBuffer(ctx, dst, src, buf)
}

// CopyN copies exactly n bytes, failing with ErrShortSource when src runs out early.
func CopyN(ctx context.Context, dst io.Writer, src io.Reader, n int64) (int64, error) {
	buf := make([]byte, BufferSize)
	written, err := copyBuffer(ctx, dst, io.LimitReader(src, n), buf)
	if err != nil {
		return written, err
	}
	if written < n {
		return written, ErrShortSource
	}
	return written, nil
}

func copyBuffer(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

package engine

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/kk-code-lab/kitcat/internal/storage/fs"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

// partReader streams the manifest parts back to back, strictly in manifest order.
// It holds at most one open part file.
type partReader struct {
	ctx      context.Context
	layout   fs.Layout
	manifest *manifest.Manifest
	index    int
	cur      *os.File
	curPath  string
}

func newPartReader(ctx context.Context, layout fs.Layout, man *manifest.Manifest) *partReader {
	if ctx == nil {
		ctx = context.Background()
	}
	return &partReader{
		ctx:      ctx,
		layout:   layout,
		manifest: man,
	}
}

func (r *partReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if err := r.checkContext(); err != nil {
			return 0, err
		}
		if r.cur == nil {
			if err := r.openNext(); err != nil {
				return 0, err
			}
		}
		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			if cerr := r.closeCurrent(); cerr != nil {
				return n, cerr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, fs.IOError("read", r.curPath, err)
		}
		return n, nil
	}
}

func (r *partReader) Close() error {
	return r.closeCurrent()
}

func (r *partReader) openNext() error {
	if r.index >= len(r.manifest.Parts) {
		return io.EOF
	}
	path := r.layout.PartPath(r.manifest.Parts[r.index].Name)
	f, err := os.Open(path)
	if err != nil {
		return fs.IOError("open", path, err)
	}
	r.index++
	r.cur = f
	r.curPath = path
	return nil
}

func (r *partReader) closeCurrent() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	if err != nil {
		return fs.IOError("close", r.curPath, err)
	}
	return nil
}

func (r *partReader) checkContext() error {
	return r.ctx.Err()
}

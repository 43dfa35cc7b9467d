package engine

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kk-code-lab/kitcat/internal/storage/chunk"
	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

// SplitResult describes a completed split. It does not own any files.
type SplitResult struct {
	Main      manifest.FileRef
	Parts     []chunk.Descriptor
	Algorithm digest.Algorithm
	ChunkSize int64
	CreatedAt time.Time
	Dir       string
}

// Manifest builds the manifest describing the split.
func (r *SplitResult) Manifest() *manifest.Manifest {
	return manifest.New(r.Main, r.Parts, r.Algorithm, r.ChunkSize, r.CreatedAt)
}

// NewManifest is a shorthand for res.Manifest().
func NewManifest(res *SplitResult) *manifest.Manifest {
	return res.Manifest()
}

// Split cuts sourcePath into chunkSize parts inside destDir. Every part is hashed while it
// is written and the whole-file digest is computed in the same pass.
func (e *Engine) Split(ctx context.Context, sourcePath, destDir string, chunkSize int64) (*SplitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", chunk.ErrInvalidChunkSize, chunkSize)
	}
	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fs.IOError("open", sourcePath, err)
	}
	defer func() {
		_ = src.Close()
	}()
	info, err := src.Stat()
	if err != nil {
		return nil, fs.IOError("stat", sourcePath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fs.IOError("open", sourcePath, ErrNotRegularFile)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fs.IOError("mkdir", destDir, err)
	}
	return e.splitFrom(ctx, src, sourcePath, info.Size(), destDir, chunkSize)
}

// splitFrom splits the size bytes that src is expected to yield. Fewer or more
// bytes than size is reported as ErrSourceChanged.
func (e *Engine) splitFrom(ctx context.Context, src io.Reader, sourcePath string, size int64, destDir string, chunkSize int64) (*SplitResult, error) {
	start := e.clock.Now()
	name := filepath.Base(sourcePath)
	spans, err := chunk.Plan(name, size, chunkSize)
	if err != nil {
		return nil, err
	}
	mainHash, err := digest.New(e.alg)
	if err != nil {
		return nil, err
	}
	layout := fs.NewLayout(destDir)
	reader := io.TeeReader(src, mainHash)

	parts := make([]chunk.Descriptor, 0, len(spans))
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := e.writePart(ctx, layout.PartPath(span.Name), reader, span)
		if err != nil {
			return nil, err
		}
		e.log.Debugw("part written", "part", desc.Name, "size", desc.Size, "digest", desc.Digest.Short())
		parts = append(parts, desc)
	}

	var probe [1]byte
	if n, err := src.Read(probe[:]); n > 0 {
		return nil, fs.IOError("read", sourcePath, fmt.Errorf("%w: grew past %d bytes", ErrSourceChanged, size))
	} else if err != nil && !errors.Is(err, io.EOF) {
		return nil, fs.IOError("read", sourcePath, err)
	}

	res := &SplitResult{
		Main: manifest.FileRef{
			Name:   name,
			Digest: digest.FromHash(mainHash),
			Size:   size,
		},
		Parts:     parts,
		Algorithm: e.alg,
		ChunkSize: chunkSize,
		CreatedAt: e.clock.Now().UTC(),
		Dir:       destDir,
	}
	e.log.Infow("split",
		"file", name,
		"size", size,
		"parts", len(parts),
		"chunk_size", chunkSize,
		"algorithm", e.alg,
		"elapsed_ms", e.since(start),
	)
	return res, nil
}

// writePart copies exactly span.Len bytes from src into path, via a .partial file that is
// renamed into place only once the part is complete and synced.
func (e *Engine) writePart(ctx context.Context, path string, src io.Reader, span chunk.Span) (chunk.Descriptor, error) {
	h, err := digest.New(e.alg)
	if err != nil {
		return chunk.Descriptor{}, err
	}
	tmp := fs.PartialPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return chunk.Descriptor{}, fs.IOError("create", tmp, err)
	}
	if err := copyPart(ctx, f, h, src, span.Len); err != nil {
		_ = f.Close()
		if ctx.Err() != nil {
			return chunk.Descriptor{}, err
		}
		if errors.Is(err, fs.ErrShortSource) {
			err = fmt.Errorf("%w: %w", ErrSourceChanged, err)
		}
		return chunk.Descriptor{}, fs.IOError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return chunk.Descriptor{}, fs.IOError("sync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return chunk.Descriptor{}, fs.IOError("close", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return chunk.Descriptor{}, fs.IOError("rename", path, err)
	}
	return chunk.Descriptor{
		Index:  span.Index,
		Label:  span.Label,
		Name:   span.Name,
		Size:   span.Len,
		Digest: digest.FromHash(h),
	}, nil
}

func copyPart(ctx context.Context, f *os.File, h hash.Hash, src io.Reader, n int64) error {
	_, err := fs.CopyN(ctx, io.MultiWriter(f, h), src, n)
	return err
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

// MergeResult describes a successful merge.
type MergeResult struct {
	Path   string     `json:"path"`
	Size   int64      `json:"size"`
	Digest digest.Sum `json:"digest"`
	Parts  int        `json:"parts"`
}

// Merge reassembles the manifest's main file from the parts in dir and writes it to output.
// Data goes to output.partial first and is renamed onto output only after the digest of the
// written file matches the manifest. Part files are never modified.
func (e *Engine) Merge(ctx context.Context, m *manifest.Manifest, dir, output string) (*MergeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m == nil {
		return nil, errors.New("engine: nil manifest")
	}
	start := e.clock.Now()
	layout := fs.NewLayout(dir)
	if err := checkOutput(layout, m, output); err != nil {
		return nil, err
	}

	report, err := e.Verify(ctx, m, dir)
	if err != nil {
		return nil, err
	}
	if !report.Reconstructable {
		return nil, &IncompleteError{Parts: report.Failed()}
	}

	alg := m.Algorithm
	if alg == "" {
		alg = digest.Default
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fs.IOError("mkdir", filepath.Dir(output), err)
	}
	tmp := fs.PartialPath(output)
	written, err := e.writeMerged(ctx, layout, m, tmp)
	if err != nil {
		return nil, err
	}

	sum, err := digest.File(ctx, tmp, alg)
	if err != nil {
		return nil, err
	}
	if !sum.Equal(m.MainFile.Digest) {
		e.log.Warnw("merge digest mismatch", "file", m.MainFile.Name, "partial", tmp, "want", m.MainFile.Digest.Short(), "got", sum.Short())
		return nil, &CorruptionError{Path: tmp, Want: m.MainFile.Digest, Got: sum}
	}
	if err := os.Rename(tmp, output); err != nil {
		return nil, fs.IOError("rename", output, err)
	}
	e.log.Infow("merge",
		"file", m.MainFile.Name,
		"output", output,
		"size", written,
		"parts", len(m.Parts),
		"elapsed_ms", e.since(start),
	)
	return &MergeResult{
		Path:   output,
		Size:   written,
		Digest: sum,
		Parts:  len(m.Parts),
	}, nil
}

func (e *Engine) writeMerged(ctx context.Context, layout fs.Layout, m *manifest.Manifest, tmp string) (int64, error) {
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fs.IOError("create", tmp, err)
	}
	src := newPartReader(ctx, layout, m)
	defer func() {
		_ = src.Close()
	}()
	written, err := fs.CopyContext(ctx, f, src)
	if err != nil {
		_ = f.Close()
		if ctx.Err() != nil || errors.Is(err, fs.ErrIOFailure) {
			return written, err
		}
		return written, fs.IOError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return written, fs.IOError("sync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return written, fs.IOError("close", tmp, err)
	}
	return written, nil
}

func checkOutput(layout fs.Layout, m *manifest.Manifest, output string) error {
	if output == "" {
		return fmt.Errorf("%w: empty output path", ErrOutputConflict)
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return fs.IOError("abs", output, err)
	}
	for _, part := range m.Parts {
		p, err := filepath.Abs(layout.PartPath(part.Name))
		if err != nil {
			return fs.IOError("abs", part.Name, err)
		}
		if p == out || fs.PartialPath(out) == p {
			return fmt.Errorf("%w: %s", ErrOutputConflict, output)
		}
	}
	return nil
}

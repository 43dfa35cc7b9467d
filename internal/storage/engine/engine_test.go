package engine

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kk-code-lab/kitcat/internal/clock"
	"github.com/kk-code-lab/kitcat/internal/storage/chunk"
	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

func newTestEngine(t *testing.T, alg digest.Algorithm) *Engine {
	t.Helper()
	e, err := New(Options{
		Algorithm: alg,
		Clock:     clock.NewManual(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return e
}

func writeSource(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func randomBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func splitFixture(t *testing.T, e *Engine, data []byte, chunkSize int64) (*SplitResult, *manifest.Manifest, string) {
	t.Helper()
	srcDir := t.TempDir()
	outDir := t.TempDir()
	src := writeSource(t, srcDir, "data.bin", data)
	res, err := e.Split(context.Background(), src, outDir, chunkSize)
	require.NoError(t, err)
	return res, res.Manifest(), outDir
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New(Options{Algorithm: "md5"})
	require.ErrorIs(t, err, digest.ErrUnknownAlgorithm)

	e, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, digest.Default, e.Algorithm())
}

func TestSplit250BytesIntoHundreds(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	data := randomBytes(1, 250)

	res, man, dir := splitFixture(t, e, data, 100)

	require.Len(t, res.Parts, 3)
	var labels []string
	var sizes []int64
	for i, p := range res.Parts {
		labels = append(labels, p.Label)
		sizes = append(sizes, p.Size)
		assert.Equal(t, i, p.Index)
		assert.Equal(t, "data.bin_kit-cat-part"+p.Label, p.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, labels)
	assert.Equal(t, []int64{100, 100, 50}, sizes)

	wantMain, err := digest.Bytes(digest.SHA256, data)
	require.NoError(t, err)
	assert.Equal(t, wantMain, res.Main.Digest)
	assert.Equal(t, "data.bin", res.Main.Name)
	assert.Equal(t, int64(250), res.Main.Size)

	for i, p := range res.Parts {
		got, err := os.ReadFile(filepath.Join(dir, p.Name))
		require.NoError(t, err)
		assert.Equal(t, data[i*100:i*100+int(p.Size)], got)
		want, err := digest.Bytes(digest.SHA256, got)
		require.NoError(t, err)
		assert.Equal(t, want, p.Digest)
	}

	report, err := e.Verify(context.Background(), man, dir)
	require.NoError(t, err)
	assert.True(t, report.Reconstructable)
	assert.Equal(t, 3, report.Count(StatusValid))

	out := filepath.Join(t.TempDir(), "restored.bin")
	merged, err := e.Merge(context.Background(), man, dir, out)
	require.NoError(t, err)
	assert.Equal(t, int64(250), merged.Size)
	assert.Equal(t, wantMain, merged.Digest)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoFileExists(t, fs.PartialPath(out))
}

func TestSplitPartSizes(t *testing.T) {
	cases := []struct {
		size      int
		chunkSize int64
	}{
		{size: 1, chunkSize: 1},
		{size: 99, chunkSize: 100},
		{size: 100, chunkSize: 100},
		{size: 101, chunkSize: 100},
		{size: 3 * fs.BufferSize, chunkSize: fs.BufferSize + 1},
		{size: 700, chunkSize: 1},
	}
	for _, alg := range digest.Algorithms() {
		e := newTestEngine(t, alg)
		for _, tc := range cases {
			data := randomBytes(int64(tc.size), tc.size)
			res, _, dir := splitFixture(t, e, data, tc.chunkSize)

			count, err := chunk.Count(int64(tc.size), tc.chunkSize)
			require.NoError(t, err)
			require.Len(t, res.Parts, count)

			var joined []byte
			var total int64
			width := len(res.Parts[0].Label)
			for i, p := range res.Parts {
				assert.Len(t, p.Label, width)
				if i < len(res.Parts)-1 {
					assert.Equal(t, tc.chunkSize, p.Size)
					assert.Less(t, p.Label, res.Parts[i+1].Label)
				}
				part, err := os.ReadFile(filepath.Join(dir, p.Name))
				require.NoError(t, err)
				joined = append(joined, part...)
				total += p.Size
			}
			last := int64(tc.size) % tc.chunkSize
			if last == 0 {
				last = tc.chunkSize
			}
			assert.Equal(t, last, res.Parts[len(res.Parts)-1].Size)
			assert.Equal(t, int64(tc.size), total)
			assert.True(t, bytes.Equal(data, joined), "alg=%s size=%d", alg, tc.size)
		}
	}
}

func TestSplitEmptyFile(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	res, man, dir := splitFixture(t, e, nil, 100)

	assert.Empty(t, res.Parts)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	report, err := e.Verify(context.Background(), man, dir)
	require.NoError(t, err)
	assert.True(t, report.Reconstructable)

	out := filepath.Join(dir, "restored")
	_, err = e.Merge(context.Background(), man, dir, out)
	require.NoError(t, err)
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSplitInvalidChunkSize(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	src := writeSource(t, t.TempDir(), "x", []byte("x"))
	for _, size := range []int64{0, -1} {
		_, err := e.Split(context.Background(), src, t.TempDir(), size)
		require.ErrorIs(t, err, chunk.ErrInvalidChunkSize)
	}
}

func TestSplitMissingSourceIsIOError(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, err := e.Split(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), 10)
	require.ErrorIs(t, err, fs.ErrIOFailure)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitRejectsDirectory(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, err := e.Split(context.Background(), t.TempDir(), t.TempDir(), 10)
	require.ErrorIs(t, err, ErrNotRegularFile)
	require.ErrorIs(t, err, fs.ErrIOFailure)
}

func TestSplitCancelled(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	src := writeSource(t, t.TempDir(), "data.bin", randomBytes(2, 1000))
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Split(ctx, src, dir, 100)
	require.ErrorIs(t, err, context.Canceled)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSplitCreatesDestination(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	src := writeSource(t, t.TempDir(), "data.bin", []byte("hello"))
	dir := filepath.Join(t.TempDir(), "nested", "out")

	res, err := e.Split(context.Background(), src, dir, 2)
	require.NoError(t, err)
	assert.Equal(t, dir, res.Dir)
	assert.FileExists(t, filepath.Join(dir, "data.bin_kit-cat-parta"))
}

func TestVerifyDetectsMissingAndAltered(t *testing.T) {
	e := newTestEngine(t, digest.BLAKE3)
	_, man, dir := splitFixture(t, e, randomBytes(3, 250), 100)

	require.NoError(t, os.Remove(filepath.Join(dir, man.Parts[0].Name)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, man.Parts[2].Name), []byte("tampered"), 0o644))

	report, err := e.Verify(context.Background(), man, dir)
	require.NoError(t, err)
	assert.False(t, report.Reconstructable)

	st, ok := report.Status(man.Parts[0].Name)
	require.True(t, ok)
	assert.Equal(t, StatusMissing, st)
	st, ok = report.Status(man.Parts[1].Name)
	require.True(t, ok)
	assert.Equal(t, StatusValid, st)
	st, ok = report.Status(man.Parts[2].Name)
	require.True(t, ok)
	assert.Equal(t, StatusHashMismatch, st)
	assert.Len(t, report.Failed(), 2)

	again, err := e.Verify(context.Background(), man, dir)
	require.NoError(t, err)
	assert.Equal(t, report, again)
}

func TestVerifyTreatsDirectoryAsMissing(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, []byte("hello"), 10)
	path := filepath.Join(dir, man.Parts[0].Name)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	report, err := e.Verify(context.Background(), man, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, report.Parts[0].Status)
}

func TestMergeIncomplete(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, randomBytes(4, 250), 100)
	require.NoError(t, os.Remove(filepath.Join(dir, man.Parts[1].Name)))

	out := filepath.Join(t.TempDir(), "out.bin")
	_, err := e.Merge(context.Background(), man, dir, out)
	require.ErrorIs(t, err, ErrIncomplete)

	var inc *IncompleteError
	require.True(t, errors.As(err, &inc))
	require.Len(t, inc.Parts, 1)
	assert.Equal(t, man.Parts[1].Name, inc.Parts[0].Name)
	assert.Contains(t, err.Error(), man.Parts[1].Name)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, fs.PartialPath(out))
}

func TestMergeRejectsAlteredPart(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, randomBytes(8, 250), 100)
	altered := randomBytes(9, 100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, man.Parts[1].Name), altered, 0o644))

	out := filepath.Join(t.TempDir(), "out.bin")
	_, err := e.Merge(context.Background(), man, dir, out)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.NotErrorIs(t, err, ErrCorrupt)

	var inc *IncompleteError
	require.True(t, errors.As(err, &inc))
	require.Len(t, inc.Parts, 1)
	assert.Equal(t, man.Parts[1].Name, inc.Parts[0].Name)
	assert.Equal(t, StatusHashMismatch, inc.Parts[0].Status)
	assert.Contains(t, err.Error(), "hash mismatch")
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, fs.PartialPath(out))
}

func TestMergeCorruption(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, randomBytes(5, 250), 100)
	want, err := digest.Bytes(digest.SHA256, []byte("something else"))
	require.NoError(t, err)
	man.MainFile.Digest = want

	out := filepath.Join(t.TempDir(), "out.bin")
	_, err = e.Merge(context.Background(), man, dir, out)
	require.ErrorIs(t, err, ErrCorrupt)

	var cerr *CorruptionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, fs.PartialPath(out), cerr.Path)
	assert.Equal(t, want, cerr.Want)
	assert.NoFileExists(t, out)
	assert.FileExists(t, fs.PartialPath(out))
}

func TestMergeOverwritesOutput(t *testing.T) {
	e := newTestEngine(t, digest.BLAKE2b)
	data := randomBytes(6, 5000)
	_, man, dir := splitFixture(t, e, data, 1024)
	out := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	_, err := e.Merge(context.Background(), man, dir, out)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMergeRejectsOutputOverPart(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, []byte("hello world"), 4)

	_, err := e.Merge(context.Background(), man, dir, filepath.Join(dir, man.Parts[1].Name))
	require.ErrorIs(t, err, ErrOutputConflict)
}

func TestMergeFollowsManifestOrder(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	data := []byte("0123456789")
	_, man, dir := splitFixture(t, e, data, 5)
	man.Parts[0], man.Parts[1] = man.Parts[1], man.Parts[0]

	out := filepath.Join(t.TempDir(), "out")
	_, err := e.Merge(context.Background(), man, dir, out)
	require.ErrorIs(t, err, ErrCorrupt)
	got, err := os.ReadFile(fs.PartialPath(out))
	require.NoError(t, err)
	assert.Equal(t, []byte("5678901234"), got)
}

// countdownContext reports cancellation after a fixed number of Err calls.
type countdownContext struct {
	context.Context
	mu   sync.Mutex
	left int
}

func (c *countdownContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left--
	if c.left < 0 {
		return context.Canceled
	}
	return nil
}

func TestCancelledMergeLeavesPartial(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, randomBytes(7, 4*fs.BufferSize), 2*fs.BufferSize)
	out := filepath.Join(t.TempDir(), "out.bin")
	tmp := fs.PartialPath(out)

	ctx := &countdownContext{Context: context.Background(), left: 2}
	_, err := e.writeMerged(ctx, fs.NewLayout(dir), man, tmp)
	require.ErrorIs(t, err, context.Canceled)

	info, err := os.Stat(tmp)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(4*fs.BufferSize))
	assert.NoFileExists(t, out)
}

func TestCancelledSplitLeavesCompletePartsAndOnePartial(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	chunkSize := int64(2 * fs.BufferSize)
	src := writeSource(t, t.TempDir(), "data.bin", randomBytes(10, 6*fs.BufferSize))
	dir := t.TempDir()

	// Enough checks to finish the first part and start the second.
	ctx := &countdownContext{Context: context.Background(), left: 5}
	_, err := e.Split(ctx, src, dir, chunkSize)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var complete, partial int
	for _, entry := range entries {
		info, err := entry.Info()
		require.NoError(t, err)
		if strings.HasSuffix(entry.Name(), fs.PartialSuffix) {
			partial++
			continue
		}
		complete++
		assert.Equal(t, chunkSize, info.Size(), entry.Name())
	}
	assert.GreaterOrEqual(t, complete, 1)
	assert.LessOrEqual(t, partial, 1)
	assert.Less(t, complete, 3)
	assert.NoFileExists(t, filepath.Join(dir, manifest.FileName("data.bin")))
}

func TestSplitDetectsShrunkSource(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	dir := t.TempDir()
	data := randomBytes(11, 250)

	_, err := e.splitFrom(context.Background(), bytes.NewReader(data), "/src/data.bin", 300, dir, 100)
	require.ErrorIs(t, err, ErrSourceChanged)
	require.ErrorIs(t, err, fs.ErrIOFailure)
	require.ErrorIs(t, err, fs.ErrShortSource)

	assert.FileExists(t, filepath.Join(dir, "data.bin_kit-cat-parta"))
	assert.FileExists(t, filepath.Join(dir, "data.bin_kit-cat-partb"))
	assert.NoFileExists(t, filepath.Join(dir, "data.bin_kit-cat-partc"))
}

func TestSplitDetectsGrownSource(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	dir := t.TempDir()
	data := randomBytes(12, 300)

	_, err := e.splitFrom(context.Background(), bytes.NewReader(data), "/src/data.bin", 250, dir, 100)
	require.ErrorIs(t, err, ErrSourceChanged)
	require.ErrorIs(t, err, fs.ErrIOFailure)
	assert.Contains(t, err.Error(), "grew past 250 bytes")
}

func TestMergeCancelledBeforeStart(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	_, man, dir := splitFixture(t, e, []byte("hello"), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "out")
	_, err := e.Merge(ctx, man, dir, out)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestWriteAndReadManifest(t *testing.T) {
	e := newTestEngine(t, digest.SHA256)
	res, _, dir := splitFixture(t, e, randomBytes(8, 250), 100)
	path := filepath.Join(dir, manifest.FileName(res.Main.Name))

	written, err := e.WriteManifest(context.Background(), path, res)
	require.NoError(t, err)
	assert.Equal(t, "data.kit-cat-config", filepath.Base(path))

	read, err := e.ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, written, read)
	assert.Equal(t, time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC), read.CreatedAt)

	report, err := e.Verify(context.Background(), read, dir)
	require.NoError(t, err)
	assert.True(t, report.Reconstructable)
}

func TestStatusText(t *testing.T) {
	var bad Status
	require.Error(t, bad.UnmarshalText([]byte("fine")))

	for s, want := range map[Status]string{
		StatusMissing:      "missing",
		StatusHashMismatch: "hash_mismatch",
		StatusValid:        "valid",
	} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(text))
		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
}

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func TestDiscoverOrdersByLabel(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"movie.mkv_kit-cat-partc",
		"movie.mkv_kit-cat-parta",
		"movie.mkv_kit-cat-partb",
		"other.mkv_kit-cat-parta",
		"movie.kit-cat-config",
	)

	d, err := Discover(dir, "movie.mkv")
	require.NoError(t, err)
	require.Len(t, d.Parts, 3)
	for i, p := range d.Parts {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, int64(len(p.Name)), p.Size)
	}
	assert.Empty(t, d.Gaps)
	assert.True(t, d.Complete())
}

func TestDiscoverReportsGapsAndStrays(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"f_kit-cat-partaa",
		"f_kit-cat-partab",
		"f_kit-cat-partae",
		"f_kit-cat-partb",
		"f_kit-cat-partA1",
		"f_kit-cat-partac.partial",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "f_kit-cat-partad"), 0o755))

	d, err := Discover(dir, "f")
	require.NoError(t, err)
	require.Len(t, d.Parts, 3)
	assert.Equal(t, []string{"ac", "ad"}, d.Gaps)
	assert.Equal(t, []string{"f_kit-cat-partA1", "f_kit-cat-partb"}, d.Unrecognized)
	assert.Equal(t, []string{"f_kit-cat-partac.partial"}, d.Partial)
	assert.False(t, d.Complete())
}

func TestDiscoverMissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), "f")
	require.Error(t, err)
}

func TestDiscoverNothingFound(t *testing.T) {
	d, err := Discover(t.TempDir(), "f")
	require.NoError(t, err)
	assert.Empty(t, d.Parts)
	assert.False(t, d.Complete())
}

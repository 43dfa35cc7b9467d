package meta

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kk-code-lab/kitcat/internal/clock"
)

func openTestStore(t *testing.T, c clock.Clock) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path, WithClock(c))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func sampleSplit(name string) Split {
	return Split{
		MainName:     name,
		MainDigest:   strings.Repeat("ab", 32),
		Algorithm:    "sha256",
		Size:         250,
		ChunkSize:    100,
		Dir:          "/tmp/out",
		ManifestPath: "/tmp/out/movie.kit-cat-config",
		Parts: []SplitPart{
			{Index: 0, Name: name + "_kit-cat-parta", Digest: strings.Repeat("01", 32), Size: 100},
			{Index: 1, Name: name + "_kit-cat-partb", Digest: strings.Repeat("02", 32), Size: 100},
			{Index: 2, Name: name + "_kit-cat-partc", Digest: strings.Repeat("03", 32), Size: 50},
		},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func schemaVersion(t *testing.T, s *Store) int {
	t.Helper()
	var version int
	require.NoError(t, s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	return version
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store, path := openTestStore(t, clock.RealClock{})
	assert.Equal(t, 2, schemaVersion(t, store))
	require.NoError(t, store.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = again.Close() }()
	assert.Equal(t, 2, schemaVersion(t, again))
}

func TestCheckpointTruncatesWAL(t *testing.T) {
	store, path := openTestStore(t, clock.RealClock{})
	ctx := context.Background()
	_, err := store.RecordSplit(ctx, sampleSplit("movie.mkv"))
	require.NoError(t, err)

	require.NoError(t, store.Checkpoint(ctx))
	if info, err := os.Stat(path + "-wal"); err == nil {
		assert.Zero(t, info.Size())
	}

	var nilStore *Store
	require.NoError(t, nilStore.Checkpoint(ctx))
}

func TestRecordSplitRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store, _ := openTestStore(t, clock.NewManual(now))
	ctx := context.Background()

	rec, err := store.RecordSplit(ctx, sampleSplit("movie.mkv"))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, 3, rec.PartCount)
	assert.Equal(t, now.Format(time.RFC3339Nano), rec.CreatedAt)

	got, err := store.GetSplit(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", got.MainName)
	assert.Equal(t, "/tmp/out/movie.kit-cat-config", got.ManifestPath)
	require.Len(t, got.Parts, 3)
	assert.Equal(t, "movie.mkv_kit-cat-partc", got.Parts[2].Name)
	assert.Equal(t, int64(50), got.Parts[2].Size)

	byDigest, err := store.FindSplitsByDigest(ctx, strings.ToUpper(rec.MainDigest))
	require.NoError(t, err)
	require.Len(t, byDigest, 1)
	assert.Equal(t, rec.ID, byDigest[0].ID)
}

func TestGetSplitNotFound(t *testing.T) {
	store, _ := openTestStore(t, clock.RealClock{})
	_, err := store.GetSplit(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListSplitsPrefixAndOrder(t *testing.T) {
	store, _ := openTestStore(t, clock.NewManual(time.Unix(100, 0)))
	ctx := context.Background()
	for _, name := range []string{"a_1.bin", "ab.bin", "b.bin"} {
		_, err := store.RecordSplit(ctx, sampleSplit(name))
		require.NoError(t, err)
	}

	all, err := store.ListSplits(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b.bin", all[0].MainName)
	assert.Equal(t, "a_1.bin", all[2].MainName)

	// "_" must match literally.
	got, err := store.ListSplits(ctx, "a_", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a_1.bin", got[0].MainName)
}

func TestRecordMergeValidatesState(t *testing.T) {
	store, _ := openTestStore(t, clock.RealClock{})
	_, err := store.RecordMerge(context.Background(), Merge{MainName: "x", OutputPath: "/tmp/x", State: "weird"})
	require.Error(t, err)
	_, err = store.RecordMerge(context.Background(), Merge{MainName: "x", State: MergeOK})
	require.Error(t, err)
}

func TestHistoryInterleavesNewestFirst(t *testing.T) {
	store, _ := openTestStore(t, clock.NewManual(time.Unix(100, 0)))
	ctx := context.Background()

	split, err := store.RecordSplit(ctx, sampleSplit("movie.mkv"))
	require.NoError(t, err)
	_, err = store.RecordVerification(ctx, Verification{MainName: "movie.mkv", Dir: "/tmp/out", Valid: 2, Missing: 1})
	require.NoError(t, err)
	merge, err := store.RecordMerge(ctx, Merge{
		MainName:   "movie.mkv",
		MainDigest: split.MainDigest,
		OutputPath: "/tmp/movie.mkv",
		State:      MergeIncomplete,
		Detail:     "1 missing",
	})
	require.NoError(t, err)

	events, err := store.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "merge", events[0].Kind)
	assert.Equal(t, merge.ID, events[0].ID)
	assert.Equal(t, "INCOMPLETE: 1 missing", events[0].Detail)
	assert.Equal(t, "verify", events[1].Kind)
	assert.Equal(t, "2 valid, 1 missing, 0 mismatched", events[1].Detail)
	assert.Equal(t, "split", events[2].Kind)
	assert.Equal(t, "3 parts", events[2].Detail)

	limited, err := store.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistoryOrderSurvivesReopenWithClockSkew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	first, err := Open(path, WithClock(clock.NewManual(time.Unix(1000, 0))))
	require.NoError(t, err)
	_, err = first.RecordSplit(ctx, sampleSplit("old.bin"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path, WithClock(clock.NewManual(time.Unix(10, 0))))
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	_, err = second.RecordSplit(ctx, sampleSplit("new.bin"))
	require.NoError(t, err)

	events, err := second.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "new.bin", events[0].MainName)
}

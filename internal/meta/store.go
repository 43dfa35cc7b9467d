package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kk-code-lab/kitcat/internal/clock"
)

// ErrNotFound is returned when a catalog record does not exist.
var ErrNotFound = errors.New("meta: record not found")

// Store wraps the SQLite catalog database.
type Store struct {
	db    *sql.DB
	clock clock.Clock
	hlc   *clock.HLC
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for timestamps and history ordering.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// Open opens or creates the catalog database at the given path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("meta: db path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(store)
	}
	store.hlc = clock.NewHLC(store.clock)
	if err := store.applyPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.primeHLC(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Checkpoint folds the WAL back into the main database file so a finished
// command leaves a single self-contained catalog behind.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("meta: checkpoint: %w", err)
	}
	return nil
}

func (s *Store) now() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) applyPragmas(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("meta: %s: %w", pragma, err)
		}
	}
	return nil
}

// primeHLC moves the HLC past the newest stamp on disk so history stays ordered
// across process restarts even if the wall clock went backwards.
func (s *Store) primeHLC(ctx context.Context) error {
	var latest string
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(hlc_ts), '') FROM (
	SELECT hlc_ts FROM splits
	UNION ALL SELECT hlc_ts FROM merges
	UNION ALL SELECT hlc_ts FROM verifications
)`).Scan(&latest)
	if err != nil {
		return err
	}
	if latest != "" {
		s.hlc.Observe(latest)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`); err != nil {
		return err
	}

	var version int
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return err
	}
	migrations := []func(context.Context, *sql.Tx) error{applyV1, applyV2}
	for i, apply := range migrations {
		target := i + 1
		if version >= target {
			continue
		}
		if err = apply(ctx, tx); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)", target, s.now()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyV1(ctx context.Context, tx *sql.Tx) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS splits (
			split_id TEXT PRIMARY KEY,
			main_name TEXT NOT NULL,
			main_digest TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			size INTEGER NOT NULL,
			chunk_size INTEGER NOT NULL,
			part_count INTEGER NOT NULL,
			dir TEXT NOT NULL,
			manifest_path TEXT,
			created_at TEXT NOT NULL,
			hlc_ts TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS splits_main_name_idx ON splits(main_name)`,
		`CREATE INDEX IF NOT EXISTS splits_main_digest_idx ON splits(main_digest)`,
		`CREATE TABLE IF NOT EXISTS split_parts (
			split_id TEXT NOT NULL REFERENCES splits(split_id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			name TEXT NOT NULL,
			digest TEXT NOT NULL,
			size INTEGER NOT NULL,
			PRIMARY KEY(split_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS merges (
			merge_id TEXT PRIMARY KEY,
			main_name TEXT NOT NULL,
			main_digest TEXT NOT NULL,
			output_path TEXT NOT NULL,
			size INTEGER NOT NULL,
			state TEXT NOT NULL,
			detail TEXT,
			created_at TEXT NOT NULL,
			hlc_ts TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func applyV2(ctx context.Context, tx *sql.Tx) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS verifications (
			verify_id TEXT PRIMARY KEY,
			main_name TEXT NOT NULL,
			dir TEXT NOT NULL,
			valid INTEGER NOT NULL,
			missing INTEGER NOT NULL,
			mismatched INTEGER NOT NULL,
			reconstructable INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			hlc_ts TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS verifications_main_name_idx ON verifications(main_name)`,
	}
	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

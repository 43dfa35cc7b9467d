package meta

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Merge states recorded in the catalog.
const (
	MergeOK         = "OK"
	MergeIncomplete = "INCOMPLETE"
	MergeCorrupt    = "CORRUPT"
	MergeFailed     = "FAILED"
)

// SplitPart is one part of a recorded split.
type SplitPart struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// Split is a catalog record of a completed split.
type Split struct {
	ID           string      `json:"id"`
	MainName     string      `json:"main_name"`
	MainDigest   string      `json:"main_digest"`
	Algorithm    string      `json:"algorithm"`
	Size         int64       `json:"size"`
	ChunkSize    int64       `json:"chunk_size"`
	PartCount    int         `json:"part_count"`
	Dir          string      `json:"dir"`
	ManifestPath string      `json:"manifest_path"`
	CreatedAt    string      `json:"created_at"`
	HLC          string      `json:"hlc"`
	Parts        []SplitPart `json:"parts,omitempty"`
}

// Merge is a catalog record of a merge attempt.
type Merge struct {
	ID         string
	MainName   string
	MainDigest string
	OutputPath string
	Size       int64
	State      string
	Detail     string
	CreatedAt  string
	HLC        string
}

// Verification is a catalog record of a verify run.
type Verification struct {
	ID              string
	MainName        string
	Dir             string
	Valid           int
	Missing         int
	Mismatched      int
	Reconstructable bool
	CreatedAt       string
	HLC             string
}

// Event is one line of catalog history.
type Event struct {
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	MainName  string `json:"main_name"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
	HLC       string `json:"hlc"`
}

// RecordSplit stores a split and its parts. ID, CreatedAt and HLC are assigned
// when empty; the stored record is returned.
func (s *Store) RecordSplit(ctx context.Context, rec Split) (*Split, error) {
	if rec.MainName == "" || rec.MainDigest == "" {
		return nil, errors.New("meta: split main name and digest required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.now()
	}
	rec.HLC = s.hlc.Next()
	rec.PartCount = len(rec.Parts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `
INSERT INTO splits(split_id, main_name, main_digest, algorithm, size, chunk_size, part_count, dir, manifest_path, created_at, hlc_ts)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MainName, rec.MainDigest, rec.Algorithm, rec.Size, rec.ChunkSize, rec.PartCount,
		rec.Dir, rec.ManifestPath, rec.CreatedAt, rec.HLC); err != nil {
		return nil, err
	}
	for _, p := range rec.Parts {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO split_parts(split_id, idx, name, digest, size) VALUES(?, ?, ?, ?, ?)`,
			rec.ID, p.Index, p.Name, p.Digest, p.Size); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSplit returns a split with its parts in split order.
func (s *Store) GetSplit(ctx context.Context, splitID string) (*Split, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT split_id, main_name, main_digest, algorithm, size, chunk_size, part_count, dir, COALESCE(manifest_path, ''), created_at, hlc_ts
FROM splits
WHERE split_id=?`, splitID)
	rec, err := scanSplit(row)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT idx, name, digest, size FROM split_parts WHERE split_id=? ORDER BY idx`, splitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p SplitPart
		if err := rows.Scan(&p.Index, &p.Name, &p.Digest, &p.Size); err != nil {
			return nil, err
		}
		rec.Parts = append(rec.Parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSplits returns splits whose main name starts with prefix, newest first.
func (s *Store) ListSplits(ctx context.Context, prefix string, limit int) ([]Split, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT split_id, main_name, main_digest, algorithm, size, chunk_size, part_count, dir, COALESCE(manifest_path, ''), created_at, hlc_ts
FROM splits
WHERE main_name LIKE ? ESCAPE '\'
ORDER BY hlc_ts DESC
LIMIT ?`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Split
	for rows.Next() {
		rec, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindSplitsByDigest returns splits of files with the given digest, newest first.
func (s *Store) FindSplitsByDigest(ctx context.Context, digest string) ([]Split, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT split_id, main_name, main_digest, algorithm, size, chunk_size, part_count, dir, COALESCE(manifest_path, ''), created_at, hlc_ts
FROM splits
WHERE main_digest=?
ORDER BY hlc_ts DESC`, strings.ToLower(digest))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Split
	for rows.Next() {
		rec, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// RecordMerge stores a merge attempt.
func (s *Store) RecordMerge(ctx context.Context, rec Merge) (*Merge, error) {
	if rec.MainName == "" || rec.OutputPath == "" {
		return nil, errors.New("meta: merge main name and output path required")
	}
	switch rec.State {
	case MergeOK, MergeIncomplete, MergeCorrupt, MergeFailed:
	default:
		return nil, errors.New("meta: invalid merge state")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.now()
	}
	rec.HLC = s.hlc.Next()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO merges(merge_id, main_name, main_digest, output_path, size, state, detail, created_at, hlc_ts)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MainName, rec.MainDigest, rec.OutputPath, rec.Size, rec.State, rec.Detail, rec.CreatedAt, rec.HLC)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordVerification stores the outcome of a verify run.
func (s *Store) RecordVerification(ctx context.Context, rec Verification) (*Verification, error) {
	if rec.MainName == "" {
		return nil, errors.New("meta: verification main name required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.now()
	}
	rec.HLC = s.hlc.Next()
	reconstructable := 0
	if rec.Reconstructable {
		reconstructable = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO verifications(verify_id, main_name, dir, valid, missing, mismatched, reconstructable, created_at, hlc_ts)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MainName, rec.Dir, rec.Valid, rec.Missing, rec.Mismatched, reconstructable, rec.CreatedAt, rec.HLC)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns splits, merges and verifications interleaved, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT kind, id, main_name, detail, created_at, hlc_ts FROM (
	SELECT 'split' AS kind, split_id AS id, main_name, printf('%d parts', part_count) AS detail, created_at, hlc_ts FROM splits
	UNION ALL
	SELECT 'merge', merge_id, main_name, state || CASE WHEN COALESCE(detail, '') = '' THEN '' ELSE ': ' || detail END, created_at, hlc_ts FROM merges
	UNION ALL
	SELECT 'verify', verify_id, main_name, printf('%d valid, %d missing, %d mismatched', valid, missing, mismatched), created_at, hlc_ts FROM verifications
)
ORDER BY hlc_ts DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Kind, &ev.ID, &ev.MainName, &ev.Detail, &ev.CreatedAt, &ev.HLC); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSplit(row scanner) (*Split, error) {
	var rec Split
	err := row.Scan(&rec.ID, &rec.MainName, &rec.MainDigest, &rec.Algorithm, &rec.Size, &rec.ChunkSize,
		&rec.PartCount, &rec.Dir, &rec.ManifestPath, &rec.CreatedAt, &rec.HLC)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func escapeLike(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

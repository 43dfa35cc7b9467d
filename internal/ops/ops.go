package ops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kk-code-lab/kitcat/internal/meta"
	"github.com/kk-code-lab/kitcat/internal/storage/chunk"
	"github.com/kk-code-lab/kitcat/internal/storage/engine"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

const maxErrorSample = 5

// Report summarizes a directory-level run.
type Report struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Mode             string    `json:"mode"`
	Dir              string    `json:"dir"`
	Manifests        int       `json:"manifests"`
	Parts            int       `json:"parts"`
	PartBytes        int64     `json:"part_bytes"`
	PartialFiles     []string  `json:"partial_files,omitempty"`
	OrphanParts      []string  `json:"orphan_parts,omitempty"`
	InvalidManifests int       `json:"invalid_manifests,omitempty"`
	Reconstructable  int       `json:"reconstructable,omitempty"`
	Incomplete       []string  `json:"incomplete,omitempty"`
	MissingParts     int       `json:"missing_parts,omitempty"`
	MismatchedParts  int       `json:"mismatched_parts,omitempty"`
	Errors           int       `json:"errors"`
	ErrorSample      []string  `json:"error_sample,omitempty"`
}

func (r *Report) addError(err error) {
	r.Errors++
	if len(r.ErrorSample) < maxErrorSample {
		r.ErrorSample = append(r.ErrorSample, err.Error())
	}
}

// Healthy reports whether the run found nothing to act on.
func (r *Report) Healthy() bool {
	return r.Errors == 0 && len(r.Incomplete) == 0 && r.InvalidManifests == 0
}

type dirListing struct {
	manifests []string
	parts     map[string]int64
	partials  []string
}

// Status collects counts about the manifests and part files in dir. Parts not
// referenced by any readable manifest are reported as orphans.
func Status(dir string) (*Report, error) {
	report := &Report{Mode: "status", Dir: dir, StartedAt: now()}
	listing, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	report.Manifests = len(listing.manifests)
	report.Parts = len(listing.parts)
	report.PartialFiles = listing.partials
	for _, size := range listing.parts {
		report.PartBytes += size
	}

	referenced := make(map[string]struct{})
	for _, path := range listing.manifests {
		man, err := manifest.Read(path)
		if err != nil {
			report.InvalidManifests++
			report.addError(err)
			continue
		}
		for _, p := range man.Parts {
			referenced[p.Name] = struct{}{}
		}
	}
	for name := range listing.parts {
		if _, ok := referenced[name]; !ok {
			report.OrphanParts = append(report.OrphanParts, name)
		}
	}
	sort.Strings(report.OrphanParts)
	report.FinishedAt = now()
	return report, nil
}

// Scrub verifies every manifest in dir against the parts next to it. When store is
// not nil each verification is recorded in the catalog.
func Scrub(ctx context.Context, eng *engine.Engine, dir string, store *meta.Store) (*Report, error) {
	if eng == nil {
		return nil, errors.New("ops: engine required")
	}
	report := &Report{Mode: "scrub", Dir: dir, StartedAt: now()}
	listing, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	report.Manifests = len(listing.manifests)
	report.Parts = len(listing.parts)
	report.PartialFiles = listing.partials

	for _, path := range listing.manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		man, err := manifest.Read(path)
		if err != nil {
			report.InvalidManifests++
			report.addError(err)
			continue
		}
		res, err := eng.Verify(ctx, man, dir)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			report.addError(fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		report.MissingParts += res.Count(engine.StatusMissing)
		report.MismatchedParts += res.Count(engine.StatusHashMismatch)
		if res.Reconstructable {
			report.Reconstructable++
		} else {
			report.Incomplete = append(report.Incomplete, filepath.Base(path))
		}
		if store != nil {
			if _, err := store.RecordVerification(ctx, meta.Verification{
				MainName:        man.MainFile.Name,
				Dir:             dir,
				Valid:           res.Count(engine.StatusValid),
				Missing:         res.Count(engine.StatusMissing),
				Mismatched:      res.Count(engine.StatusHashMismatch),
				Reconstructable: res.Reconstructable,
			}); err != nil {
				report.addError(err)
			}
		}
	}
	report.FinishedAt = now()
	return report, nil
}

func listDir(dir string) (*dirListing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fs.IOError("readdir", dir, err)
	}
	out := &dirListing{parts: make(map[string]int64)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, fs.PartialSuffix):
			out.partials = append(out.partials, name)
		case fs.IsManifest(name):
			out.manifests = append(out.manifests, filepath.Join(dir, name))
		default:
			if _, _, ok := chunk.SplitPartName(name); !ok {
				continue
			}
			var size int64
			if info, err := entry.Info(); err == nil {
				size = info.Size()
			}
			out.parts[name] = size
		}
	}
	return out, nil
}

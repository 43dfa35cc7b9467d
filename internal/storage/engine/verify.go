package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

// Status is the verification outcome of a single part.
type Status int

const (
	StatusMissing Status = iota
	StatusHashMismatch
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusHashMismatch:
		return "hash_mismatch"
	case StatusValid:
		return "valid"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusMissing, StatusHashMismatch, StatusValid} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("engine: unknown status %q", text)
}

// PartResult is the outcome for one manifest part.
type PartResult struct {
	Index    int        `json:"index"`
	Name     string     `json:"name"`
	Expected digest.Sum `json:"expected"`
	Actual   digest.Sum `json:"actual,omitempty"`
	Size     int64      `json:"size"`
	Status   Status     `json:"status"`
}

// Report is the result of Verify. Parts follow manifest order.
type Report struct {
	MainFile        string       `json:"main_file"`
	Dir             string       `json:"dir"`
	Algorithm       string       `json:"algorithm"`
	Parts           []PartResult `json:"parts"`
	Reconstructable bool         `json:"reconstructable"`
}

// Status returns the status of the named part and whether it is in the report.
func (r *Report) Status(name string) (Status, bool) {
	for _, p := range r.Parts {
		if p.Name == name {
			return p.Status, true
		}
	}
	return StatusMissing, false
}

// Failed returns the parts that are not valid.
func (r *Report) Failed() []PartResult {
	var out []PartResult
	for _, p := range r.Parts {
		if p.Status != StatusValid {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of parts with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, p := range r.Parts {
		if p.Status == s {
			n++
		}
	}
	return n
}

// Verify checks each manifest part in dir. Outcomes are values; an error is returned only
// for I/O failures other than absence, or cancellation. Nothing is cached between calls.
func (e *Engine) Verify(ctx context.Context, m *manifest.Manifest, dir string) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m == nil {
		return nil, errors.New("engine: nil manifest")
	}
	alg := m.Algorithm
	if alg == "" {
		alg = digest.Default
	}
	layout := fs.NewLayout(dir)
	report := &Report{
		MainFile:  m.MainFile.Name,
		Dir:       dir,
		Algorithm: string(alg),
		Parts:     make([]PartResult, 0, len(m.Parts)),
	}
	for i, part := range m.Parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := verifyPart(ctx, layout.PartPath(part.Name), part, alg)
		if err != nil {
			return nil, err
		}
		res.Index = i
		report.Parts = append(report.Parts, res)
		e.log.Debugw("part verified", "part", part.Name, "status", res.Status.String())
	}
	report.Reconstructable = report.Count(StatusValid) == len(report.Parts)
	e.log.Infow("verify",
		"file", m.MainFile.Name,
		"parts", len(report.Parts),
		"valid", report.Count(StatusValid),
		"missing", report.Count(StatusMissing),
		"mismatch", report.Count(StatusHashMismatch),
	)
	return report, nil
}

func verifyPart(ctx context.Context, path string, part manifest.FileRef, alg digest.Algorithm) (PartResult, error) {
	res := PartResult{
		Name:     part.Name,
		Expected: part.Digest,
		Status:   StatusMissing,
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, fs.IOError("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return res, nil
	}
	res.Size = info.Size()
	sum, err := digest.File(ctx, path, alg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, err
	}
	res.Actual = sum
	if sum.Equal(part.Digest) {
		res.Status = StatusValid
	} else {
		res.Status = StatusHashMismatch
	}
	return res, nil
}

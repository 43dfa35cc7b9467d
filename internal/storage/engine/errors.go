package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kk-code-lab/kitcat/internal/storage/digest"
)

var (
	// ErrIncomplete indicates a merge was attempted without a full, valid part set.
	ErrIncomplete = errors.New("engine: incomplete part set")
	// ErrCorrupt indicates the merged output does not match the manifest digest.
	ErrCorrupt = errors.New("engine: reconstructed file digest mismatch")
	// ErrOutputConflict indicates the merge output would overwrite one of its inputs.
	ErrOutputConflict = errors.New("engine: output path collides with a part file")
	// ErrNotRegularFile indicates the split source is not a regular file.
	ErrNotRegularFile = errors.New("engine: source is not a regular file")
	// ErrSourceChanged indicates the source size changed while it was being split.
	ErrSourceChanged = errors.New("engine: source changed during split")
)

// IncompleteError lists the parts that kept a merge from running.
type IncompleteError struct {
	Parts []PartResult
}

func (e *IncompleteError) Error() string {
	var missing, mismatched []string
	for _, p := range e.Parts {
		switch p.Status {
		case StatusMissing:
			missing = append(missing, p.Name)
		case StatusHashMismatch:
			mismatched = append(mismatched, p.Name)
		}
	}
	var b strings.Builder
	b.WriteString(ErrIncomplete.Error())
	if len(missing) > 0 {
		fmt.Fprintf(&b, "; missing: %s", strings.Join(missing, ", "))
	}
	if len(mismatched) > 0 {
		fmt.Fprintf(&b, "; hash mismatch: %s", strings.Join(mismatched, ", "))
	}
	return b.String()
}

func (e *IncompleteError) Unwrap() error {
	return ErrIncomplete
}

// CorruptionError reports a post-merge digest mismatch. The written data is left at Path.
type CorruptionError struct {
	Path string
	Want digest.Sum
	Got  digest.Sum
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: %s want=%s got=%s", ErrCorrupt.Error(), e.Path, e.Want, e.Got)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupt
}

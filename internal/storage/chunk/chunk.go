package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kk-code-lab/kitcat/internal/storage/digest"
)

// DefaultSize is the default chunk size (4 MiB).
const DefaultSize = 4 << 20

// Separator joins the original file name and a label in part file names.
const Separator = "_kit-cat-part"

// ErrInvalidChunkSize is returned for a chunk size that is not positive.
var ErrInvalidChunkSize = errors.New("chunk: chunk size must be positive")

// Descriptor describes one chunk written by a split.
type Descriptor struct {
	Index  int        `json:"index"`
	Label  string     `json:"label"`
	Name   string     `json:"name"`
	Size   int64      `json:"size"`
	Digest digest.Sum `json:"digest"`
}

// Span is a planned byte range of the source and the part file it goes to.
type Span struct {
	Index  int
	Label  string
	Name   string
	Offset int64
	Len    int64
}

// Count returns ceil(size/chunkSize).
func Count(size, chunkSize int64) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if size <= 0 {
		return 0, nil
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return int(n), nil
}

// PartName builds "<original><Separator><label>".
func PartName(original, label string) string {
	return original + Separator + label
}

// SplitPartName splits a part file name into original name and label.
func SplitPartName(name string) (original, label string, ok bool) {
	idx := strings.LastIndex(name, Separator)
	if idx <= 0 {
		return "", "", false
	}
	label = name[idx+len(Separator):]
	if label == "" {
		return "", "", false
	}
	return name[:idx], label, true
}

// Plan lays out the spans for splitting a file of size bytes. An empty file has no spans.
func Plan(original string, size, chunkSize int64) ([]Span, error) {
	count, err := Count(size, chunkSize)
	if err != nil {
		return nil, err
	}
	labels, err := Labels(count)
	if err != nil {
		return nil, err
	}
	spans := make([]Span, count)
	for i := range spans {
		offset := int64(i) * chunkSize
		length := chunkSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		spans[i] = Span{
			Index:  i,
			Label:  labels[i],
			Name:   PartName(original, labels[i]),
			Offset: offset,
			Len:    length,
		}
	}
	return spans, nil
}

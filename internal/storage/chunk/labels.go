package chunk

import (
	"errors"
	"fmt"
	"math"
)

const (
	alphabetSize = 26
	firstLetter  = 'a'
)

var (
	// ErrInvalidCount is returned for a negative label count.
	ErrInvalidCount = errors.New("chunk: label count must not be negative")
	// ErrInvalidLabel is returned when a label contains characters outside a..z.
	ErrInvalidLabel = errors.New("chunk: invalid label")
)

// Width returns the minimal label length L with 26^L >= count (at least 1).
func Width(count int) int {
	width := 1
	capacity := alphabetSize
	for capacity < count {
		width++
		if capacity > math.MaxInt/alphabetSize {
			break
		}
		capacity *= alphabetSize
	}
	return width
}

// Label renders index as a base-26 number over a..z, left-padded with 'a' to width.
func Label(index, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(firstLetter + index%alphabetSize)
		index /= alphabetSize
	}
	return string(buf)
}

// Labels returns count labels of equal width, ordered both by index and lexicographically.
func Labels(count int) ([]string, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	labels := make([]string, 0, count)
	err := WalkLabels(count, func(_ int, label string) error {
		labels = append(labels, label)
		return nil
	})
	return labels, err
}

// WalkLabels calls fn with each of the count labels in order without holding
// them all in memory. It stops at the first error fn returns.
func WalkLabels(count int, fn func(index int, label string) error) error {
	if count < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	width := Width(count)
	for i := 0; i < count; i++ {
		if err := fn(i, Label(i, width)); err != nil {
			return err
		}
	}
	return nil
}

// ParseLabel returns the index encoded by label.
func ParseLabel(label string) (int, error) {
	if label == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidLabel)
	}
	index := 0
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c < firstLetter || c >= firstLetter+alphabetSize {
			return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
		}
		if index > (math.MaxInt-int(c-firstLetter))/alphabetSize {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidLabel, label)
		}
		index = index*alphabetSize + int(c-firstLetter)
	}
	return index, nil
}

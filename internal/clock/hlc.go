package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// HLC is a hybrid logical clock. Its stamps sort lexicographically in issue order even
// when the wall clock stalls or steps backwards, which keeps catalog history ordered.
type HLC struct {
	mu           sync.Mutex
	source       Clock
	lastPhysical int64
	logical      uint32
}

// NewHLC returns an HLC reading physical time from source (RealClock when nil).
func NewHLC(source Clock) *HLC {
	if source == nil {
		source = RealClock{}
	}
	return &HLC{source: source}
}

// Next returns the next stamp.
func (h *HLC) Next() string {
	now := h.source.Now().UnixNano()
	h.mu.Lock()
	defer h.mu.Unlock()
	if now > h.lastPhysical {
		h.lastPhysical = now
		h.logical = 0
	} else {
		h.logical++
	}
	return formatStamp(h.lastPhysical, h.logical)
}

// Observe moves the clock past a stamp read back from storage. It reports whether
// the clock advanced.
func (h *HLC) Observe(stamp string) bool {
	physical, logical, ok := ParseStamp(stamp)
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case physical > h.lastPhysical:
		h.lastPhysical = physical
		h.logical = logical
		return true
	case physical == h.lastPhysical && logical > h.logical:
		h.logical = logical
		return true
	}
	return false
}

// ParseStamp splits a stamp into its physical and logical components.
func ParseStamp(stamp string) (int64, uint32, bool) {
	physicalPart, logicalPart, found := strings.Cut(stamp, "-")
	if !found {
		return 0, 0, false
	}
	physical, err := strconv.ParseInt(physicalPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	logical, err := strconv.ParseUint(logicalPart, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return physical, uint32(logical), true
}

func formatStamp(physical int64, logical uint32) string {
	return fmt.Sprintf("%019d-%010d", physical, logical)
}

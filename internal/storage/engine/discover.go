package engine

import (
	"os"
	"sort"
	"strings"

	"github.com/kk-code-lab/kitcat/internal/storage/chunk"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
)

// DiscoveredPart is a part file found by listing a directory.
type DiscoveredPart struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Index int    `json:"index"`
	Size  int64  `json:"size"`
}

// Discovery is the result of scanning a directory for the parts of one file.
type Discovery struct {
	MainFile string           `json:"main_file"`
	Parts    []DiscoveredPart `json:"parts"`
	// Gaps lists labels absent between the first and last index found.
	Gaps []string `json:"gaps,omitempty"`
	// Unrecognized lists part-like names whose label cannot be decoded or whose
	// width differs from the majority.
	Unrecognized []string `json:"unrecognized,omitempty"`
	Partial      []string `json:"partial,omitempty"`
}

// Complete reports whether the found parts form a contiguous run starting at label zero.
func (d *Discovery) Complete() bool {
	if len(d.Parts) == 0 || len(d.Gaps) > 0 || len(d.Unrecognized) > 0 {
		return false
	}
	return d.Parts[0].Index == 0
}

// Discover lists dir and collects part files belonging to mainName. Parts are ordered by
// label, which matches split order because labels have a fixed width.
func Discover(dir, mainName string) (*Discovery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fs.IOError("readdir", dir, err)
	}
	out := &Discovery{MainFile: mainName}
	widths := make(map[int]int)
	var candidates []DiscoveredPart
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, fs.PartialSuffix) {
			if orig, _, ok := chunk.SplitPartName(strings.TrimSuffix(name, fs.PartialSuffix)); ok && orig == mainName {
				out.Partial = append(out.Partial, name)
			}
			continue
		}
		orig, label, ok := chunk.SplitPartName(name)
		if !ok || orig != mainName {
			continue
		}
		idx, err := chunk.ParseLabel(label)
		if err != nil {
			out.Unrecognized = append(out.Unrecognized, name)
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		widths[len(label)]++
		candidates = append(candidates, DiscoveredPart{Name: name, Label: label, Index: idx, Size: size})
	}

	width := dominantWidth(widths)
	for _, c := range candidates {
		if len(c.Label) != width {
			out.Unrecognized = append(out.Unrecognized, c.Name)
			continue
		}
		out.Parts = append(out.Parts, c)
	}
	sort.Slice(out.Parts, func(i, j int) bool {
		return out.Parts[i].Label < out.Parts[j].Label
	})
	sort.Strings(out.Unrecognized)
	sort.Strings(out.Partial)

	if len(out.Parts) > 0 {
		next := 0
		for _, p := range out.Parts {
			for ; next < p.Index; next++ {
				out.Gaps = append(out.Gaps, chunk.Label(next, width))
			}
			next = p.Index + 1
		}
	}
	return out, nil
}

func dominantWidth(widths map[int]int) int {
	best, bestCount := 0, -1
	for w, n := range widths {
		if n > bestCount || (n == bestCount && w < best) {
			best, bestCount = w, n
		}
	}
	return best
}

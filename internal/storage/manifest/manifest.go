package manifest

import (
	"time"

	"github.com/kk-code-lab/kitcat/internal/storage/chunk"
	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 1

// FileRef names a file and its digest. Size is informational and may be zero in
// manifests written by older tools.
type FileRef struct {
	Name   string
	Digest digest.Sum
	Size   int64
}

// Manifest binds a main file to the ordered parts it was split into.
// Parts order is the reconstruction order.
type Manifest struct {
	Version   int
	Algorithm digest.Algorithm
	ChunkSize int64
	CreatedAt time.Time
	MainFile  FileRef
	Parts     []FileRef
}

// New builds a manifest from a main file reference and split descriptors.
func New(main FileRef, parts []chunk.Descriptor, alg digest.Algorithm, chunkSize int64, createdAt time.Time) *Manifest {
	refs := make([]FileRef, len(parts))
	for i, p := range parts {
		refs[i] = FileRef{Name: p.Name, Digest: p.Digest, Size: p.Size}
	}
	if alg == "" {
		alg = digest.Default
	}
	return &Manifest{
		Version:   CurrentVersion,
		Algorithm: alg,
		ChunkSize: chunkSize,
		CreatedAt: createdAt.UTC(),
		MainFile:  main,
		Parts:     refs,
	}
}

// TotalPartSize sums the recorded part sizes.
func (m *Manifest) TotalPartSize() int64 {
	var total int64
	for _, p := range m.Parts {
		total += p.Size
	}
	return total
}

// FileName returns the suggested manifest file name for a main file.
func FileName(mainName string) string {
	return fs.ManifestName(mainName)
}

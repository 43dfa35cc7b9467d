// Package digest computes the content fingerprints recorded in manifests.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"

	"github.com/kk-code-lab/kitcat/internal/storage/fs"
)

// Algorithm names a supported hash function.
type Algorithm string

const (
	SHA256    Algorithm = "sha256"
	BLAKE3    Algorithm = "blake3"
	BLAKE2b   Algorithm = "blake2b-256"
	Default             = SHA256
	sumLength           = 32
)

// ErrUnknownAlgorithm is returned for algorithm names that are not supported.
var ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")

// Sum is a lowercase hex encoded digest.
type Sum string

// Algorithms lists the supported algorithms, default first.
func Algorithms() []Algorithm {
	return []Algorithm{SHA256, BLAKE3, BLAKE2b}
}

// ParseAlgorithm resolves a name; the empty string selects Default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return Default, nil
	case SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	case BLAKE2b:
		return BLAKE2b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// New returns a fresh hash.Hash for alg.
func New(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case SHA256, "":
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	case BLAKE2b:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(alg))
	}
}

// FromHash encodes the current state of h.
func FromHash(h hash.Hash) Sum {
	return Sum(hex.EncodeToString(h.Sum(nil)))
}

// Bytes hashes an in-memory buffer.
func Bytes(alg Algorithm, data []byte) (Sum, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(data)
	return FromHash(h), nil
}

// Reader streams r through alg and returns the digest.
// ctx is checked between buffer-sized reads.
func Reader(ctx context.Context, r io.Reader, alg Algorithm) (Sum, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}
	if _, err := fs.CopyContext(ctx, h, r); err != nil {
		return "", err
	}
	return FromHash(h), nil
}

// File digests the file at path. Read failures wrap fs.ErrIOFailure.
func File(ctx context.Context, path string, alg Algorithm) (Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fs.IOError("open", path, err)
	}
	defer func() { _ = f.Close() }()
	sum, err := Reader(ctx, f, alg)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrUnknownAlgorithm) {
			return "", err
		}
		return "", fs.IOError("read", path, err)
	}
	return sum, nil
}

// Valid reports whether s is well-formed for alg.
func (s Sum) Valid(alg Algorithm) bool {
	if _, err := New(alg); err != nil {
		return false
	}
	if len(s) != hex.EncodedLen(sumLength) {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Equal compares two sums ignoring hex case.
func (s Sum) Equal(other Sum) bool {
	return strings.EqualFold(string(s), string(other))
}

// Short returns the first 12 hex characters for display.
func (s Sum) Short() string {
	if len(s) <= 12 {
		return string(s)
	}
	return string(s[:12])
}

func (s Sum) String() string {
	return string(s)
}

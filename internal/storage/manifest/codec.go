package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/fs"
)

var (
	// ErrParse indicates malformed manifest content.
	ErrParse = errors.New("manifest: malformed")
	// ErrNotFound indicates the manifest file does not exist.
	ErrNotFound = errors.New("manifest: not found")
)

// Codec serializes and deserializes manifests.
type Codec interface {
	Encode(w io.Writer, m *Manifest) error
	Decode(r io.Reader) (*Manifest, error)
}

// JSONCodec reads and writes the kit-cat-config JSON format.
type JSONCodec struct{}

type wireFile struct {
	Name   *string `json:"name"`
	Digest *string `json:"digest,omitempty"`
	Hash   *string `json:"hash,omitempty"`
	Size   *int64  `json:"size,omitempty"`
}

type wireManifest struct {
	Version   int         `json:"version,omitempty"`
	Algorithm string      `json:"algorithm,omitempty"`
	ChunkSize int64       `json:"chunkSize,omitempty"`
	CreatedAt string      `json:"createdAt,omitempty"`
	MainFile  *wireFile   `json:"mainFile"`
	Parts     *[]wireFile `json:"parts"`
}

// Encode writes m as indented JSON.
func (c *JSONCodec) Encode(w io.Writer, m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil manifest")
	}
	alg := m.Algorithm
	if alg == "" {
		alg = digest.Default
	}
	version := m.Version
	if version == 0 {
		version = CurrentVersion
	}
	wm := wireManifest{
		Version:   version,
		Algorithm: string(alg),
		ChunkSize: m.ChunkSize,
		MainFile:  toWire(m.MainFile),
	}
	if !m.CreatedAt.IsZero() {
		wm.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	parts := make([]wireFile, len(m.Parts))
	for i, p := range m.Parts {
		parts[i] = *toWire(p)
	}
	wm.Parts = &parts
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&wm)
}

// Decode parses and validates a manifest. Unknown fields are ignored.
func (c *JSONCodec) Decode(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var wm wireManifest
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	alg, err := digest.ParseAlgorithm(wm.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if wm.MainFile == nil {
		return nil, fmt.Errorf("%w: mainFile missing", ErrParse)
	}
	if wm.Parts == nil {
		return nil, fmt.Errorf("%w: parts missing", ErrParse)
	}
	if wm.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: negative chunkSize", ErrParse)
	}
	m := &Manifest{
		Version:   wm.Version,
		Algorithm: alg,
		ChunkSize: wm.ChunkSize,
	}
	if wm.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, wm.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: createdAt: %w", ErrParse, err)
		}
		m.CreatedAt = ts
	}
	if m.MainFile, err = fromWire(*wm.MainFile, alg, "mainFile"); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(*wm.Parts))
	m.Parts = make([]FileRef, 0, len(*wm.Parts))
	for i, wp := range *wm.Parts {
		ref, err := fromWire(wp, alg, fmt.Sprintf("parts[%d]", i))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ref.Name]; dup {
			return nil, fmt.Errorf("%w: parts[%d]: duplicate name %q", ErrParse, i, ref.Name)
		}
		seen[ref.Name] = struct{}{}
		m.Parts = append(m.Parts, ref)
	}
	return m, nil
}

func toWire(ref FileRef) *wireFile {
	name := ref.Name
	sum := string(ref.Digest)
	wf := &wireFile{Name: &name, Digest: &sum}
	if ref.Size > 0 {
		size := ref.Size
		wf.Size = &size
	}
	return wf
}

func fromWire(wf wireFile, alg digest.Algorithm, field string) (FileRef, error) {
	if wf.Name == nil {
		return FileRef{}, fmt.Errorf("%w: %s.name missing", ErrParse, field)
	}
	if !fs.IsBareName(*wf.Name) {
		return FileRef{}, fmt.Errorf("%w: %s.name %q is not a bare file name", ErrParse, field, *wf.Name)
	}
	raw := wf.Digest
	if raw == nil {
		// Manifests written by the desktop application use "hash".
		raw = wf.Hash
	}
	if raw == nil {
		return FileRef{}, fmt.Errorf("%w: %s.digest missing", ErrParse, field)
	}
	sum := digest.Sum(strings.ToLower(strings.TrimSpace(*raw)))
	if !sum.Valid(alg) {
		return FileRef{}, fmt.Errorf("%w: %s.digest %q is not a %s digest", ErrParse, field, *raw, alg)
	}
	ref := FileRef{Name: *wf.Name, Digest: sum}
	if wf.Size != nil {
		if *wf.Size < 0 {
			return FileRef{}, fmt.Errorf("%w: %s.size negative", ErrParse, field)
		}
		ref.Size = *wf.Size
	}
	return ref, nil
}

// Marshal encodes m with the JSON codec.
func Marshal(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := (&JSONCodec{}).Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write persists m at path atomically (temp file, fsync, rename).
func Write(path string, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(path, data, 0o644)
}

// Read loads the manifest at path. A missing file yields ErrNotFound, malformed
// content ErrParse, other read failures fs.ErrIOFailure.
func Read(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fs.IOError("open", path, err)
	}
	defer func() { _ = file.Close() }()
	man, err := (&JSONCodec{}).Decode(file)
	if err != nil {
		if errors.Is(err, ErrParse) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fs.IOError("read", path, err)
	}
	return man, nil
}

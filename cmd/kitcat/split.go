package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/meta"
	"github.com/kk-code-lab/kitcat/internal/storage/engine"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

type splitOutput struct {
	Manifest  string            `json:"manifest"`
	Dir       string            `json:"dir"`
	File      inspectFile       `json:"file"`
	Algorithm string            `json:"algorithm"`
	ChunkSize int64             `json:"chunk_size"`
	Parts     []splitOutputPart `json:"parts"`
	CatalogID string            `json:"catalog_id,omitempty"`
	Previous  []previousSplit   `json:"previous_splits,omitempty"`
}

type previousSplit struct {
	CatalogID string `json:"catalog_id"`
	Dir       string `json:"dir"`
	CreatedAt string `json:"created_at"`
}

type splitOutputPart struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

func (c *cli) newSplitCommand() *cobra.Command {
	var (
		outDir       string
		chunkSize    string
		algorithm    string
		manifestPath string
	)
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split a file into parts and write its manifest",
		Args:  requireArgs("file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if chunkSize == "" {
				chunkSize = c.cfg.ChunkSize
			}
			size, err := config.ParseSize(chunkSize)
			if err != nil {
				return usageError(err)
			}
			eng, err := c.engine(algorithm)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = filepath.Dir(src)
			}
			if manifestPath == "" {
				manifestPath = filepath.Join(outDir, manifest.FileName(filepath.Base(src)))
			}

			lock, err := acquireDirLock(outDir, "split")
			if err != nil {
				return err
			}
			defer lock.Release()

			res, err := eng.Split(cmd.Context(), src, outDir, size)
			if err != nil {
				return err
			}
			if err := ensureParentDir(manifestPath); err != nil {
				return err
			}
			man, err := eng.WriteManifest(cmd.Context(), manifestPath, res)
			if err != nil {
				return err
			}

			out := splitOutput{
				Manifest:  manifestPath,
				Dir:       outDir,
				File:      inspectFile{Name: man.MainFile.Name, Digest: string(man.MainFile.Digest), Size: man.MainFile.Size},
				Algorithm: string(man.Algorithm),
				ChunkSize: man.ChunkSize,
			}
			for _, p := range res.Parts {
				out.Parts = append(out.Parts, splitOutputPart{Name: p.Name, Size: p.Size, Digest: string(p.Digest)})
			}
			c.withCatalog(func(store *meta.Store) error {
				earlier, err := store.FindSplitsByDigest(cmd.Context(), string(res.Main.Digest))
				if err != nil {
					return err
				}
				for _, s := range earlier {
					if s.Algorithm != string(res.Algorithm) {
						continue
					}
					out.Previous = append(out.Previous, previousSplit{CatalogID: s.ID, Dir: s.Dir, CreatedAt: s.CreatedAt})
					c.log.Warnw("same content was split before", "file", s.MainName, "catalog_id", s.ID, "dir", s.Dir)
				}
				rec, err := store.RecordSplit(cmd.Context(), splitRecord(res, manifestPath))
				if err != nil {
					return err
				}
				out.CatalogID = rec.ID
				return nil
			})
			return c.emit(out, func(w io.Writer) error {
				fmt.Fprintf(w, "split %s (%s) into %d part(s) of up to %s\n",
					out.File.Name, config.FormatSize(out.File.Size), len(out.Parts), config.FormatSize(out.ChunkSize))
				for _, p := range out.Parts {
					fmt.Fprintf(w, "  %s  %10s  %s\n", p.Name, config.FormatSize(p.Size), p.Digest)
				}
				for _, p := range out.Previous {
					fmt.Fprintf(w, "note: same content split before (%s, %s)\n", p.CatalogID, p.Dir)
				}
				_, err := fmt.Fprintf(w, "manifest: %s\n", out.Manifest)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for the parts (default: next to the file)")
	cmd.Flags().StringVarP(&chunkSize, "chunk-size", "s", "", "part size, e.g. 100, 64KiB, 4MB; K, M and G are powers of 1024 (env KITCAT_CHUNK_SIZE)")
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "", "digest algorithm: sha256, blake3, blake2b-256 (env KITCAT_ALGORITHM)")
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest path (default: <out>/<stem>.kit-cat-config)")
	return cmd
}

func splitRecord(res *engine.SplitResult, manifestPath string) meta.Split {
	rec := meta.Split{
		MainName:     res.Main.Name,
		MainDigest:   string(res.Main.Digest),
		Algorithm:    string(res.Algorithm),
		Size:         res.Main.Size,
		ChunkSize:    res.ChunkSize,
		Dir:          absPath(res.Dir),
		ManifestPath: absPath(manifestPath),
	}
	for _, p := range res.Parts {
		rec.Parts = append(rec.Parts, meta.SplitPart{Index: p.Index, Name: p.Name, Digest: string(p.Digest), Size: p.Size})
	}
	return rec
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

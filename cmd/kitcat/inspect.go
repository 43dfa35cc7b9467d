package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

type inspectOutput struct {
	Path      string        `json:"path"`
	Version   int           `json:"version"`
	Algorithm string        `json:"algorithm"`
	ChunkSize int64         `json:"chunk_size,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
	MainFile  inspectFile   `json:"main_file"`
	Parts     []inspectFile `json:"parts"`
	PartBytes int64         `json:"part_bytes"`
}

type inspectFile struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
	Size   int64  `json:"size,omitempty"`
}

func (c *cli) newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <manifest>",
		Short: "Print the contents of a manifest",
		Args:  requireArgs("manifest"),
		RunE: func(cmd *cobra.Command, args []string) error {
			man, err := manifest.Read(args[0])
			if err != nil {
				return err
			}
			out := inspectOutput{
				Path:      args[0],
				Version:   man.Version,
				Algorithm: string(man.Algorithm),
				ChunkSize: man.ChunkSize,
				MainFile:  inspectFile{Name: man.MainFile.Name, Digest: string(man.MainFile.Digest), Size: man.MainFile.Size},
				PartBytes: man.TotalPartSize(),
			}
			if !man.CreatedAt.IsZero() {
				out.CreatedAt = man.CreatedAt.Format(time.RFC3339)
			}
			for _, p := range man.Parts {
				out.Parts = append(out.Parts, inspectFile{Name: p.Name, Digest: string(p.Digest), Size: p.Size})
			}
			return c.emit(out, func(w io.Writer) error {
				fmt.Fprintf(w, "file:       %s\n", out.MainFile.Name)
				fmt.Fprintf(w, "digest:     %s (%s)\n", out.MainFile.Digest, out.Algorithm)
				if out.MainFile.Size > 0 {
					fmt.Fprintf(w, "size:       %s\n", config.FormatSize(out.MainFile.Size))
				}
				if out.ChunkSize > 0 {
					fmt.Fprintf(w, "chunk size: %s\n", config.FormatSize(out.ChunkSize))
				}
				if out.CreatedAt != "" {
					fmt.Fprintf(w, "created:    %s\n", out.CreatedAt)
				}
				fmt.Fprintf(w, "parts:      %d\n", len(out.Parts))
				for _, p := range out.Parts {
					size := "?"
					if p.Size > 0 {
						size = config.FormatSize(p.Size)
					}
					fmt.Fprintf(w, "  %s  %10s  %s\n", p.Name, size, p.Digest)
				}
				return nil
			})
		},
	}
}

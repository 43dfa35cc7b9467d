package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/meta"
	"github.com/kk-code-lab/kitcat/internal/storage/engine"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

func (c *cli) newMergeCommand() *cobra.Command {
	var (
		dir    string
		output string
	)
	cmd := &cobra.Command{
		Use:   "merge <manifest>",
		Short: "Reassemble a file from its parts",
		Args:  requireArgs("manifest"),
		RunE: func(cmd *cobra.Command, args []string) error {
			man, err := manifest.Read(args[0])
			if err != nil {
				return err
			}
			eng, err := c.engine(string(man.Algorithm))
			if err != nil {
				return err
			}
			partsDir := manifestDir(args[0], dir)
			if output == "" {
				output = filepath.Join(partsDir, man.MainFile.Name)
			}
			outDir := filepath.Dir(output)
			lock, err := acquireDirLock(outDir, "merge")
			if err != nil {
				return err
			}
			defer lock.Release()

			res, mergeErr := eng.Merge(cmd.Context(), man, partsDir, output)
			c.withCatalog(func(store *meta.Store) error {
				rec := meta.Merge{
					MainName:   man.MainFile.Name,
					MainDigest: string(man.MainFile.Digest),
					OutputPath: absPath(output),
					State:      mergeState(mergeErr),
				}
				if res != nil {
					rec.Size = res.Size
				}
				if mergeErr != nil {
					rec.Detail = mergeErr.Error()
				}
				_, err := store.RecordMerge(cmd.Context(), rec)
				return err
			})
			if mergeErr != nil {
				var inc *engine.IncompleteError
				if errors.As(mergeErr, &inc) && !c.jsonOut {
					for _, p := range inc.Parts {
						fmt.Fprintf(c.out, "%-14s %s\n", p.Status, p.Name)
					}
				}
				return mergeErr
			}
			return c.emit(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "merged %d part(s) into %s (%s, %s)\n",
					res.Parts, res.Path, config.FormatSize(res.Size), res.Digest.Short())
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory holding the parts (default: manifest directory)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (default: <dir>/<original name>)")
	return cmd
}

func mergeState(err error) string {
	switch {
	case err == nil:
		return meta.MergeOK
	case errors.Is(err, engine.ErrIncomplete):
		return meta.MergeIncomplete
	case errors.Is(err, engine.ErrCorrupt):
		return meta.MergeCorrupt
	default:
		return meta.MergeFailed
	}
}

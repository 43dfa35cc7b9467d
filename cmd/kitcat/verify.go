package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/meta"
	"github.com/kk-code-lab/kitcat/internal/storage/engine"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

// manifestDir resolves the parts directory: the flag value, or the manifest's directory.
func manifestDir(manifestPath, dir string) string {
	if dir != "" {
		return dir
	}
	return filepath.Dir(manifestPath)
}

func (c *cli) newVerifyCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "verify <manifest>",
		Short: "Check every part listed in a manifest",
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
			report, err := eng.Verify(cmd.Context(), man, partsDir)
			if err != nil {
				return err
			}
			c.withCatalog(func(store *meta.Store) error {
				_, err := store.RecordVerification(cmd.Context(), meta.Verification{
					MainName:        man.MainFile.Name,
					Dir:             absPath(partsDir),
					Valid:           report.Count(engine.StatusValid),
					Missing:         report.Count(engine.StatusMissing),
					Mismatched:      report.Count(engine.StatusHashMismatch),
					Reconstructable: report.Reconstructable,
				})
				return err
			})
			if err := c.emit(report, func(w io.Writer) error {
				return printReport(w, report)
			}); err != nil {
				return err
			}
			if !report.Reconstructable {
				return &exitCodeError{code: exitIncomplete, msg: ErrNotReconstructable.Error(), quiet: true}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory holding the parts (default: manifest directory)")
	return cmd
}

func printReport(w io.Writer, report *engine.Report) error {
	for _, p := range report.Parts {
		fmt.Fprintf(w, "%-14s %s\n", p.Status, p.Name)
	}
	verdict := "reconstructable"
	if !report.Reconstructable {
		verdict = "NOT reconstructable"
	}
	_, err := fmt.Fprintf(w, "%s: %d/%d valid, %s\n", report.MainFile, report.Count(engine.StatusValid), len(report.Parts), verdict)
	return err
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/ops"
)

func (c *cli) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <dir>",
		Short: "Summarize manifests and part files in a directory",
		Args:  requireArgs("dir"),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ops.Status(args[0])
			if err != nil {
				return err
			}
			return c.emit(report, func(w io.Writer) error {
				return printOpsReport(w, report)
			})
		},
	}
}

func (c *cli) newScrubCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scrub <dir>",
		Short: "Verify every manifest in a directory",
		Args:  requireArgs("dir"),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.engine("")
			if err != nil {
				return err
			}
			store, err := c.openCatalog()
			if err != nil {
				c.log.Warnw("catalog unavailable", "error", err)
				store = nil
			}
			if store != nil {
				defer func() { _ = store.Close() }()
			}
			report, err := ops.Scrub(cmd.Context(), eng, args[0], store)
			if err != nil {
				return err
			}
			if err := c.emit(report, func(w io.Writer) error {
				return printOpsReport(w, report)
			}); err != nil {
				return err
			}
			if len(report.Incomplete) > 0 {
				return &exitCodeError{code: exitIncomplete, msg: ErrNotReconstructable.Error(), quiet: true}
			}
			if !report.Healthy() {
				return &exitCodeError{code: exitFailure, msg: "scrub found errors", quiet: true}
			}
			return nil
		},
	}
}

func printOpsReport(w io.Writer, report *ops.Report) error {
	fmt.Fprintf(w, "mode=%s dir=%s manifests=%d parts=%d errors=%d\n",
		report.Mode, report.Dir, report.Manifests, report.Parts, report.Errors)
	if report.Mode == "status" {
		fmt.Fprintf(w, "part bytes: %s\n", config.FormatSize(report.PartBytes))
		if len(report.OrphanParts) > 0 {
			fmt.Fprintf(w, "orphan parts: %s\n", strings.Join(report.OrphanParts, ", "))
		}
	} else {
		fmt.Fprintf(w, "reconstructable=%d missing_parts=%d mismatched_parts=%d\n",
			report.Reconstructable, report.MissingParts, report.MismatchedParts)
		if len(report.Incomplete) > 0 {
			fmt.Fprintf(w, "incomplete: %s\n", strings.Join(report.Incomplete, ", "))
		}
	}
	if report.InvalidManifests > 0 {
		fmt.Fprintf(w, "invalid manifests: %d\n", report.InvalidManifests)
	}
	if len(report.PartialFiles) > 0 {
		fmt.Fprintf(w, "incomplete writes: %s\n", strings.Join(report.PartialFiles, ", "))
	}
	for _, sample := range report.ErrorSample {
		fmt.Fprintf(w, "  error: %s\n", sample)
	}
	return nil
}

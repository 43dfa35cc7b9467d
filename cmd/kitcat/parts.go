package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/storage/engine"
)

func (c *cli) newPartsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parts <dir> <name>",
		Short: "List the part files of a file found in a directory",
		Args:  requireArgs("dir", "name"),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := engine.Discover(args[0], args[1])
			if err != nil {
				return err
			}
			return c.emit(d, func(w io.Writer) error {
				for _, p := range d.Parts {
					fmt.Fprintf(w, "%-6s %s  %s\n", p.Label, p.Name, config.FormatSize(p.Size))
				}
				if len(d.Gaps) > 0 {
					fmt.Fprintf(w, "gaps: %s\n", strings.Join(d.Gaps, ", "))
				}
				if len(d.Unrecognized) > 0 {
					fmt.Fprintf(w, "unrecognized: %s\n", strings.Join(d.Unrecognized, ", "))
				}
				if len(d.Partial) > 0 {
					fmt.Fprintf(w, "incomplete writes: %s\n", strings.Join(d.Partial, ", "))
				}
				_, err := fmt.Fprintf(w, "%d part(s), contiguous=%t\n", len(d.Parts), d.Complete())
				return err
			})
		},
	}
}

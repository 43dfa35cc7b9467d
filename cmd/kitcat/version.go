package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/app"
)

func (c *cli) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version and exit",
		Annotations: map[string]string{annotationNoSetup: ""},
		Args:        requireArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{"version": app.Version, "commit": app.BuildCommit}
			return c.emit(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "kitcat %s\n", app.String())
				return err
			})
		},
	}
}

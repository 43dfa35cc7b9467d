package main

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/storage/chunk"
)

// labelsCheckEvery is how many labels are written between cancellation checks.
const labelsCheckEvery = 4096

func (c *cli) newLabelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "labels <count>",
		Short:       "Print the part labels used for a given number of parts",
		Annotations: map[string]string{annotationNoSetup: ""},
		Args:        requireArgs("count"),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil {
				return usageError(fmt.Errorf("invalid count %q", args[0]))
			}
			if count < 0 {
				return usageError(fmt.Errorf("%w: %d", chunk.ErrInvalidCount, count))
			}
			ctx := cmd.Context()
			w := bufio.NewWriter(c.out)
			if c.jsonOut && count == 0 {
				fmt.Fprintln(w, "[]")
				return w.Flush()
			}
			if c.jsonOut {
				w.WriteString("[\n")
			}
			err = chunk.WalkLabels(count, func(i int, label string) error {
				if i%labelsCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if !c.jsonOut {
					_, err := fmt.Fprintln(w, label)
					return err
				}
				sep := ","
				if i == count-1 {
					sep = ""
				}
				_, err := fmt.Fprintf(w, "  %q%s\n", label, sep)
				return err
			})
			if err != nil {
				return err
			}
			if c.jsonOut {
				w.WriteString("]\n")
			}
			return w.Flush()
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/meta"
)

func (c *cli) newHistoryCommand() *cobra.Command {
	var (
		limit int
		name  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent splits, verifications and merges from the catalog",
		Long: "List recent catalog activity, newest first. With --name, list only the\n" +
			"splits of files whose name starts with the given prefix.",
		Args: requireArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.requireCatalog()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if cmd.Flags().Changed("name") {
				splits, err := store.ListSplits(cmd.Context(), name, limit)
				if err != nil {
					return err
				}
				return c.emit(splits, func(w io.Writer) error {
					for _, s := range splits {
						if _, err := fmt.Fprintf(w, "%s  %s  %s  %d parts  %s\n",
							s.CreatedAt, s.ID, s.MainName, s.PartCount, s.Dir); err != nil {
							return err
						}
					}
					return nil
				})
			}

			events, err := store.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return c.emit(events, func(w io.Writer) error {
				for _, ev := range events {
					if _, err := fmt.Fprintf(w, "%s  %-6s  %s  %s\n", ev.CreatedAt, ev.Kind, ev.MainName, ev.Detail); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.Flags().StringVar(&name, "name", "", "list splits of files whose name starts with this prefix")
	cmd.AddCommand(c.newHistoryShowCommand())
	return cmd
}

func (c *cli) newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <split-id>",
		Short: "Show a recorded split with its parts",
		Args:  requireArgs("split-id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.requireCatalog()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, err := store.GetSplit(cmd.Context(), args[0])
			if errors.Is(err, meta.ErrNotFound) {
				return fmt.Errorf("split %s: %w", args[0], err)
			}
			if err != nil {
				return err
			}
			return c.emit(rec, func(w io.Writer) error {
				fmt.Fprintf(w, "split:      %s\n", rec.ID)
				fmt.Fprintf(w, "file:       %s\n", rec.MainName)
				fmt.Fprintf(w, "digest:     %s (%s)\n", rec.MainDigest, rec.Algorithm)
				fmt.Fprintf(w, "size:       %s\n", config.FormatSize(rec.Size))
				fmt.Fprintf(w, "chunk size: %s\n", config.FormatSize(rec.ChunkSize))
				fmt.Fprintf(w, "dir:        %s\n", rec.Dir)
				fmt.Fprintf(w, "manifest:   %s\n", rec.ManifestPath)
				fmt.Fprintf(w, "created:    %s\n", rec.CreatedAt)
				for _, p := range rec.Parts {
					fmt.Fprintf(w, "  %s  %10s  %s\n", p.Name, config.FormatSize(p.Size), p.Digest)
				}
				return nil
			})
		},
	}
}

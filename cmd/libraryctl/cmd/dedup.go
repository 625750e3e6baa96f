package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDedupCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "List duplicate clusters above a similarity threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			defer lib.Close(cmd.Context())

			groups, err := lib.FindDuplicates(threshold)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, g := range groups {
				fmt.Fprintf(out, "%s (avg similarity %.4f, %d members)\n", g.RepresentativeID, g.AverageSimilarity, len(g.Members))
				for _, m := range g.Members {
					fmt.Fprintf(out, "  %s\t%.4f\n", m.ID, m.Similarity)
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0.95, "minimum cosine similarity to cluster")
	return cmd
}

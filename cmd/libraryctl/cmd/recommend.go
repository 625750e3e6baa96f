package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libraryengine/stacks/pkg/library"
)

func newRecommendCmd() *cobra.Command {
	var embedding string
	var maxResults int
	var minScore float64

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Weighted recommendation (vector/recency/frequency + learning boost)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var vec []float32
			if embedding != "" {
				var err error
				vec, err = parseEmbedding(embedding)
				if err != nil {
					return err
				}
			}

			lib, err := openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			defer lib.Close(cmd.Context())

			results, err := lib.Recommend(library.RecommendOptions{
				QueryEmbedding: vec,
				MaxResults:     maxResults,
				MinScore:       minScore,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%.4f\t%s\t%s\n", r.Score, r.Volume.ID, truncate(r.Volume.Text, 80))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&embedding, "embedding", "", "comma-separated query embedding")
	cmd.Flags().IntVar(&maxResults, "max-results", 10, "maximum results to print")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum score to include")

	return cmd
}

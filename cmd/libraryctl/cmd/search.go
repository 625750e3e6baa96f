package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libraryengine/stacks/pkg/library"
)

type searchOptions struct {
	embedding  string
	query      string
	mode       string
	threshold  float64
	maxResults int
	rankBy     string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a combined vector/text search",
		Long: `Run advancedSearch against the store: vector similarity (--embedding),
text matching (--query/--mode), combined per --rank-by, printed best-first.

Examples:
  libraryctl search --embedding 0.1,0.2,0.3 --max-results 5
  libraryctl search --query cat --mode bm25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.embedding, "embedding", "", "comma-separated query embedding")
	cmd.Flags().StringVar(&opts.query, "query", "", "text query")
	cmd.Flags().StringVar(&opts.mode, "mode", "substring", "text mode: exact, substring, regex, fuzzy, token, bm25")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "similarity threshold (vector mode)")
	cmd.Flags().IntVar(&opts.maxResults, "max-results", 10, "maximum results to print")
	cmd.Flags().StringVar(&opts.rankBy, "rank-by", "weighted", "vector, text, average, multiply, weighted")

	return cmd
}

func runSearch(cmd *cobra.Command, opts searchOptions) error {
	var embedding []float32
	if opts.embedding != "" {
		var err error
		embedding, err = parseEmbedding(opts.embedding)
		if err != nil {
			return err
		}
	}

	searchOpts := library.SearchOptions{
		QueryEmbedding: embedding,
		RankBy:         library.RankBy(opts.rankBy),
		MaxResults:     opts.maxResults,
	}
	if opts.threshold > 0 {
		searchOpts.SimilarityThreshold = opts.threshold
		searchOpts.HasSimilarity = true
	}
	if opts.query != "" {
		searchOpts.Text = &library.TextQuery{
			Query: opts.query,
			Mode:  library.TextMode(opts.mode),
		}
	}

	lib, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	defer lib.Close(cmd.Context())

	results, err := lib.Search(searchOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%.4f\t%s\t%s\n", r.Score, r.Volume.ID, truncate(r.Volume.Text, 80))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

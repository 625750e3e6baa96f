package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type addOptions struct {
	embedding string
	metadata  []string
}

func newAddCmd() *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Insert one volume",
		Long: `Insert one volume with its text, embedding, and optional metadata.

Examples:
  libraryctl add "the quick brown fox" --embedding 0.1,0.2,0.3
  libraryctl add "release notes" --embedding 0.4,0.1,0.0 --metadata topic=docs/releases`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.embedding, "embedding", "", "comma-separated embedding floats (required)")
	cmd.Flags().StringSliceVar(&opts.metadata, "metadata", nil, "key=value metadata pairs (repeatable)")
	cmd.MarkFlagRequired("embedding")

	return cmd
}

func runAdd(cmd *cobra.Command, text string, opts addOptions) error {
	embedding, err := parseEmbedding(opts.embedding)
	if err != nil {
		return err
	}
	metadata, err := parseMetadata(opts.metadata)
	if err != nil {
		return err
	}

	lib, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	defer lib.Close(cmd.Context())

	id, err := lib.Add(cmd.Context(), text, embedding, metadata)
	if err != nil {
		return err
	}

	if err := lib.Save(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func parseEmbedding(s string) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("embedding must not be empty")
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid metadata pair %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

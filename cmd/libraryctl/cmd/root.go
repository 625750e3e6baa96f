// Package cmd provides the CLI commands for libraryctl, a demo/ops front
// end over the embeddable pkg/library facade.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libraryengine/stacks/internal/logging"
	"github.com/libraryengine/stacks/pkg/library"
)

var dataPath string

// NewRootCmd creates the root command for the libraryctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "libraryctl",
		Short: "Inspect and drive a Library Engine store from the command line",
		Long: `libraryctl is a thin operator CLI over pkg/library: add volumes,
run searches, list topics, and inspect duplicates and recommendations
against a single on-disk store.`,
	}

	cmd.PersistentFlags().StringVar(&dataPath, "path", "./library.simk", "path to the store file")

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTopicsCmd())
	cmd.AddCommand(newDedupCmd())
	cmd.AddCommand(newRecommendCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// openLibrary opens the store at the global --path flag with discard
// logging (the CLI prints its own output on stdout).
func openLibrary(ctx context.Context) (*library.Library, error) {
	lib, err := library.Open(ctx, library.Options{
		Path:   dataPath,
		Logger: logging.Discard(),
	})
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	return lib, nil
}

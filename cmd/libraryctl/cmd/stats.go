package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print basic store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			defer lib.Close(cmd.Context())

			volumes, err := lib.GetAll()
			if err != nil {
				return err
			}
			topics, err := lib.GetTopics()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "volumes: %d\n", len(volumes))
			fmt.Fprintf(out, "topics:  %d\n", len(topics))
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/updater"
	"github.com/stormycloud/shabench/internal/version"
)

func newVersionCmd(e *env) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and optionally look for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "shabench %s\n", version.Version)
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			rel, err := updater.Check(ctx)
			if err != nil {
				return fmt.Errorf("update check: %w", err)
			}
			if rel == nil {
				fmt.Fprintln(w, "Up to date")
				return nil
			}
			fmt.Fprintf(w, "Version %s is available: %s\n", rel.TagName, rel.HTMLURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "query GitHub for the latest release")
	return cmd
}

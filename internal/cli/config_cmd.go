package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/config"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the current settings to a new config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				p, err := config.DefaultFile()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.Save(e.v, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if e.cfg.File != "" {
				fmt.Fprintf(w, "# %s\n", e.cfg.File)
			}
			keys := e.v.AllKeys()
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%s = %v\n", k, e.v.Get(k))
			}
			return nil
		},
	})
	return cmd
}

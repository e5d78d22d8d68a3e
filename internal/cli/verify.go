package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/validate"
)

func newVerifyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Hash the known-answer vectors on the selected backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBackend(e.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := validate.SpotCheck(cmd.Context(), b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d known-answer vectors OK\n", b.Name(), len(validate.KnownVectors))
			return nil
		},
	}
}

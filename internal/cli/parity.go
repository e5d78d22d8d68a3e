package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeebo/xxh3"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
	"github.com/stormycloud/shabench/internal/cpu"
	"github.com/stormycloud/shabench/internal/validate"
)

func newParityCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "parity",
		Short: "Hash one batch on both backends and compare the digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in := batch.Generate(e.cfg.Batch.Size, []byte(e.cfg.Batch.Input))

			c, err := cpu.New(e.cfg.Workers())
			if err != nil {
				return err
			}
			defer c.Close()
			g, err := newGPU(e.cfg)
			if err != nil {
				return err
			}
			defer g.Close()

			want, _, err := c.Dispatch(ctx, in)
			if err != nil {
				return err
			}
			got, _, err := g.Dispatch(ctx, in)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s  %016x\n", c.Name(), xxh3.Hash(want.Bytes()))
			fmt.Fprintf(w, "%s  %016x\n", g.Name(), xxh3.Hash(got.Bytes()))
			if err := compare(got, want); err != nil {
				return fmt.Errorf("%s and %s disagree: %w", g.Name(), c.Name(), err)
			}
			fmt.Fprintf(w, "%d digests match\n", want.Len())
			return nil
		},
	}
}

// compare reports the first index where got differs from want.
func compare(got, want batch.Digests) error {
	if got.Equal(want) {
		return nil
	}
	if got.Len() != want.Len() {
		return &backend.DispatchError{
			Backend: "parity",
			Err:     fmt.Errorf("got %d digests, want %d", got.Len(), want.Len()),
		}
	}
	for i := 0; i < want.Len(); i++ {
		if got.At(i) != want.At(i) {
			return &validate.MismatchError{Index: i, Got: got.At(i), Want: want.At(i)}
		}
	}
	return nil
}

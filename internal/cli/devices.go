package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/gpu"
)

func newDevicesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List GPU devices usable with --gpu-device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := gpu.ListDevices()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVENDOR\tAPI\tMAX GROUP")
			for _, d := range devs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.Name, d.Vendor, d.Backend, d.MaxGroupWidth)
			}
			if !gpu.Available() {
				mainLog.Infof("No hardware GPU found; use --gpu-device emulator to run the GPU path in software")
			}
			return tw.Flush()
		},
	}
}

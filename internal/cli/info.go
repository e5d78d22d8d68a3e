package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/minio/sha256-simd"
	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/gpu"
	"github.com/stormycloud/shabench/internal/hostinfo"
)

const cycleSamples = 100000

func newInfoCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the host CPU and GPU devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			info := hostinfo.Detect()
			fmt.Fprintf(w, "CPU:      %s\n", info)
			fmt.Fprintf(w, "Workers:  %d suggested, %d configured\n", info.SuggestedWorkers(), e.cfg.Workers())
			if len(info.Features) > 0 {
				fmt.Fprintf(w, "Features: %s\n", strings.Join(info.Features, " "))
			}

			content := []byte(e.cfg.Batch.Input)
			if cycles, ok := hostinfo.MeasureCycles(func() { sha256.Sum256(content) }, cycleSamples); ok {
				fmt.Fprintf(w, "Cost:     %s cycles per %s record\n",
					humanize.FormatFloat("#,###.#", cycles), humanize.Bytes(uint64(len(content))))
			}

			devs, err := gpu.ListDevices()
			if err != nil {
				return err
			}
			for _, d := range devs {
				fmt.Fprintf(w, "GPU:      %s\n", d)
			}
			return nil
		},
	}
}

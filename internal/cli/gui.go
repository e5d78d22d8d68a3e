package cli

import (
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"github.com/stormycloud/shabench/internal/bench"
	"github.com/stormycloud/shabench/internal/config"
	"github.com/stormycloud/shabench/internal/ui"
)

func newGUICmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop throughput monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app.NewWithID("io.stormycloud.shabench")
			a.Settings().SetTheme(ui.Theme())
			ui.New(a, *e.cfg, launch).Show()
			return nil
		},
	}
}

// launch builds a loop for the window. Reports go only to the window.
func launch(cfg config.Config) (*bench.Loop, func(), error) {
	b, err := newBackend(&cfg)
	if err != nil {
		return nil, nil, err
	}
	loop, err := bench.New(b, loopConfig(&cfg))
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return loop, func() { b.Close() }, nil
}

// Package ui is a desktop throughput monitor for the benchmark loop.
package ui

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/bench"
	"github.com/stormycloud/shabench/internal/config"
	"github.com/stormycloud/shabench/internal/gpu"
	"github.com/stormycloud/shabench/internal/stats"
)

// Launcher builds a loop for cfg. The returned cleanup releases the backend.
type Launcher func(cfg config.Config) (*bench.Loop, func(), error)

// App holds the UI state.
type App struct {
	window  fyne.Window
	base    config.Config
	launch  Launcher
	current *run // nil when idle or after Stop
}

// run is one Start of the loop. Its backend is released when its own loop
// returns, even if a newer run has started since.
type run struct {
	loop    *bench.Loop
	cleanup func()
}

// New creates and returns the main application window. base supplies every
// setting the window does not expose.
func New(app fyne.App, base config.Config, launch Launcher) *App {
	w := app.NewWindow("SHA-256 Throughput Benchmark")
	w.Resize(fyne.NewSize(520, 440))
	a := &App{window: w, base: base, launch: launch}
	a.buildUI()
	return a
}

// Show displays the window.
func (a *App) Show() {
	a.window.SetOnClosed(a.stop)
	a.window.ShowAndRun()
}

func (a *App) buildUI() {
	// --- Backend selector ---
	backendSelect := widget.NewSelect([]string{string(backend.KindCPU), string(backend.KindGPU)}, nil)
	backendSelect.SetSelected(a.base.Backend)

	// --- Worker selector ---
	maxCores := runtime.NumCPU()
	coreOptions := make([]string, maxCores)
	for i := 0; i < maxCores; i++ {
		coreOptions[i] = strconv.Itoa(i + 1)
	}
	coreSelect := widget.NewSelect(coreOptions, nil)
	coreSelect.SetSelected(strconv.Itoa(a.base.Workers()))

	// --- Device selector ---
	var deviceNames []string
	if devs, err := gpu.ListDevices(); err == nil {
		for _, d := range devs {
			deviceNames = append(deviceNames, d.Name)
		}
	}
	deviceSelect := widget.NewSelect(deviceNames, nil)
	if a.base.GPU.Device != "" {
		deviceSelect.SetSelected(a.base.GPU.Device)
	} else if len(deviceNames) > 0 {
		deviceSelect.SetSelected(deviceNames[0])
	}

	// --- Batch size ---
	batchEntry := widget.NewEntry()
	batchEntry.SetText(strconv.Itoa(a.base.Batch.Size))

	// --- Progress labels ---
	statusLabel := widget.NewLabel("Idle")
	speedLabel := widget.NewLabel("")
	hashesLabel := widget.NewLabel("")
	latencyLabel := widget.NewLabel("")

	startBtn := widget.NewButton("Start", nil)
	inputs := []fyne.Disableable{backendSelect, coreSelect, deviceSelect, batchEntry}

	startBtn.OnTapped = func() {
		if a.current != nil {
			a.stop()
			startBtn.SetText("Start")
			statusLabel.SetText("Stopped")
			setEnabled(inputs, true)
			return
		}

		size, err := strconv.Atoi(batchEntry.Text)
		if err != nil || size < 1 {
			dialog.ShowError(fmt.Errorf("batch size must be a positive integer"), a.window)
			return
		}
		cores, _ := strconv.Atoi(coreSelect.Selected)
		if cores == 0 {
			cores = maxCores
		}

		cfg := a.base
		cfg.Backend = backendSelect.Selected
		cfg.Batch.Size = size
		cfg.CPU.Workers = cores
		cfg.GPU.Device = deviceSelect.Selected
		if err := cfg.Validate(); err != nil {
			dialog.ShowError(err, a.window)
			return
		}

		speedLabel.SetText("")
		hashesLabel.SetText("")
		latencyLabel.SetText("")
		if err := a.start(cfg, statusLabel, speedLabel, hashesLabel, latencyLabel, startBtn, inputs); err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		startBtn.SetText("Stop")
		statusLabel.SetText("Running...")
		setEnabled(inputs, false)
	}

	// --- Layout ---
	form := container.NewVBox(
		widget.NewLabelWithStyle("SHA-256 Throughput Benchmark", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),

		widget.NewForm(
			widget.NewFormItem("Backend", backendSelect),
			widget.NewFormItem("CPU Workers", coreSelect),
			widget.NewFormItem("GPU Device", deviceSelect),
			widget.NewFormItem("Batch Size", batchEntry),
		),

		widget.NewSeparator(),
		container.NewHBox(startBtn, layout.NewSpacer()),
		widget.NewSeparator(),

		widget.NewLabelWithStyle("Status", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		statusLabel,
		speedLabel,
		hashesLabel,
		latencyLabel,
	)

	a.window.SetContent(container.NewPadded(form))
}

func (a *App) start(cfg config.Config, statusLabel, speedLabel, hashesLabel, latencyLabel *widget.Label, startBtn *widget.Button, inputs []fyne.Disableable) error {
	loop, cleanup, err := a.launch(cfg)
	if err != nil {
		return err
	}
	r := a.begin(loop, cleanup)

	unit, _ := stats.ParseUnit(cfg.Report.Unit)
	snapCh, errCh := loop.Start(context.Background())

	// Listen for snapshots
	go func() {
		for s := range snapCh {
			fyne.Do(func() {
				if a.current != r {
					return
				}
				speedLabel.SetText("Speed: " + formatRate(s.Rate, unit))
				hashesLabel.SetText(fmt.Sprintf("Hashes: %s | Iterations: %s | Compute: %s",
					formatUint(s.Hashes), formatUint(s.Iterations), formatDuration(s.Elapsed)))
				latencyLabel.SetText("Average iteration: " + formatLatency(s.AvgLatency))
			})
		}
	}()

	// Listen for the end of the run
	go func() {
		err, ok := <-errCh
		fyne.Do(func() {
			if a.current == r {
				if ok && err != nil {
					statusLabel.SetText("Failed")
				} else {
					statusLabel.SetText("Finished")
				}
				startBtn.SetText("Start")
				setEnabled(inputs, true)
			}
			if ok && err != nil {
				dialog.ShowError(err, a.window)
			}
			a.finish(r)
		})
	}()
	return nil
}

// begin makes a new run current.
func (a *App) begin(loop *bench.Loop, cleanup func()) *run {
	r := &run{loop: loop, cleanup: cleanup}
	a.current = r
	return r
}

// stop cancels the current run. Its backend is released by finish once the
// loop has returned.
func (a *App) stop() {
	if a.current == nil {
		return
	}
	a.current.loop.Stop()
	a.current = nil
}

// finish frees r's backend after its loop has returned.
func (a *App) finish(r *run) {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
	if a.current == r {
		a.current = nil
	}
}

func setEnabled(ws []fyne.Disableable, enabled bool) {
	for _, w := range ws {
		if enabled {
			w.Enable()
		} else {
			w.Disable()
		}
	}
}

func formatRate(rate float64, unit stats.Unit) string {
	if unit == "" {
		unit = stats.UnitAuto
	}
	return unit.Format(rate)
}

func formatUint(n uint64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2fB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func formatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 24 {
		days := h / 24
		h = h % 24
		return fmt.Sprintf("%dd %dh %dm", days, h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

package cli

import (
	"context"
	"os"
	"os/signal"
)

// interruptSignals defines the default signals to catch in order to do a proper
// shutdown.  This may be modified during init depending on the platform.
var interruptSignals = []os.Signal{os.Interrupt}

// shutdownListener returns a context that is canceled when an interrupt
// signal arrives.  Further signals are logged and otherwise ignored so the
// current iteration can finish.
func shutdownListener() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		sig := <-interruptChannel
		mainLog.Infof("Received signal (%s).  Shutting down...", sig)
		cancel()

		for sig := range interruptChannel {
			mainLog.Infof("Received signal (%s).  Already shutting down...", sig)
		}
	}()
	return ctx
}

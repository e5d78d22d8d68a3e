package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/stormycloud/shabench/internal/bench"
	"github.com/stormycloud/shabench/internal/config"
	"github.com/stormycloud/shabench/internal/cpu"
	"github.com/stormycloud/shabench/internal/gpu"
	"github.com/stormycloud/shabench/internal/telemetry"
	"github.com/stormycloud/shabench/internal/validate"
)

// logWriter implements an io.Writer that outputs to stderr and, when
// configured, the rotating log file. Stdout is reserved for reports.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file.  This must be performed early during application startup by
// calling initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem loggers.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	bnchLog = backendLog.Logger("BNCH")
	confLog = backendLog.Logger("CONF")
	cpubLog = backendLog.Logger("CPUB")
	gpubLog = backendLog.Logger("GPUB")
	mainLog = backendLog.Logger("MAIN")
	metrLog = backendLog.Logger("METR")
	valdLog = backendLog.Logger("VALD")
)

// Initialize package-global logger variables.
func init() {
	bench.UseLogger(bnchLog)
	config.UseLogger(confLog)
	cpu.UseLogger(cpubLog)
	gpu.UseLogger(gpubLog)
	telemetry.UseLogger(metrLog)
	validate.UseLogger(valdLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"BNCH": bnchLog,
	"CONF": confLog,
	"CPUB": cpubLog,
	"GPUB": gpubLog,
	"MAIN": mainLog,
	"METR": metrLog,
	"VALD": valdLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string, maxSizeKB int64, maxFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, maxSizeKB, false, maxFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r
	return nil
}

// closeLogRotator flushes and closes the log file, if any.
func closeLogRotator() {
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
}

// parseAndSetDebugLevels sets subsystem log levels from levels, which
// is either a single level ("debug") or a comma separated list of
// subsystem=level pairs ("GPUB=trace,BNCH=debug").
func parseAndSetDebugLevels(levels string) error {
	if !strings.Contains(levels, "=") {
		level, ok := slog.LevelFromString(levels)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is invalid", levels)
		}
		for _, logger := range subsystemLoggers {
			logger.SetLevel(level)
		}
		return nil
	}

	for _, pair := range strings.Split(levels, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", pair)
		}
		subsysID, logLevel := strings.ToUpper(fields[0]), fields[1]

		logger, ok := subsystemLoggers[subsysID]
		if !ok {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- supported subsystems %v",
				subsysID, supportedSubsystems())
		}
		level, ok := slog.LevelFromString(logLevel)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is invalid", logLevel)
		}
		logger.SetLevel(level)
	}
	return nil
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

package cli

import (
	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/bench"
	"github.com/stormycloud/shabench/internal/config"
	"github.com/stormycloud/shabench/internal/cpu"
	"github.com/stormycloud/shabench/internal/gpu"
	"github.com/stormycloud/shabench/internal/validate"
)

// newBackend builds the backend named by cfg.Backend.
func newBackend(cfg *config.Config) (backend.Backend, error) {
	kind, err := backend.ParseKind(cfg.Backend)
	if err != nil {
		return nil, err
	}
	switch kind {
	case backend.KindGPU:
		return newGPU(cfg)
	default:
		return cpu.New(cfg.Workers())
	}
}

func newGPU(cfg *config.Config) (*gpu.Backend, error) {
	b, err := gpu.New(
		gpu.SessionConfig{Device: cfg.GPU.Device},
		gpu.BackendConfig{GroupWidth: cfg.GPU.GroupWidth, ChunkSize: cfg.GPU.ChunkSize},
	)
	if err != nil {
		return nil, err
	}
	mainLog.Infof("Using %s (group width %d, chunk %d)", b.Device(), b.GroupWidth(), cfg.GPU.ChunkSize)
	return b, nil
}

// loopConfig maps settings onto the benchmark loop.
func loopConfig(cfg *config.Config) bench.Config {
	policy, _ := validate.ParsePolicy(cfg.Validation.Policy)
	return bench.Config{
		BatchSize:     cfg.Batch.Size,
		Content:       []byte(cfg.Batch.Input),
		ReuseBatch:    cfg.Batch.Reuse,
		Policy:        policy,
		SpotCheck:     cfg.Validation.SpotCheck,
		ReportEvery:   cfg.Report.Every,
		MaxIterations: cfg.Run.MaxIterations,
		Retry: bench.RetryPolicy{
			Attempts:     cfg.Retry.Attempts,
			Backoff:      cfg.Retry.Backoff,
			ResetSession: cfg.Retry.ResetSession,
		},
	}
}

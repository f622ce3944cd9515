package scheduler

import (
	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/envconfig"
	"github.com/born-ml/dispatch/internal/kernels"
)

// DefaultDispatchLimit is the per-axis workgroup limit guaranteed by WebGPU
// (maxComputeWorkgroupsPerDimension).
const DefaultDispatchLimit = 65535

// Config controls scheduling behavior.
type Config struct {
	DispatchLimit int         // Maximum groups per dispatch axis.
	ThreadBudget  int         // Threads per reduction group the default catalog is compiled for.
	Mode          device.Mode // Immediate or Recorded submission.
	MaxBatch      int         // Recorded commands before auto-submit (0 = only on Submit).

	// Catalog resolves kernel ids. Nil selects kernels.Standard(ThreadBudget).
	// Reductions size their passes from the work groups of the catalog's reduce
	// kernels, so a custom catalog overrides ThreadBudget.
	Catalog *kernels.Catalog
}

// DefaultConfig returns the limits of a conformant WebGPU device in immediate mode.
func DefaultConfig() Config {
	return Config{
		DispatchLimit: DefaultDispatchLimit,
		ThreadBudget:  kernels.DefaultThreadBudget,
		Mode:          device.Immediate,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by BORN_DISPATCH_LIMIT,
// BORN_THREAD_BUDGET, BORN_MAX_BATCH and BORN_RECORDED.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := envconfig.DispatchLimit(); v > 0 {
		cfg.DispatchLimit = int(v)
	}
	if v := envconfig.ThreadBudget(); v > 0 {
		cfg.ThreadBudget = int(v)
	}
	cfg.MaxBatch = int(envconfig.MaxBatch())
	if envconfig.Recorded() {
		cfg.Mode = device.Recorded
	}
	return cfg
}

func (cfg Config) withDefaults() Config {
	if cfg.DispatchLimit <= 0 {
		cfg.DispatchLimit = DefaultDispatchLimit
	}
	if cfg.ThreadBudget <= 0 {
		cfg.ThreadBudget = kernels.DefaultThreadBudget
	}
	if cfg.Catalog == nil {
		cfg.Catalog = kernels.Standard(cfg.ThreadBudget)
	}
	return cfg
}

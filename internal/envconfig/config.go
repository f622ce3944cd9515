// Package envconfig reads scheduler overrides from the environment.
package envconfig

import (
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Uint returns a func that reads key as an unsigned integer, falling back to defaultValue
// when it is unset or malformed.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				klog.Warningf("invalid environment variable %s=%q, using default %d", key, s, defaultValue)
				return defaultValue
			}
			return uint(n)
		}
		return defaultValue
	}
}

// Bool returns a func that reads key as a boolean. A set but unparsable value counts as true.
func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

var (
	// DispatchLimit overrides the per-axis workgroup limit.
	DispatchLimit = Uint("BORN_DISPATCH_LIMIT", 0)
	// ThreadBudget overrides the reduction thread budget.
	ThreadBudget = Uint("BORN_THREAD_BUDGET", 0)
	// MaxBatch caps recorded commands per submit.
	MaxBatch = Uint("BORN_MAX_BATCH", 0)
	// Recorded selects recorded scheduling instead of immediate.
	Recorded = Bool("BORN_RECORDED")
)

// EnvVar describes one recognised variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every recognised variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BORN_DISPATCH_LIMIT": {"BORN_DISPATCH_LIMIT", DispatchLimit(), "Maximum workgroups per dispatch axis (0 = 65535)"},
		"BORN_THREAD_BUDGET":  {"BORN_THREAD_BUDGET", ThreadBudget(), "Threads per reduction group (0 = 256)"},
		"BORN_MAX_BATCH":      {"BORN_MAX_BATCH", MaxBatch(), "Recorded commands before auto-submit (0 = unlimited)"},
		"BORN_RECORDED":       {"BORN_RECORDED", Recorded(), "Record dispatches and submit them together"},
	}
}

package scheduler

import (
	"fmt"
	"time"

	"github.com/CadenzaLabs/NarrateKit/engine/chunker"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// Config controls runtime behavior of the scheduling engine. The zero
// value selects the defaults below; negative values are rejected by
// NewEngine.
type Config struct {
	// ConcurrencyLimit caps in-flight synthesis calls per run. New jobs
	// inherit it; a job carrying its own positive limit wins for its
	// runs. Default: 2
	ConcurrencyLimit int

	// MaxAttempts is the total synthesis attempt budget per unit,
	// including the first call. Default: 3
	MaxAttempts int

	// RetryBaseDelay scales backoff between attempts: after failed
	// attempt n the worker waits n * RetryBaseDelay. Default: 1s
	RetryBaseDelay time.Duration

	// MaxUnitLength is the per-unit text budget, in runes, used when
	// chunking new material. Default: chunker.DefaultMaxLength
	MaxUnitLength int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: types.DefaultConcurrencyLimit,
		MaxAttempts:      3,
		RetryBaseDelay:   time.Second,
		MaxUnitLength:    chunker.DefaultMaxLength,
	}
}

// withDefaults fills zero fields from DefaultConfig and rejects
// negative values.
func (c Config) withDefaults() (Config, error) {
	defaults := DefaultConfig()
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = defaults.ConcurrencyLimit
	}
	if c.ConcurrencyLimit < 0 {
		return c, fmt.Errorf("concurrency limit must be positive, got %d", c.ConcurrencyLimit)
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.MaxAttempts < 0 {
		return c, fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.RetryBaseDelay < 0 {
		return c, fmt.Errorf("retry base delay must be positive, got %v", c.RetryBaseDelay)
	}
	if c.MaxUnitLength == 0 {
		c.MaxUnitLength = defaults.MaxUnitLength
	}
	if c.MaxUnitLength < 0 {
		return c, fmt.Errorf("max unit length must be positive, got %d", c.MaxUnitLength)
	}
	return c, nil
}

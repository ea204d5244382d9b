// Package numerator provides domain contracts for auto-sequencing.
package numerator

import (
	"fmt"
	"time"
)

// Config holds display formatting for sequence values.
type Config struct {
	// Prefix added to all numbers (e.g., "SJ")
	Prefix string

	// IncludeYear adds the period year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:   prefix,
		PadWidth: 5,
	}
}

// Format renders a sequence value as a human-facing number.
// Pattern: PREFIX-XXXXX or PREFIX-YEAR-XXXXX.
func Format(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

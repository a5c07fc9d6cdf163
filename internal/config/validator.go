package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/justyntemme/gainlink/pkg/shared"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements error.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

// Error implements error.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels lists the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"error", "warn", "info", "verbose", "debug", "trace"}
}

// Validate returns every invalid setting in c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Registry.Path) == "" {
		errs = append(errs, ValidationError{"registry.path", c.Registry.Path, "must not be empty"})
	}

	positive := []struct {
		field string
		value time.Duration
	}{
		{"timing.reclaim_after", c.Timing.ReclaimAfter},
		{"timing.freshness", c.Timing.Freshness},
		{"timing.live_window", c.Timing.LiveWindow},
		{"timing.active_window", c.Timing.ActiveWindow},
		{"timing.broadcast_interval", c.Timing.BroadcastInterval},
		{"timing.keepalive_interval", c.Timing.KeepaliveInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{p.field, p.value, "must be positive"})
		}
	}
	if c.Timing.KeepaliveInterval > 0 && c.Timing.KeepaliveInterval >= c.Timing.ReclaimAfter {
		errs = append(errs, ValidationError{"timing.keepalive_interval", c.Timing.KeepaliveInterval,
			"must be shorter than timing.reclaim_after"})
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level,
			"must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}

	if c.Simulate.Participants < 0 || c.Simulate.Participants > shared.MaxSlots {
		errs = append(errs, ValidationError{"simulate.participants", c.Simulate.Participants,
			fmt.Sprintf("must be between 0 and %d", shared.MaxSlots)})
	}
	if c.Simulate.SampleRate < 8000 {
		errs = append(errs, ValidationError{"simulate.sample_rate", c.Simulate.SampleRate, "must be at least 8000"})
	}
	if c.Simulate.BlockSize < 16 {
		errs = append(errs, ValidationError{"simulate.block_size", c.Simulate.BlockSize, "must be at least 16"})
	}
	return errs
}

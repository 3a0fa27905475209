// Package config loads environment-backed configuration for service and
// tool commands.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from the PLANNING_POKER_* environment variables
// declared by the struct's env tags, applying envDefault values for
// anything unset.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Package gamecode generates session codes for manual testing and support
// workflows.
package gamecode

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/louisbranch/planning.poker/internal/poker/registry"
)

// Config holds configuration for code generation.
type Config struct {
	Count int
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Count: 1}
	fs.IntVar(&cfg.Count, "count", cfg.Count, "number of codes to generate (default: 1)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the codes and writes them to out, one per line.
func Run(cfg Config, out io.Writer) error {
	if cfg.Count <= 0 {
		return errors.New("count must be greater than zero")
	}
	if out == nil {
		return errors.New("output is required")
	}

	for i := 0; i < cfg.Count; i++ {
		code, err := registry.NewCode()
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		if _, err := fmt.Fprintln(out, code); err != nil {
			return err
		}
	}
	return nil
}

// Package healthwait blocks until a service's gRPC health probe reports
// SERVING. Deployment scripts use it as a readiness gate before pointing
// traffic at a fresh game process.
package healthwait

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/planning.poker/internal/platform/grpc"
	"github.com/louisbranch/planning.poker/internal/platform/timeouts"
)

// Config holds configuration for the readiness wait.
type Config struct {
	Addr    string
	Timeout time.Duration
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Addr: "localhost:8081", Timeout: timeouts.GRPCDial}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "gRPC health probe address")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "maximum time to wait for SERVING")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run dials the health probe and returns once it reports SERVING, writing a
// confirmation line to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return errors.New("address is required")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.GRPCDial
	}

	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, cfg.Timeout, nil, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", addr, err)
	}
	defer conn.Close()

	_, err = fmt.Fprintf(out, "%s SERVING\n", addr)
	return err
}

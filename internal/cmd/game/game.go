// Package game parses game command flags and composes transport entrypoints.
package game

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/louisbranch/planning.poker/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/planning.poker/internal/platform/grpc"
	server "github.com/louisbranch/planning.poker/internal/services/game/app"
)

// Config holds game command configuration.
type Config struct {
	HTTPAddr   string `env:"PLANNING_POKER_HTTP_ADDR"   envDefault:":8080"`
	HealthAddr string `env:"PLANNING_POKER_HEALTH_ADDR" envDefault:":8081"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "game HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health probe listen address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the game app and starts the websocket transport alongside the
// health probe.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGame, func(ctx context.Context) error {
		healthErr := make(chan error, 1)
		go func() {
			healthErr <- platformgrpc.ServeHealth(ctx, cfg.HealthAddr, func(format string, args ...any) {
				log.Printf("health %s", fmt.Sprintf(format, args...))
			})
		}()

		if err := server.Run(ctx, server.Config{HTTPAddr: cfg.HTTPAddr}); err != nil {
			return fmt.Errorf("serve game: %w", err)
		}
		if err := <-healthErr; err != nil {
			return fmt.Errorf("serve health probe: %w", err)
		}
		return nil
	})
}

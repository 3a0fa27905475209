package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/planning.poker/internal/platform/config"
	"github.com/louisbranch/planning.poker/internal/tools/healthwait"
)

func main() {
	cfg, err := healthwait.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := healthwait.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("wait for health: %v", err)
	}
}

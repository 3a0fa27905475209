package main

import (
	"flag"
	"os"

	"github.com/louisbranch/planning.poker/internal/platform/config"
	"github.com/louisbranch/planning.poker/internal/tools/gamecode"
)

func main() {
	cfg, err := gamecode.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := gamecode.Run(cfg, os.Stdout); err != nil {
		config.Exitf("generate code: %v", err)
	}
}

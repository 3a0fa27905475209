package game

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.HealthAddr != ":8081" {
		t.Fatalf("expected default health addr, got %q", cfg.HealthAddr)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("PLANNING_POKER_HTTP_ADDR", "env-http")
	t.Setenv("PLANNING_POKER_HEALTH_ADDR", "env-health")

	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "env-http" || cfg.HealthAddr != "env-health" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}

	fs = flag.NewFlagSet("game", flag.ContinueOnError)
	args := []string{"-http-addr", "flag-http", "-health-addr", "flag-health"}
	cfg, err = ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" || cfg.HealthAddr != "flag-health" {
		t.Fatalf("expected flag overrides, got %+v", cfg)
	}
}

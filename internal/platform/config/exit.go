package config

import (
	"fmt"
	"os"
)

// Exitf prints the formatted message to stderr and exits with status 1.
// The tool commands use it instead of log.Fatalf so their output stays
// plain text without a log prefix.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

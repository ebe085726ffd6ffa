package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Build information. Overridden at release time via -ldflags.
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// configPath holds the --config override consumed before subcommand
// dispatch. Empty means the default lookup order applies.
var configPath string

func main() {
	args, err := consumeGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(dispatchSubcommand(args))
}

// consumeGlobalFlags strips flags that apply to every subcommand so
// "memoria --config x.yaml serve" and "memoria serve" both work.
func consumeGlobalFlags(raw []string) ([]string, error) {
	filtered := make([]string, 0, len(raw))
	var nextConfig bool

	for _, arg := range raw {
		if nextConfig {
			configPath = arg
			nextConfig = false
			continue
		}
		switch arg {
		case "--config", "-c":
			nextConfig = true
		default:
			if strings.HasPrefix(arg, "--config=") {
				configPath = strings.TrimPrefix(arg, "--config=")
			} else {
				filtered = append(filtered, arg)
			}
		}
	}

	if nextConfig {
		return nil, fmt.Errorf("--config requires a path argument")
	}
	return filtered, nil
}

func dispatchSubcommand(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "serve":
		return runCommand(runServeCommand, args[1:])
	case "ingest":
		return runCommand(runIngestCommand, args[1:])
	case "query":
		return runCommand(runQueryCommand, args[1:])
	case "evolve":
		return runCommand(runEvolveCommand, args[1:])
	case "stats":
		return runCommand(runStatsCommand, args[1:])
	case "config":
		return runCommand(runConfigCommand, args[1:])
	case "doctor":
		// Alias for config check - quick health check
		return runCommand(runConfigCommand, []string{"check"})
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'memoria --help' for usage.")
		return 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

func printHelp() {
	fmt.Println("Memoria - Knowledge Memory for Code Documentation")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  memoria [FLAGS] COMMAND")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  serve                            Start the HTTP API with evolution and watch loops")
	fmt.Println("  ingest <file>...                 Ingest markdown/HTML files into the knowledge base")
	fmt.Println("  query <text>                     Search the knowledge base from the snapshot")
	fmt.Println("  evolve [--dry-run]               Run one maintenance cycle over the snapshot")
	fmt.Println("  stats                            Show snapshot and entry statistics")
	fmt.Println("  config [check|show|path]         Manage configuration")
	fmt.Println("  doctor                           Quick health check (alias for config check)")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -c, --config <path>              Use a specific config file")
	fmt.Println("  -v, --version                    Show version information")
	fmt.Println("  -h, --help                       Show this help")
	fmt.Println()
	fmt.Println("Run 'memoria COMMAND -h' for command-specific flags.")
}

func printVersion() {
	fmt.Printf("Memoria %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// exitError carries a process exit code through the error chain so config
// failures (2) are distinguishable from runtime failures (1) in scripts.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return 1
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 1
}

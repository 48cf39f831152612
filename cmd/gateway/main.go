// Package main is the entry point for the edge gateway.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		exitFunc(2)
		return
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	logger := initLogger(observability.LogConfig{
		Level:  orDefault(flags.logLevel, "info"),
		Format: orDefault(flags.logFormat, "json"),
	})

	cfg := loadAndValidateConfig(flags.configPath, logger)
	if cfg == nil {
		return
	}

	// The file may configure logging; flags and environment still win.
	logger = reconfigureLogger(logger, flags, cfg)
	defer func() { _ = logger.Sync() }()

	app := initApplication(cfg, logger)
	if app == nil {
		return
	}

	runGateway(app, flags.configPath, logger)
}

// parseFlags parses command line flags. Environment variables provide
// the defaults.
func parseFlags(fs *flag.FlagSet, args []string) (cliFlags, error) {
	var flags cliFlags
	fs.StringVar(&flags.configPath, "config", getEnvOrDefault("EDGEGW_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", getEnvOrDefault("EDGEGW_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", getEnvOrDefault("EDGEGW_LOG_FORMAT", ""),
		"Log format (json, console)")
	fs.BoolVar(&flags.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "edgegw version %s\n", version)
	_, _ = fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	_, _ = fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		exitFunc(1)
		return observability.NopLogger()
	}
	return logger
}

// fatalWithSync logs at error level, flushes the logger and exits.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	logger.Error(msg, fields...)
	_ = logger.Sync()
	exitFunc(1)
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

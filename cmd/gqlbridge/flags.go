package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// CLIConfig holds the command-line and environment options of the binary.
// Everything else lives in config.Config.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("GQLBRIDGE_CONFIG", ""),
		"Path to configuration file, empty for env-only (env: GQLBRIDGE_CONFIG)")
	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("GQLBRIDGE_CONFIG", ""),
		"Path to configuration file, empty for env-only (env: GQLBRIDGE_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("GQLBRIDGE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: GQLBRIDGE_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("GQLBRIDGE_LOG_FORMAT", "json"),
		"Log format: json, text (env: GQLBRIDGE_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("GQLBRIDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: GQLBRIDGE_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if _, ok := logLevels[strings.ToLower(cfg.LogLevel)]; !ok {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - GraphQL subscription auth bridge

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a config file
  %s --config=/etc/gqlbridge/config.yaml

  # Run with environment variables only
  export GQLBRIDGE_UPSTREAM_HTTP_URL=http://hasura:8080/v1/graphql
  export GQLBRIDGE_UPSTREAM_WS_URL=ws://hasura:8080/v1/graphql
  export GQLBRIDGE_JWT_SECRET=supersecret
  %s

  # Validate configuration only
  %s --config=/etc/gqlbridge/config.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

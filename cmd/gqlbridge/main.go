// Package main implements the entry point for the gqlbridge service.
// gqlbridge sits between GraphQL clients and an upstream GraphQL engine,
// translating realtime subprotocol dialects and swapping client credentials
// for bridge-minted claims tokens.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/gqlbridge/claims"
	"github.com/c360/gqlbridge/config"
	"github.com/c360/gqlbridge/gateway"
	"github.com/c360/gqlbridge/identity"
	"github.com/c360/gqlbridge/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "gqlbridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	store, cleanup, err := setupIdentityStore(cfg)
	if err != nil {
		return fmt.Errorf("setup identity store: %w", err)
	}
	defer cleanup()

	resolver := claims.NewResolver(tokenConfig(cfg), store, logger)
	registry := metric.NewRegistry()

	server, err := gateway.NewServer(cfg, resolver, logger, registry)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	if err := server.Setup(); err != nil {
		return fmt.Errorf("setup gateway: %w", err)
	}

	return runWithSignalHandling(server, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting gqlbridge (GraphQL subscription auth bridge)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// setupIdentityStore creates the configured session-identity backend.
func setupIdentityStore(cfg *config.Config) (identity.Store, func(), error) {
	switch cfg.IdentityBackend {
	case "redis":
		store := identity.NewRedisStore(identity.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		slog.Info("Identity store configured", "backend", "redis", "addr", cfg.RedisAddr)
		return store, func() { _ = store.Close() }, nil

	case "memory":
		slog.Info("Identity store configured", "backend", "memory")
		return identity.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown identity backend %q", cfg.IdentityBackend)
	}
}

// tokenConfig derives the claims token parameters from the loaded config.
func tokenConfig(cfg *config.Config) claims.TokenConfig {
	return claims.TokenConfig{
		SigningSecret: cfg.TokenSigningSecret,
		VerifySecret:  cfg.VerifySecret(),
		Algorithm:     cfg.TokenAlgorithm,
		TTL:           cfg.TokenTTL,
		Namespace:     cfg.ClaimsNamespace,
	}
}

// runWithSignalHandling starts the gateway and handles shutdown signals
func runWithSignalHandling(server *gateway.Server, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	ready := make(chan struct{})
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(signalCtx, ready)
	}()

	select {
	case <-ready:
		slog.Info("gqlbridge started successfully")
	case err := <-errChan:
		return fmt.Errorf("start gateway: %w", err)
	}

	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("gateway failed: %w", err)
		}
		return nil
	}

	if err := server.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("gqlbridge shutdown complete")
	return nil
}

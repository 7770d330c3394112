// Camerabridge discovers DVR and IP cameras on the local network, keeps a
// persistent registry of their streams, and bridges voice-assistant video
// sessions to a go2rtc media engine.
//
// Usage:
//
//	camerabridge [command] [flags]
//
// See 'camerabridge --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"camerabridge/internal/config"
	"camerabridge/internal/logging"
	"camerabridge/internal/registry"
	"camerabridge/internal/repository"
	"camerabridge/internal/repository/jsonfile"
	"camerabridge/internal/repository/sqlite"
)

// Version is set at build time
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "camerabridge",
	Short: "Camera discovery and session bridge",
	Long: `Discovers Hikvision-family DVRs and IP cameras (SADP, WS-Discovery, mDNS,
DVR channel probing and a subnet port sweep), keeps them in a persistent
registry, and answers voice-assistant directives by delegating WebRTC
negotiation to a go2rtc media engine.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search standard locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads --config or the standard locations, then the environment
func loadConfig() (*config.Config, string, error) {
	if configPath == "" {
		return config.Load()
	}
	cfg, path, err := config.LoadFromPath(configPath)
	if err != nil {
		return nil, path, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, path, fmt.Errorf("apply environment: %w", err)
	}
	return cfg, path, nil
}

// initLogging starts zap at the configured level; --log-level wins
func initLogging(cfg *config.Config) error {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	return logging.Initialize(level, cfg.Log.Format)
}

// openStore opens the snapshot store selected by storage.driver
func openStore(cfg *config.Config) (repository.Repository, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return sqlite.New(cfg.Storage.Path)
	case "file", "":
		return jsonfile.New(cfg.Storage.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// openRegistry opens the store and loads the registry from it. The caller
// closes the returned store.
func openRegistry(ctx context.Context, cfg *config.Config, opts ...registry.Option) (*registry.Registry, repository.Repository, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	reg, err := registry.Open(ctx, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, store, nil
}

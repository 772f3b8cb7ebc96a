// Command agent runs the xscape build agent: an HTTP service that syncs
// Xcode projects, builds them with xcodebuild and drives the iOS Simulator.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xscape-dev/agent/internal/api"
	"github.com/xscape-dev/agent/internal/build"
	"github.com/xscape-dev/agent/internal/cache"
	"github.com/xscape-dev/agent/internal/simctl"
	"github.com/xscape-dev/agent/internal/state"
	"github.com/xscape-dev/agent/internal/toolchain"
	"github.com/xscape-dev/agent/pkg/config"
	"github.com/xscape-dev/agent/pkg/logger"
)

var (
	configPath string
	host       string
	port       int
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "xscape-agent",
		Short: "Build agent for Xcode projects and the iOS Simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent API server",
		RunE:  serve,
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	serveCmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(api.Version)
		},
	}

	root.AddCommand(serveCmd, version)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := logger.New(level, false)
	slog.SetDefault(log.Logger)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.New(cfg.LogBuffer)

	projectCache, err := cache.New(store, cfg.Storage.ProjectsDir, log.WithComponent("cache").Logger)
	if err != nil {
		return fmt.Errorf("initialize project cache: %w", err)
	}
	go projectCache.RunJanitor(ctx, cfg.Storage.CleanupInterval, cfg.Storage.CleanupAfter)

	runner := toolchain.NewExecRunner()
	builds := build.NewService(store, runner, log.WithComponent("build").Logger)
	sim := simctl.NewClient(runner, log.WithComponent("simctl").Logger)

	server := api.NewServer(cfg, store, projectCache, builds, sim, runner, log.Logger)

	log.Info("xscape agent starting",
		"version", api.Version,
		"addr", cfg.Addr(),
		"projects_dir", cfg.Storage.ProjectsDir,
	)

	return server.Start(ctx)
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

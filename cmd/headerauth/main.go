package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxiofs/headerauth/internal/config"
	"github.com/maxiofs/headerauth/internal/logging"
	"github.com/maxiofs/headerauth/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "headerauth",
		Short: "headerauth - trusted proxy header authentication",
		Long: `headerauth authenticates requests asserted by a trusted reverse proxy
through REMOTE_USER style headers and syncs the asserted identities
into a local user repository.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runServer,
	}

	// Add configuration flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "Data directory path")
	rootCmd.PersistentFlags().StringP("listen", "l", ":8080", "Listen address")
	rootCmd.PersistentFlags().StringP("log-level", "", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("storage-backend", "", "badger", "Identity repository backend (badger, pebble, sqlite)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE:  runValidate,
	})

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	loader, err := config.NewLoader(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := loader.Config()

	// Setup logging
	setupLogging(cfg.LogLevel)

	logTargets := logging.NewManager(logrus.StandardLogger())
	logTargets.Configure(cfg.Logging.Targets)
	defer logTargets.Close()

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("Starting headerauth")

	// Create server
	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Hot reload of header auth settings and log targets
	loader.Watch(func(c *config.Config, err error) {
		srv.Reload(c, err)
		if err == nil {
			logTargets.Configure(c.Logging.Targets)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logrus.Info("headerauth stopped")
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	snap, err := cfg.Snapshot()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "configuration OK\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  remote user header:  %s\n", snap.RemoteUserHeader())
	fmt.Fprintf(cmd.OutOrStdout(), "  username pattern:    %s\n", snap.UsernamePattern())
	fmt.Fprintf(cmd.OutOrStdout(), "  profile pattern:     %s\n", snap.ProfileHeaderPattern())
	fmt.Fprintf(cmd.OutOrStdout(), "  login cookie:        %s\n", snap.LoginCookie())
	fmt.Fprintf(cmd.OutOrStdout(), "  storage backend:     %s\n", cfg.Storage.Backend)
	return nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

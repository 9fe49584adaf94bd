package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scanner_server/config"
	"scanner_server/internal/bootstrap"
	"scanner_server/pkg/logger"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	config.LoadDotEnv()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "scanner_server",
		Short:         "Find publicly shared Google Drive and Dropbox links in a mailbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				loaded.LogLevel = level
			}
			logger.Init(logger.Config{
				Level:   loaded.LogLevel,
				Service: "scanner",
				Pretty:  loaded.IsDevelopment(),
			})
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(newScanCmd(&cfg), newAuthCmd(&cfg), newServeCmd(&cfg))
	return root
}

func newScanCmd(cfg **config.Config) *cobra.Command {
	var (
		source   string
		mboxPath string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the mailbox once and print the public links",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if source != "" {
				c.ScanSource = source
			}
			if mboxPath != "" {
				c.MboxPath = mboxPath
				if source == "" {
					c.ScanSource = "mbox"
				}
			}

			deps, cleanup, err := bootstrap.NewDependencies(c)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if c.ScanTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.ScanTimeout)
				defer cancel()
			}

			return bootstrap.RunScan(ctx, deps.ScanService, bootstrap.ScanOptions{JSON: asJSON}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "mail source: gmail or mbox (overrides SCAN_SOURCE)")
	cmd.Flags().StringVar(&mboxPath, "mbox", "", "path to an mbox archive (implies --source mbox)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full scan result as JSON")
	return cmd
}

func newAuthCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := bootstrap.NewDependencies(*cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			oauth, err := deps.RequireOAuth()
			if err != nil {
				return err
			}
			return bootstrap.RunAuth(cmd.Context(), oauth, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newServeCmd(cfg **config.Config) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /auth, /oauth2callback, /scan, /health and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if port != "" {
				c.Port = port
			}
			return runAPI(c)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func runAPI(cfg *config.Config) error {
	log := logger.Component("main")

	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		return fmt.Errorf("initialize API: %w", err)
	}
	defer cleanup()

	// Graceful shutdown with timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down API server")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("error shutting down")
		} else {
			log.Info().Msg("API server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("starting API server")
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

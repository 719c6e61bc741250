package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheEntropyCollective/mediavault/pkg/api"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/config"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/mediavault/pkg/util"
)

var (
	serveListen    string
	serveMaxUpload string
	serveNoReload  bool
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveMaxUpload, "max-upload", "", "largest accepted upload, e.g. 64MB (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "do not watch the configuration file for log level changes")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the vault HTTP API",
	Long: `Serves the vault API. Requests must carry the user identity headers set by
the authenticating reverse proxy in front of MediaVault.

While running, edits to the configuration file's logging level take effect
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.vault.RebuildIndex(ctx); err != nil {
			return fmt.Errorf("failed to build search index: %w", err)
		}

		cfg := a.config
		if serveListen != "" {
			cfg.Server.ListenAddr = serveListen
		}
		if serveMaxUpload != "" {
			size, err := util.ParseSize(serveMaxUpload)
			if err != nil {
				return util.WrapErrorWithSuggestion(err, "Use a size such as 64MB or 1GB")
			}
			cfg.Server.MaxUploadBytes = size
		}

		limits := api.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			MaxConcurrent:     cfg.Server.MaxConcurrentRequests,
		}
		server, err := api.NewServer(a.vault, api.ServerConfig{
			Identity: api.HeaderIdentityProvider{
				UserHeader:  cfg.Auth.UserHeader,
				AdminHeader: cfg.Auth.AdminHeader,
			},
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			RateLimit:      &limits,
			Logger:         a.logger,
		})
		if err != nil {
			return err
		}
		defer server.Close()

		if !serveNoReload {
			go watchLogLevel(ctx, a.logger)
		}

		return server.ListenAndServe(ctx, cfg.Server.ListenAddr,
			time.Duration(cfg.Server.ReadTimeout)*time.Second,
			time.Duration(cfg.Server.WriteTimeout)*time.Second)
	},
}

// watchLogLevel applies logging level changes from the configuration file.
func watchLogLevel(ctx context.Context, logger *logging.Logger) {
	path := resolveConfigPath()
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debugf("not watching configuration: %v", err)
		return
	}

	err := config.Watch(ctx, path, func(cfg *config.Config) {
		level, err := logging.ParseLogLevel(cfg.Logging.Level)
		if err != nil {
			logger.WithError(err).Warn("ignoring invalid log level")
			return
		}
		logger.SetLevel(level)
		logger.WithField("level", level.String()).Info("log level reloaded")
	}, func(err error) {
		logger.WithError(err).Warn("configuration reload failed, keeping previous settings")
	})
	if err != nil {
		logger.WithError(err).Warn("configuration watcher stopped")
	}
}

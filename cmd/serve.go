package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/accountkeeper/internal/config"
	"github.com/teemow/accountkeeper/internal/google"
	"github.com/teemow/accountkeeper/internal/instrumentation"
	"github.com/teemow/accountkeeper/internal/keeper"
	"github.com/teemow/accountkeeper/internal/logging"
	"github.com/teemow/accountkeeper/internal/server"
	"github.com/teemow/accountkeeper/internal/tools/account_tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the credential
lifecycle tools over stdio.

Configuration is read from environment variables (and an optional .env
file in the working directory):

  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET (required)
      OAuth2 client credentials from the Google Cloud console.

  ACCOUNTKEEPER_STATE_PATH
      Path of the state database. Default: ~/.accountkeeper/state.db

  VERIFY_AUTHORIZED_EMAIL
      Reject completed authorizations when the consenting Google
      identity differs from the account. Default: true

  METRICS_ENABLED, METRICS_ADDR
      Prometheus metrics sidecar on a dedicated port. Default: disabled

All logs go to stderr; stdout is reserved for the MCP transport.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	return cmd
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.LogLevel, cfg.Environment)

	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	statePath := cfg.StatePath
	if statePath == "" {
		statePath, err = keeper.DefaultStatePath()
		if err != nil {
			return fmt.Errorf("resolving state path: %w", err)
		}
	}

	store, err := keeper.OpenBoltStore(statePath, logger)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing state database failed", logging.Err(err))
		}
	}()

	conf := google.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)

	flow := keeper.NewFlow(conf, cfg.PendingAuthTTL, logger)
	defer flow.Stop()

	refresher := keeper.NewRefresher(conf, store, logger)

	var opts []keeper.ManagerOption
	if provider.Enabled() {
		opts = append(opts, keeper.WithMetrics(instrumentation.NewLifecycleRecorder(provider.Metrics())))
	}
	if cfg.VerifyAuthorizedEmail {
		opts = append(opts, keeper.WithIdentityVerifier(func(ctx context.Context, cred *keeper.Credential) (string, error) {
			return google.AuthorizedEmail(ctx, cred.Token())
		}))
	}

	manager := keeper.NewManager(store, flow, refresher, logger, opts...)

	audit := instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	serverContext := server.NewServerContext(shutdownCtx, manager, logger, provider.Metrics(), audit)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", logging.Err(err))
		}
	}()

	// Start the metrics sidecar if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		health := server.NewHealthChecker(serverContext, store)

		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
			Health:                  health,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}
	defer func() {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("metrics server shutdown failed", logging.Err(err))
			}
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("accountkeeper", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := account_tools.RegisterAccountTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register account tools: %w", err)
	}

	logger.Info("starting MCP server",
		"transport", "stdio",
		"state_path", statePath,
		"metrics_enabled", metricsServer != nil,
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

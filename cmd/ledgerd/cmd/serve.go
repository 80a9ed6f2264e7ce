package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bank_ledger/internal/api"
	"bank_ledger/internal/config"
	"bank_ledger/internal/ledger"
	"bank_ledger/internal/repository/memory"
	"bank_ledger/internal/scheduler"
	"bank_ledger/internal/service"
	"bank_ledger/pkg/crypto"
	"bank_ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const appName = "ledgerd"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP API",
	Long: `Start the REST API, the Prometheus metrics endpoint and, when enabled,
the monthly processing scheduler. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	logger.Info("Starting application", slog.String("name", appName))

	settings, err := cfg.PolicySettings()
	if err != nil {
		return err
	}
	ids, err := cfg.IDGenerator()
	if err != nil {
		return err
	}

	var opts []ledger.Option
	var metricsCollector *metrics.MetricsCollector
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewMetricsCollector(logger)
		opts = append(opts, ledger.WithObserver(metricsCollector))
	}

	l := ledger.NewLedger(
		memory.NewAccountRepository(),
		memory.NewTransactionRepository(),
		ids,
		settings,
		logger,
		opts...,
	)

	secret := cfg.Statement.Secret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("statement.secret not set, statements are signed with an ephemeral key")
	}
	signer := crypto.NewSigner(secret, logger)

	var notifications *service.NotificationService
	var notifier api.Notifier
	if cfg.Notification.Enabled {
		notifications = service.NewNotificationService(
			service.LogEmailService{Logger: logger},
			service.LogSMSService{Logger: logger},
			cfg.Notification.Workers,
			cfg.Notification.QueueSize,
			logger,
		)
		notifier = notifications
	}

	apiHandler := api.NewAPIHandler(l, signer, notifier, cfg.Server.RequestTimeout, logger)
	httpServer := startHTTPServer(cfg, apiHandler, logger)

	var metricsServer *http.Server
	if metricsCollector != nil {
		metricsServer = metricsCollector.StartMetricsServer(cfg.Metrics.Addr)
	}

	var monthly *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		monthly = scheduler.New(l, cfg.Scheduler.Interval, func(ctx context.Context, report ledger.BatchReport) {
			if notifications == nil {
				return
			}
			if err := notifications.NotifyMonthlyAdjustments(ctx, report); err != nil {
				logger.Warn("Failed to queue monthly notifications", slog.String("error", err.Error()))
			}
		}, logger)
		if err := monthly.Start(context.Background()); err != nil {
			return err
		}
	}

	waitForShutdown(cfg, logger, httpServer, metricsCollector, metricsServer, monthly, notifications)
	logger.Info("Application shutdown complete")
	return nil
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

func startHTTPServer(cfg *config.Config, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.ReadTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	cfg *config.Config,
	logger *slog.Logger,
	httpServer *http.Server,
	metricsCollector *metrics.MetricsCollector,
	metricsServer *http.Server,
	monthly *scheduler.Scheduler,
	notifications *service.NotificationService,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if monthly != nil {
		if err := monthly.Shutdown(ctx); err != nil {
			logger.Error("Scheduler shutdown failed", slog.String("error", err.Error()))
		}
	}

	if notifications != nil {
		if err := notifications.Shutdown(ctx); err != nil {
			logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
		}
	}

	if metricsServer != nil {
		if err := metricsCollector.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"invoice_integrity/internal/api"
	"invoice_integrity/internal/config"
	"invoice_integrity/internal/service"
	"invoice_integrity/pkg/crypto"
	"invoice_integrity/pkg/metrics"
)

const appName = "invoice_integrity"

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API and the metrics server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, logger, err := loadConfig(opts, os.Stdout)
	if err != nil {
		return err
	}
	logger.Info("Starting application",
		slog.String("name", appName))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	metricsCollector := metrics.NewMetricsCollector(logger)
	metricsCollector.SetFingerprintAlgorithm(string(a.engine.Algorithm()))

	notificationService := setupNotificationService(cfg, logger)
	a.processor.WithNotifier(notificationService).WithMetrics(metricsCollector)

	var signer *crypto.Signer
	if cfg.Server.SigningSecret != "" {
		signer = crypto.NewSigner(cfg.Server.SigningSecret, logger)
	}

	apiHandler := api.NewAPIHandler(a.processor, metricsCollector, signer, logger).
		WithRequestTimeout(cfg.Server.RequestTimeout)
	metricsServer := metricsCollector.StartMetricsServer(cfg.Server.MetricsAddr)
	httpServer := startHTTPServer(cfg.Server.Addr, apiHandler, logger)
	waitForShutdown(logger, httpServer, metricsServer, notificationService, metricsCollector)
	logger.Info("Application shutdown complete")
	return nil
}

func setupNotificationService(cfg *config.Config, logger *slog.Logger) *service.NotificationService {
	return service.NewNotificationService(
		service.LogEmailService{Logger: logger},
		service.LogSlackService{Logger: logger},
		service.AlertTargets{
			SlackChannel:  cfg.Notifications.SlackChannel,
			SecurityEmail: cfg.Notifications.SecurityEmail,
		},
		cfg.Notifications.Workers,
		logger,
	)
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	router := api.NewRouter(apiHandler)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
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
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	notificationService *service.NotificationService,
	metricsCollector *metrics.MetricsCollector,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
	}
}

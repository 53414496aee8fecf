package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"billdesk/internal/cache"
	"billdesk/internal/config"
	"billdesk/internal/document"
	"billdesk/internal/httpapi"
	"billdesk/internal/notify"
	"billdesk/internal/observability"
	"billdesk/internal/reporting"
	"billdesk/internal/service"
	"billdesk/internal/store"
	"billdesk/internal/store/memory"
	"billdesk/internal/store/sqlstore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	closers := []func() error{repo.Close}
	logger.Info("repository ready", slog.String("driver", cfg.DatabaseDriver))

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", slog.Any("error", err))
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", slog.String("addr", cfg.RedisAddr))
		}
	}

	var pdf *document.PDFClient
	if cfg.GotenbergURL != "" {
		pdf = document.NewPDFClient(cfg.GotenbergURL)
		if err := pdf.Ping(ctx); err != nil {
			logger.Warn("gotenberg unreachable, bills will fall back to html", slog.Any("error", err))
		}
	}
	renderer := document.NewRenderer(cfg.DocumentDir, pdf)

	var messenger notify.Messenger = notify.LogMessenger{Logger: logger}
	if cfg.MessagingWebhookURL != "" {
		messenger = notify.NewWebhookMessenger(cfg.MessagingWebhookURL, cfg.MessagingToken)
	}

	metrics := observability.NewMetrics()
	dispatcher := notify.NewDispatcher(logger, metrics, cfg.SideEffectWorkers, 2*time.Minute)

	svc := service.New(repo, service.Options{
		Cache:        reportCache,
		Dispatcher:   dispatcher,
		Documents:    renderer,
		Messenger:    messenger,
		Metrics:      metrics,
		Logger:       logger,
		Location:     loc,
		ReminderLead: time.Duration(cfg.ReminderLeadDays) * 24 * time.Hour,
	})
	if err := svc.EnsureDefaults(ctx, cfg.SeedAdminPassword); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	reports := reporting.New(repo, reporting.Options{
		Cache:    reportCache,
		TTL:      cfg.SummaryCacheTTL,
		Location: loc,
		Logger:   logger,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL, svc)
	api := httpapi.New(httpapi.Options{
		Service:       svc,
		Reports:       reports,
		Auth:          auth,
		Documents:     renderer,
		Metrics:       metrics,
		Logger:        logger,
		AllowedOrigin: cfg.AllowedOrigin,
		Location:      loc,
		Production:    !cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("billdesk listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.Any("error", err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("side effects still running at shutdown", slog.Any("error", err))
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", slog.Any("error", err))
		}
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		dsn := cfg.DatabaseDSN
		if !strings.HasPrefix(dsn, "file:") {
			dsn = sqlstore.SQLiteDSN(dsn)
		}
		return sqlstore.Open(ctx, "sqlite", dsn)
	default:
		return sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsDevelopment() {
		return nil
	}
	if cfg.SeedAdminPassword == "" {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be set outside development")
	}
	if err := validatePasswordStrength(cfg.SeedAdminPassword); err != nil {
		return fmt.Errorf("SEED_ADMIN_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects short passwords, a single repeated
// character, ascending or descending runs, and well-known defaults.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("at least 8 characters required")
	}
	known := map[string]bool{
		"admin123": true, "password": true, "12345678": true, "87654321": true,
		"qwertyui": true, "password1": true, "admin1234": true, "changeme": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated character not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password not allowed")
	}
	return nil
}

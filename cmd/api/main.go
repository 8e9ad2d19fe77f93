package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/smilepoint/clinic-server/internal/api/router"
	"github.com/smilepoint/clinic-server/internal/appointments"
	"github.com/smilepoint/clinic-server/internal/catalog"
	"github.com/smilepoint/clinic-server/internal/clinicsettings"
	appconfig "github.com/smilepoint/clinic-server/internal/config"
	"github.com/smilepoint/clinic-server/internal/notify"
	"github.com/smilepoint/clinic-server/internal/observability/metrics"
	"github.com/smilepoint/clinic-server/internal/patients"
	"github.com/smilepoint/clinic-server/internal/schedule"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-server API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	settingsStore := clinicsettings.NewStore(redisClient, clinicsettings.Settings{
		BookingWindowDays:      cfg.BookingWindowDays,
		CapacityEditWindowDays: cfg.CapacityEditWindowDays,
		Timezone:               cfg.ClinicTimezone,
	})

	// Stores and services.
	scheduleRepo := schedule.NewRepository(pool)
	resolver := schedule.NewResolver(scheduleRepo)
	planner := schedule.NewPlanner(scheduleRepo, logger)
	notifyStore := notify.NewStore(pool)
	closure := schedule.NewClosure(scheduleRepo.DB(), notifyStore, logger, bookingMetrics)

	patientsRepo := patients.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	appointmentsRepo := appointments.NewRepository(pool)
	bookingService := appointments.NewService(
		appointmentsRepo, patientsRepo, catalogRepo, settingsStore,
		notifyStore, bookingMetrics, logger,
	)

	// Email delivery worker.
	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	} else {
		sender = notify.NewStubEmailSender(logger)
	}
	deliverer := notify.NewDeliverer(notifyStore, sender, logger).WithInterval(cfg.NotifyPollInterval)
	go deliverer.Start(ctx)

	// Handlers and router.
	routerCfg := &router.Config{
		Logger:              logger,
		CatalogHandler:      catalog.NewHandler(catalogRepo, logger),
		PatientsHandler:     patients.NewHandler(patientsRepo, logger),
		AppointmentsHandler: appointments.NewHandler(bookingService, appointmentsRepo, logger),
		ScheduleHandler:     schedule.NewHandler(scheduleRepo, resolver, planner, closure, settingsStore, logger),
		SettingsHandler:     clinicsettings.NewHandler(settingsStore, logger),
		NotifyHandler:       notify.NewHandler(notifyStore, logger),
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		PatientAuthSecret:   cfg.PatientJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

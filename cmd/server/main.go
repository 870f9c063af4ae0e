package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"CapIot.relaysync/internal/config"
	"CapIot.relaysync/internal/controller"
	"CapIot.relaysync/internal/logging"
	"CapIot.relaysync/internal/messaging"
	"CapIot.relaysync/internal/middleware"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/routes"
	"CapIot.relaysync/internal/scheduler"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/transport"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
	// on-demand request responses per second, and burst
	requestRate  = 20
	requestBurst = 40
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("error loading configuration", "error", err)
		os.Exit(1)
	}
	lg := logging.New(cfg.LogLevel, os.Stdout)

	if err := run(cfg, lg); err != nil {
		lg.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, lg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.OpenGormStore(cfg.DatabasePath, lg)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer store.Close()

	topics := transport.NewTopics(cfg.MQTTTopicPrefix)
	client := transport.NewClient(transport.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Logger:    lg,
	})

	telemetry := service.NewTelemetryService(store, lg)
	devices := service.NewDeviceService(store, lg)
	readings := service.NewReadingService(store)
	reconciler := service.NewStateReconciler(store, lg)
	issuer := service.NewCommandIssuer(store, client, topics, lg)
	relays := service.NewRelayService(store, issuer, lg)
	schedules := service.NewScheduleService(store, lg)
	users := service.NewUserService(store, service.TokenConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, lg)

	if cfg.Influx.Enabled() {
		archive, err := repository.NewInfluxArchive(ctx, cfg.Influx, lg)
		if err != nil {
			lg.Warn("reading archive disabled", "error", err)
		} else {
			defer archive.Close()
			telemetry.SetArchive(archive)
		}
	}
	if cfg.Redis.Enabled() {
		presence, err := repository.NewRedisPresence(ctx, cfg.Redis, repository.PresenceTTL)
		if err != nil {
			lg.Warn("presence cache disabled", "error", err)
		} else {
			defer presence.Close()
			telemetry.SetPresence(presence)
			devices.SetPresence(presence)
		}
	}

	router := messaging.NewRouter(messaging.Deps{
		Topics:       topics,
		Publisher:    client,
		Telemetry:    telemetry,
		Relays:       reconciler,
		Status:       devices,
		Readings:     readings,
		Snapshots:    relays,
		Logger:       lg,
		RequestLimit: requestRate,
		RequestBurst: requestBurst,
	})
	client.Subscribe(topics.Wildcard(), router.HandleMessage)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	if err := client.Connect(connectCtx); err != nil {
		lg.Warn("broker not reachable yet, retrying in background", "broker", cfg.MQTTBrokerURL, "error", err)
	}
	cancel()
	defer client.Close()

	runner := scheduler.NewRunner(scheduler.NewEvaluator(store, issuer, cfg.Location, lg), lg)
	if err := runner.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	auth, err := middleware.EnsureValidToken(middleware.AuthConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, lg)
	if err != nil {
		return fmt.Errorf("auth middleware: %w", err)
	}

	mux := routes.SetupRouter(routes.Controllers{
		Health:    controller.NewHealthController(client),
		Users:     controller.NewUserController(users, lg),
		Devices:   controller.NewDeviceController(devices, lg),
		Readings:  controller.NewReadingController(readings, lg),
		Relays:    controller.NewRelayController(relays, lg),
		Schedules: controller.NewScheduleController(schedules, lg),
	}, auth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handlers.LoggingHandler(os.Stdout, corsHandler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		runner.Stop(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/coach/internal/api"
	"example.com/coach/internal/app"
	"example.com/coach/internal/auth"
	"example.com/coach/internal/config"
	"example.com/coach/internal/outbox"
	httptransport "example.com/coach/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coach, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to start services: %v", err)
	}
	defer coach.Close()

	var dispatcher *outbox.Dispatcher
	if coach.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaWriteTimeout)
		defer producer.Close()

		var registryOpts []outbox.RegistryOption
		if cfg.SchemaRegistryUser != "" {
			registryOpts = append(registryOpts, outbox.WithBasicAuth(cfg.SchemaRegistryUser, cfg.SchemaRegistryPass))
		}
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL, registryOpts...)
		dispatcher = outbox.NewDispatcher(coach.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	} else {
		log.Printf("store backend %s: outbox dispatcher disabled", cfg.StoreBackend)
	}

	handler := api.NewHandler(coach.Sessions, coach.Signals, coach.Plans)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(log.New(log.Writer(), "[http] ", log.LstdFlags)),
		httptransport.CORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("coach api listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

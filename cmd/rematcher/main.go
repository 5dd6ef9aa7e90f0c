package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"

	"example.com/coach/internal/app"
	"example.com/coach/internal/config"
	"example.com/coach/internal/jobs"
	"example.com/coach/internal/outbox"
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

	logger := log.New(log.Writer(), "[rematcher] ", log.LstdFlags|log.Lshortfile)

	var replayer jobs.Replayer
	if coach.Pool != nil {
		replayer = outbox.NewDLQManager(coach.Pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)
	}
	runner := jobs.NewRunner(coach.Sessions, replayer, jobs.Options{
		SweepLookback:  cfg.SweepLookback,
		SweepBatchSize: cfg.SweepBatchSize,
		DLQBatchSize:   cfg.DLQBatchSize,
	}, logger)

	scheduler := cron.New()
	if err := runner.Schedule(ctx, scheduler, cfg.SweepSchedule, cfg.DLQSchedule); err != nil {
		log.Fatalf("invalid schedule: %v", err)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("rematcher metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	scheduler.Start()
	log.Printf("rematcher started (sweep=%q, dlq=%q, lookback=%s)", cfg.SweepSchedule, cfg.DLQSchedule, cfg.SweepLookback)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("rematcher received shutdown signal")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
}

// Package app assembles the services shared by the coach binaries from configuration.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coach/internal/attribution"
	"example.com/coach/internal/config"
	"example.com/coach/internal/domain"
	"example.com/coach/internal/matching"
	"example.com/coach/internal/persistence/memory"
	"example.com/coach/internal/persistence/postgres"
	"example.com/coach/internal/planner"
	"example.com/coach/internal/recovery"
)

// Store is everything the services persist or read.
type Store interface {
	domain.SessionRepository
	domain.ContentRepository
	domain.WorkoutStore
	domain.SignalRepository
	planner.PlanCache
}

// App holds the wired services. Pool is nil for the memory backend.
type App struct {
	Config   config.Config
	Pool     *pgxpool.Pool
	Store    Store
	Sessions *attribution.Service
	Signals  *recovery.Service
	Plans    *planner.Generator
}

// New connects the configured backend and wires the services on top of it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return Wire(cfg, memory.NewStore()), nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a := Wire(cfg, postgres.NewRepository(pool))
		a.Pool = pool
		return a, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Wire builds the services over store using the tuning carried by cfg.
func Wire(cfg config.Config, store Store) *App {
	tuning := cfg.Tuning
	matcher := matching.NewMatcher(store, tuning.Matching, matching.WithLogger(prefixed("matcher")))
	sessions := attribution.NewService(store, matcher, matching.NewResolver(tuning.Matching),
		attribution.WithContentRepository(store),
		attribution.WithLogger(prefixed("attribution")))

	plans := planner.NewGenerator(store, store, store, planner.NewEngine(tuning.Planner),
		planner.WithPlanCache(store),
		planner.WithStoreTimeout(tuning.Matching.StoreTimeout),
		planner.WithGeneratorLogger(prefixed("planner")),
	)
	signals := recovery.NewService(store, plans, recovery.WithLogger(prefixed("recovery")))

	return &App{
		Config:   cfg,
		Store:    store,
		Sessions: sessions,
		Signals:  signals,
		Plans:    plans,
	}
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func prefixed(component string) *log.Logger {
	return log.New(log.Writer(), "["+component+"] ", log.LstdFlags|log.Lshortfile)
}

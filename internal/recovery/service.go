// Package recovery ingests daily readiness signals and regenerates the plan they affect.
package recovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/observability"
	"example.com/coach/internal/planner"
)

// PlanGenerator is the part of the planner the service triggers.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req planner.PlanRequest) (planner.Plan, error)
}

// Result is the merged signal and, when generation succeeded, the regenerated plan.
type Result struct {
	Signal domain.RecoverySignal
	Plan   *planner.Plan
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service merges the wearable and chat halves of a day's signal. Delivery is at least
// once: repeated inputs overwrite the same (user, date) row and regenerate the same plan.
type Service struct {
	signals   domain.SignalRepository
	generator PlanGenerator
	logger    *log.Logger
	now       func() time.Time
}

// NewService constructs a Service. generator may be nil to skip plan regeneration.
func NewService(signals domain.SignalRepository, generator PlanGenerator, opts ...Option) *Service {
	s := &Service{
		signals:   signals,
		generator: generator,
		logger:    log.New(log.Writer(), "[recovery] ", log.LstdFlags|log.Lshortfile),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestRecovery stores the wearable recovery score for a day. Invalid input is rejected
// and the previously stored signal stays in place.
func (s *Service) IngestRecovery(ctx context.Context, in domain.RecoveryInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	return s.merge(ctx, in.UserID, in.Date, func(sig domain.RecoverySignal) domain.RecoverySignal {
		return sig.ApplyRecovery(in)
	})
}

// IngestSoreness stores the chat soreness and pain answer for a day.
func (s *Service) IngestSoreness(ctx context.Context, in domain.SorenessInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	return s.merge(ctx, in.UserID, in.Date, func(sig domain.RecoverySignal) domain.RecoverySignal {
		return sig.ApplySoreness(in)
	})
}

// Signal returns the stored signal for (user, date).
func (s *Service) Signal(ctx context.Context, userID string, date time.Time) (*domain.RecoverySignal, error) {
	return s.signals.GetSignal(ctx, userID, domain.DateOf(date))
}

// merge upserts only the half produced by apply and lets the repository combine it with
// the stored row, then reads back the merged signal.
func (s *Service) merge(ctx context.Context, userID string, date time.Time, apply func(domain.RecoverySignal) domain.RecoverySignal) (Result, error) {
	day := domain.DateOf(date)
	half := apply(domain.RecoverySignal{UserID: userID, Date: day})
	half.UpdatedAt = s.now().UTC()
	if err := half.Validate(); err != nil {
		return Result{}, err
	}
	if err := s.signals.UpsertSignal(ctx, half); err != nil {
		return Result{}, fmt.Errorf("upsert signal: %w", err)
	}

	merged := half
	stored, err := s.signals.GetSignal(ctx, userID, day)
	switch {
	case err != nil:
		s.logger.Printf("reading merged signal failed (user=%s date=%s): %v", userID, day.Format("2006-01-02"), err)
	case stored != nil:
		merged = *stored
	}
	observability.RecordSignalIngested(merged.UpdatedAt)

	result := Result{Signal: merged}
	if s.generator == nil {
		return result, nil
	}
	plan, err := s.generator.GeneratePlan(ctx, planner.PlanRequest{UserID: userID, AsOf: day})
	if err != nil {
		s.logger.Printf("plan regeneration failed (user=%s date=%s): %v", userID, day.Format("2006-01-02"), err)
		return result, nil
	}
	result.Plan = &plan
	return result, nil
}

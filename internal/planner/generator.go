package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/observability"
)

// ErrInvalidPlanRequest is returned when a plan request lacks a user.
var ErrInvalidPlanRequest = errors.New("invalid plan request")

// SessionHistory is the read side of logged sessions used for plan history.
type SessionHistory interface {
	History(ctx context.Context, userID string, since time.Time, limit int) ([]domain.LoggedSession, error)
}

// SignalSource reads merged daily signals.
type SignalSource interface {
	SignalsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.RecoverySignal, error)
}

// PlanCache stores the latest generated plan per (user, date). Last write wins.
type PlanCache interface {
	SavePlan(ctx context.Context, plan Plan) error
	LatestPlan(ctx context.Context, userID string, date time.Time) (*Plan, error)
}

// SignalSummary is the part of a day's signal shown alongside the plan.
type SignalSummary struct {
	Date        time.Time `json:"date"`
	RecoveryPct *float64  `json:"recovery_pct,omitempty"`
	Soreness    *int      `json:"soreness,omitempty"`
	PainFlags   []string  `json:"pain_flags,omitempty"`
}

// PlanDay is the ranked recommendation for one calendar day.
type PlanDay struct {
	Date        time.Time      `json:"date"`
	Signal      *SignalSummary `json:"signal,omitempty"`
	Recommended *Verdict       `json:"recommended,omitempty"`
	Ranked      []Verdict      `json:"ranked"`
	Rejected    []Verdict      `json:"rejected"`
	Exclusions  []string       `json:"exclusions"`
}

// Plan is a multi-day recommendation. It is derived data and can always be regenerated.
type Plan struct {
	UserID      string           `json:"user_id"`
	Date        time.Time        `json:"date"`
	AsOf        time.Time        `json:"as_of"`
	Equipment   EquipmentProfile `json:"equipment"`
	HistorySize int              `json:"history_size"`
	Days        []PlanDay        `json:"days"`
	Hash        string           `json:"hash"`
}

// PlanRequest describes what to plan.
type PlanRequest struct {
	UserID    string
	AsOf      time.Time
	Horizon   int
	Equipment EquipmentProfile
}

// GeneratorOption configures optional behaviour for the Generator.
type GeneratorOption func(*Generator)

// WithPlanCache stores every generated plan in cache.
func WithPlanCache(cache PlanCache) GeneratorOption {
	return func(g *Generator) {
		g.cache = cache
	}
}

// WithCatalogue replaces the default session-type catalogue.
func WithCatalogue(catalogue []SessionType) GeneratorOption {
	return func(g *Generator) {
		g.catalogue = catalogue
	}
}

// WithStoreTimeout bounds each store read made while building history.
func WithStoreTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.storeTimeout = d
	}
}

// WithGeneratorLogger overrides the generator logger.
func WithGeneratorLogger(logger *log.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// Generator builds plans from a read-only history snapshot. It never mutates history;
// the only write is the optional plan cache.
type Generator struct {
	workouts     domain.WorkoutStore
	sessions     SessionHistory
	signals      SignalSource
	engine       *Engine
	catalogue    []SessionType
	cache        PlanCache
	storeTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(workouts domain.WorkoutStore, sessions SessionHistory, signals SignalSource, engine *Engine, opts ...GeneratorOption) *Generator {
	g := &Generator{
		workouts:     workouts,
		sessions:     sessions,
		signals:      signals,
		engine:       engine,
		catalogue:    DefaultCatalogue(),
		storeTimeout: 3 * time.Second,
		logger:       log.New(log.Writer(), "[planner] ", log.LstdFlags|log.Lshortfile),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Catalogue returns the session types the generator plans from.
func (g *Generator) Catalogue() []SessionType {
	out := make([]SessionType, len(g.catalogue))
	copy(out, g.catalogue)
	return out
}

// GeneratePlan builds the plan for req. Store failures degrade to empty history or no
// signal; identical inputs always produce an identical plan.
func (g *Generator) GeneratePlan(ctx context.Context, req PlanRequest) (Plan, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Plan{}, fmt.Errorf("%w: user_id is required", ErrInvalidPlanRequest)
	}
	started := time.Now()
	defer func() { observability.ObservePlanDuration(time.Since(started)) }()

	w := g.engine.Weights()
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = g.now()
	}
	asOf = asOf.UTC()
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = w.HorizonDays
	}
	if w.MaxHorizonDays > 0 && horizon > w.MaxHorizonDays {
		horizon = w.MaxHorizonDays
	}
	equipment := req.Equipment
	if equipment == "" {
		equipment = ProfileHomeFull
	}
	today := domain.DateOf(asOf)

	history := g.snapshot(ctx, req.UserID, asOf, w)
	signals := g.validSignals(ctx, req.UserID, today.AddDate(0, 0, -w.WindowDays), today.AddDate(0, 0, horizon-1))

	plan := Plan{
		UserID:      req.UserID,
		Date:        today,
		AsOf:        asOf,
		Equipment:   equipment,
		HistorySize: history.Len(),
		Days:        make([]PlanDay, 0, horizon),
	}

	for i := 0; i < horizon; i++ {
		date := today.AddDate(0, 0, i)
		at := date.Add(12 * time.Hour)
		if i == 0 {
			at = asOf
		}
		signal := signalFor(signals, date)
		verdicts := g.engine.Evaluate(g.catalogue, history, Day{Date: date, At: at, Signal: signal, Equipment: equipment})
		day := buildDay(date, signal, verdicts)
		plan.Days = append(plan.Days, day)

		if day.Recommended != nil {
			t := day.Recommended.Type
			history = history.With(HistoryEntry{
				WorkoutID:        "projected:" + date.Format("2006-01-02"),
				TypeID:           t.ID,
				Start:            at,
				DurationMin:      t.DurationMin,
				HighIntensityMin: t.ExpectedZ4Min,
				Strain:           t.ExpectedStrain,
				HighIntensity:    t.HighIntensity,
				LegHeavy:         t.LegHeavy,
				Projected:        true,
			})
		}
	}

	plan.Hash = hashDays(plan.Days)

	if g.cache != nil {
		if err := g.cache.SavePlan(ctx, plan); err != nil {
			g.logger.Printf("plan cache write failed (user=%s date=%s): %v", plan.UserID, plan.Date.Format("2006-01-02"), err)
		}
	}
	return plan, nil
}

// snapshot builds the trailing-window history. Workout records are the load source;
// confirmed sessions contribute exertion and an activity hint for classification.
func (g *Generator) snapshot(ctx context.Context, userID string, asOf time.Time, w Weights) History {
	since := asOf.Add(-time.Duration(w.WindowDays+1) * 24 * time.Hour)

	var sessions []domain.LoggedSession
	if g.sessions != nil {
		readCtx, cancel := g.readContext(ctx)
		var err error
		sessions, err = g.sessions.History(readCtx, userID, since.Add(-24*time.Hour), 0)
		cancel()
		if err != nil {
			g.logger.Printf("session history degraded to empty (user=%s): %v", userID, err)
			observability.RecordStoreDegraded("sessions")
			sessions = nil
		}
	}
	confirmed := make(map[string]domain.LoggedSession, len(sessions))
	for _, s := range sessions {
		if s.Status != domain.StatusConfirmed || s.WorkoutID == nil {
			continue
		}
		confirmed[*s.WorkoutID] = s
	}

	readCtx, cancel := g.readContext(ctx)
	records, err := g.workouts.RecentWorkouts(readCtx, userID, w.WindowDays+1, asOf)
	cancel()
	if err != nil {
		g.logger.Printf("workout history degraded to empty (user=%s): %v", userID, err)
		observability.RecordStoreDegraded("workouts")
		records = nil
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		if rec.UserID != "" && rec.UserID != userID {
			continue
		}
		if rec.Start.After(asOf) || rec.Start.Before(since) {
			continue
		}
		session, attributed := confirmed[rec.ID]
		typeID := Classify(rec, session.ActivityHint, w.HighIntensitySessionMinutes)
		t, _ := typeByID(g.catalogue, typeID)

		entry := HistoryEntry{
			WorkoutID:        rec.ID,
			TypeID:           typeID,
			Start:            rec.Start,
			DurationMin:      rec.DurationMinutes(),
			HighIntensityMin: rec.Zones.HighIntensity(),
			Strain:           rec.Strain,
			HighIntensity:    t.HighIntensity || rec.Zones.HighIntensity() >= w.HighIntensitySessionMinutes,
			LegHeavy:         t.LegHeavy,
		}
		if attributed {
			entry.SessionID = session.ID
			if session.Exertion != nil {
				entry.Exertion = *session.Exertion
				if entry.Strain == 0 {
					entry.Strain = float64(entry.Exertion*entry.DurationMin) * w.ExertionLoadPerMinute
				}
			}
		}
		entries = append(entries, entry)
	}
	return NewHistory(entries)
}

func (g *Generator) validSignals(ctx context.Context, userID string, from, to time.Time) []domain.RecoverySignal {
	if g.signals == nil {
		return nil
	}
	readCtx, cancel := g.readContext(ctx)
	defer cancel()
	signals, err := g.signals.SignalsBetween(readCtx, userID, from, to)
	if err != nil {
		g.logger.Printf("signal read degraded to none (user=%s): %v", userID, err)
		observability.RecordStoreDegraded("signals")
		return nil
	}
	valid := make([]domain.RecoverySignal, 0, len(signals))
	for _, s := range signals {
		if err := s.Validate(); err != nil {
			g.logger.Printf("skipping invalid signal (user=%s date=%s): %v", userID, s.Date.Format("2006-01-02"), err)
			continue
		}
		valid = append(valid, s)
	}
	return valid
}

func (g *Generator) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.storeTimeout)
}

// signalFor returns the latest valid signal dated on or before date.
func signalFor(signals []domain.RecoverySignal, date time.Time) *domain.RecoverySignal {
	var best *domain.RecoverySignal
	for i := range signals {
		s := &signals[i]
		d := domain.DateOf(s.Date)
		if d.After(date) {
			continue
		}
		if best == nil || d.After(domain.DateOf(best.Date)) {
			best = s
		}
	}
	return best
}

func buildDay(date time.Time, signal *domain.RecoverySignal, verdicts []Verdict) PlanDay {
	day := PlanDay{
		Date:       date,
		Ranked:     make([]Verdict, 0, len(verdicts)),
		Rejected:   make([]Verdict, 0),
		Exclusions: make([]string, 0),
	}
	if signal != nil {
		summary := &SignalSummary{Date: domain.DateOf(signal.Date)}
		if signal.HasRecovery {
			pct := signal.RecoveryPct
			summary.RecoveryPct = &pct
		}
		if signal.HasSoreness {
			soreness := signal.Soreness
			summary.Soreness = &soreness
			summary.PainFlags = signal.PainFlags
		}
		day.Signal = summary
	}

	seen := make(map[string]struct{})
	for _, v := range verdicts {
		if v.Accepted {
			day.Ranked = append(day.Ranked, v)
			continue
		}
		day.Rejected = append(day.Rejected, v)
		observability.RecordPlanRejection(v.Constraint)
		if _, ok := seen[v.Constraint]; !ok {
			seen[v.Constraint] = struct{}{}
			day.Exclusions = append(day.Exclusions, v.Constraint)
		}
	}
	if len(day.Ranked) > 0 {
		best := day.Ranked[0]
		day.Recommended = &best
	}
	return day
}

func hashDays(days []PlanDay) string {
	raw, err := json.Marshal(days)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

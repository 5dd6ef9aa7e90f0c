package recovery

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/persistence/memory"
	"example.com/coach/internal/planner"
)

var morning = time.Date(2025, time.May, 12, 6, 15, 0, 0, time.UTC)

func newTestService(t *testing.T, gen PlanGenerator) (*Service, *memory.Store, *bytes.Buffer) {
	t.Helper()
	store := memory.NewStore()
	var buf bytes.Buffer
	svc := NewService(store, gen, WithLogger(log.New(&buf, "", 0)), WithClock(func() time.Time { return morning }))
	return svc, store, &buf
}

func newGenerator(store *memory.Store) *planner.Generator {
	return planner.NewGenerator(store, store, store, planner.NewEngine(planner.DefaultWeights()),
		planner.WithPlanCache(store), planner.WithGeneratorLogger(log.New(&bytes.Buffer{}, "", 0)))
}

func TestIngestMergesBothHalves(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, newGenerator(store), WithLogger(log.New(&bytes.Buffer{}, "", 0)), WithClock(func() time.Time { return morning }))
	ctx := context.Background()

	_, err := svc.IngestSoreness(ctx, domain.SorenessInput{UserID: "u1", Date: morning, Soreness: 4, PainFlags: []string{"Hamstring"}})
	require.NoError(t, err)
	res, err := svc.IngestRecovery(ctx, domain.RecoveryInput{UserID: "u1", Date: morning, RecoveryPct: 42, RestingHR: 55, HRV: 61})
	require.NoError(t, err)

	require.True(t, res.Signal.HasRecovery)
	require.True(t, res.Signal.HasSoreness)
	require.Equal(t, 4, res.Signal.Soreness)
	require.Equal(t, []string{"hamstring"}, res.Signal.PainFlags)
	require.NotNil(t, res.Plan)
	require.Equal(t, domain.DateOf(morning), res.Plan.Date)

	cached, err := store.LatestPlan(ctx, "u1", morning)
	require.NoError(t, err)
	require.Equal(t, res.Plan.Hash, cached.Hash)
}

func TestInvalidInputKeepsPriorSignal(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestRecovery(ctx, domain.RecoveryInput{UserID: "u1", Date: morning, RecoveryPct: 80})
	require.NoError(t, err)

	_, err = svc.IngestRecovery(ctx, domain.RecoveryInput{UserID: "u1", Date: morning, RecoveryPct: 180})
	require.ErrorIs(t, err, domain.ErrInvalidSignal)
	_, err = svc.IngestSoreness(ctx, domain.SorenessInput{UserID: "u1", Date: morning, Soreness: 9})
	require.ErrorIs(t, err, domain.ErrInvalidSignal)

	stored, err := store.GetSignal(ctx, "u1", morning)
	require.NoError(t, err)
	require.InDelta(t, 80.0, stored.RecoveryPct, 1e-9)
	require.False(t, stored.HasSoreness)
}

func TestDuplicateDeliveryRegeneratesSamePlan(t *testing.T) {
	store := memory.NewStore()
	store.AddWorkouts(domain.WorkoutRecord{ID: "w1", UserID: "u1", Start: morning.Add(-30 * time.Hour), End: morning.Add(-29 * time.Hour), Strain: 12})
	svc := NewService(store, newGenerator(store), WithLogger(log.New(&bytes.Buffer{}, "", 0)), WithClock(func() time.Time { return morning }))
	in := domain.RecoveryInput{UserID: "u1", Date: morning, RecoveryPct: 58, RestingHR: 51, HRV: 74}

	first, err := svc.IngestRecovery(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.IngestRecovery(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, first.Signal, second.Signal)
	require.Equal(t, first.Plan.Hash, second.Plan.Hash)
	require.Equal(t, first.Plan.Days, second.Plan.Days)
}

type failingGenerator struct{}

func (failingGenerator) GeneratePlan(context.Context, planner.PlanRequest) (planner.Plan, error) {
	return planner.Plan{}, errors.New("planner offline")
}

func TestGenerationFailureStillStoresSignal(t *testing.T) {
	svc, _, buf := newTestService(t, failingGenerator{})
	res, err := svc.IngestSoreness(context.Background(), domain.SorenessInput{UserID: "u1", Date: morning, Soreness: 1})
	require.NoError(t, err)
	require.Nil(t, res.Plan)
	require.Contains(t, buf.String(), "plan regeneration failed")

	stored, err := svc.Signal(context.Background(), "u1", morning)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

type pauseKey struct{}

// gatedSignals parks the first repository call made with a pauseKey context until
// release is closed.
type gatedSignals struct {
	*memory.Store
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (g *gatedSignals) wait(ctx context.Context) {
	if ctx.Value(pauseKey{}) == nil {
		return
	}
	g.once.Do(func() {
		close(g.paused)
		<-g.release
	})
}

func (g *gatedSignals) GetSignal(ctx context.Context, userID string, date time.Time) (*domain.RecoverySignal, error) {
	g.wait(ctx)
	return g.Store.GetSignal(ctx, userID, date)
}

func (g *gatedSignals) UpsertSignal(ctx context.Context, signal domain.RecoverySignal) error {
	g.wait(ctx)
	return g.Store.UpsertSignal(ctx, signal)
}

func TestRedeliveredRecoveryKeepsConcurrentSorenessAnswer(t *testing.T) {
	repo := &gatedSignals{Store: memory.NewStore(), paused: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, nil, WithLogger(log.New(&bytes.Buffer{}, "", 0)), WithClock(func() time.Time { return morning }))
	ctx := context.Background()
	recoveryIn := domain.RecoveryInput{UserID: "u1", Date: morning, RecoveryPct: 70, RestingHR: 52, HRV: 68}

	_, err := svc.IngestSoreness(ctx, domain.SorenessInput{UserID: "u1", Date: morning, Soreness: 1})
	require.NoError(t, err)
	_, err = svc.IngestRecovery(ctx, recoveryIn)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.IngestRecovery(context.WithValue(ctx, pauseKey{}, true), recoveryIn)
		done <- err
	}()
	<-repo.paused

	_, err = svc.IngestSoreness(ctx, domain.SorenessInput{UserID: "u1", Date: morning, Soreness: 4, PainFlags: []string{"Knee"}})
	require.NoError(t, err)
	close(repo.release)
	require.NoError(t, <-done)

	stored, err := repo.Store.GetSignal(ctx, "u1", morning)
	require.NoError(t, err)
	require.Equal(t, 4, stored.Soreness)
	require.Equal(t, []string{"knee"}, stored.PainFlags)
	require.InDelta(t, 70.0, stored.RecoveryPct, 1e-9)
	require.True(t, stored.HasRecovery)
	require.True(t, stored.HasSoreness)
}

func TestIngestUpsertsOnlyItsOwnHalf(t *testing.T) {
	repo := &recordingSignals{Store: memory.NewStore()}
	svc := NewService(repo, nil, WithLogger(log.New(&bytes.Buffer{}, "", 0)), WithClock(func() time.Time { return morning }))
	ctx := context.Background()

	_, err := svc.IngestSoreness(ctx, domain.SorenessInput{UserID: "u1", Date: morning, Soreness: 2, PainFlags: []string{"calf"}})
	require.NoError(t, err)
	res, err := svc.IngestRecovery(ctx, domain.RecoveryInput{UserID: "u1", Date: morning, RecoveryPct: 64})
	require.NoError(t, err)

	require.Len(t, repo.writes, 2)
	require.True(t, repo.writes[0].HasSoreness)
	require.False(t, repo.writes[0].HasRecovery)
	require.True(t, repo.writes[1].HasRecovery)
	require.False(t, repo.writes[1].HasSoreness)
	require.Equal(t, []string{"calf"}, res.Signal.PainFlags, "result reflects the merged row")
}

type recordingSignals struct {
	*memory.Store
	writes []domain.RecoverySignal
}

func (r *recordingSignals) UpsertSignal(ctx context.Context, signal domain.RecoverySignal) error {
	r.writes = append(r.writes, signal)
	return r.Store.UpsertSignal(ctx, signal)
}

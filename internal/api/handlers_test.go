package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coach/internal/attribution"
	"example.com/coach/internal/auth"
	"example.com/coach/internal/domain"
	"example.com/coach/internal/matching"
	"example.com/coach/internal/persistence/memory"
	"example.com/coach/internal/planner"
	"example.com/coach/internal/recovery"
)

var (
	authConfig = auth.Config{Secret: "handler-secret", Issuer: "coach.test"}
	workoutDay = time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
)

type testServer struct {
	t     *testing.T
	store *memory.Store
	http  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	quiet := log.New(io.Discard, "", 0)
	clock := func() time.Time { return workoutDay.Add(15 * time.Hour) }

	cfg := matching.DefaultConfig()
	sessions := attribution.NewService(store, matching.NewMatcher(store, cfg, matching.WithLogger(quiet)), matching.NewResolver(cfg),
		attribution.WithLogger(quiet), attribution.WithClock(clock), attribution.WithContentRepository(store))
	generator := planner.NewGenerator(store, store, store, planner.NewEngine(planner.DefaultWeights()),
		planner.WithPlanCache(store), planner.WithGeneratorLogger(quiet))
	signals := recovery.NewService(store, generator, recovery.WithLogger(quiet), recovery.WithClock(clock))

	mux := http.NewServeMux()
	NewHandler(sessions, signals, generator).RegisterRoutes(mux)
	return &testServer{t: t, store: store, http: auth.NewMiddleware(authConfig).Wrap(mux)}
}

func (s *testServer) token(scopes ...string) string {
	s.t.Helper()
	token, err := auth.Issue(authConfig, "user-1", scopes, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.http.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.store.AddWorkouts(domain.WorkoutRecord{
		ID: "w1", UserID: "user-1", Start: workoutDay.Add(14 * time.Hour), End: workoutDay.Add(15 * time.Hour),
		Source: domain.SourceWearable, ActivityType: "running",
	})
	token := srv.token(auth.AllScopes...)

	rr := srv.do(http.MethodPost, "/v1/sessions", token, CreateSessionRequest{
		RawReference: "https://youtu.be/abc123",
		ContentID:    "abc123",
		LoggedAt:     workoutDay.Add(14*time.Hour + 2*time.Minute),
	}, "Idempotency-Key", "log-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[AttributionResponse](t, rr)
	require.Equal(t, string(matching.OutcomeAutoAttribute), created.Outcome)
	require.Equal(t, string(domain.StatusMatched), created.Session.Status)
	require.Equal(t, "w1", created.Session.WorkoutID)
	require.Equal(t, attribution.PromptExertion, created.Prompt.Kind)

	rr = srv.do(http.MethodPost, "/v1/sessions", token, CreateSessionRequest{
		RawReference: "https://youtu.be/abc123",
		LoggedAt:     workoutDay.Add(14*time.Hour + 2*time.Minute),
	}, "Idempotency-Key", "log-1")
	require.Equal(t, http.StatusOK, rr.Code)
	replay := decode[AttributionResponse](t, rr)
	require.True(t, replay.Replay)
	require.Equal(t, created.Session.SessionID, replay.Session.SessionID)

	id := created.Session.SessionID
	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/rate", token, RateRequest{Exertion: 9})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/rate", token, RateRequest{Exertion: 4})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rated := decode[AttributionResponse](t, rr)
	require.Equal(t, string(domain.StatusConfirmed), rated.Session.Status)
	require.Equal(t, 4, *rated.Session.Exertion)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/rate", token, RateRequest{Exertion: 3})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "invalid_transition", decode[map[string]string](t, rr)["type"])

	rr = srv.do(http.MethodGet, "/v1/sessions/latest", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, id, decode[SessionView](t, rr).SessionID)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/undo", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, string(domain.StatusUndone), decode[AttributionResponse](t, rr).Session.Status)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/retry", token, nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = srv.do(http.MethodGet, "/v1/sessions/latest", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(http.MethodGet, "/v1/sessions/"+id, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, string(domain.StatusUndone), decode[SessionView](t, rr).Status)
}

func TestManualPickOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.store.AddWorkouts(
		domain.WorkoutRecord{ID: "early", UserID: "user-1", Start: workoutDay.Add(13*time.Hour + 55*time.Minute), End: workoutDay.Add(13*time.Hour + 59*time.Minute), Source: domain.SourceWearable},
		domain.WorkoutRecord{ID: "late", UserID: "user-1", Start: workoutDay.Add(14*time.Hour + 5*time.Minute), End: workoutDay.Add(14*time.Hour + 35*time.Minute), Source: domain.SourceWearable},
	)
	token := srv.token(auth.ScopeSessionsWrite)

	rr := srv.do(http.MethodPost, "/v1/sessions", token, CreateSessionRequest{ContentID: "abc", LoggedAt: workoutDay.Add(14 * time.Hour)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[AttributionResponse](t, rr)
	require.Equal(t, string(matching.OutcomeManualPick), created.Outcome)
	require.Len(t, created.Prompt.Options, 2)
	id := created.Session.SessionID

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/pick", token, PickRequest{WorkoutID: "elsewhere"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/pick", token, PickRequest{})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/pick", token, PickRequest{WorkoutID: "late"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	picked := decode[AttributionResponse](t, rr)
	require.Equal(t, string(domain.StatusMatched), picked.Session.Status)
	require.Equal(t, "late", picked.Session.WorkoutID)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/clarify", token, ClarifyRequest{Environment: "outdoors"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions/missing/pick", token, PickRequest{WorkoutID: "late"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/explode", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListSessionsPagesWithCursor(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(auth.ScopeSessionsWrite, auth.ScopeSessionsRead)

	for i := 0; i < 3; i++ {
		rr := srv.do(http.MethodPost, "/v1/sessions", token, CreateSessionRequest{
			ContentID: "c", LoggedAt: workoutDay.Add(time.Duration(8+i) * time.Hour),
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := srv.do(http.MethodGet, "/v1/sessions?limit=2", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode[ListSessionsResponse](t, rr)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	require.True(t, first.Items[0].LoggedAt.After(first.Items[1].LoggedAt))

	rr = srv.do(http.MethodGet, "/v1/sessions?limit=2&cursor="+first.NextCursor, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[ListSessionsResponse](t, rr)
	require.Len(t, second.Items, 1)
	require.Empty(t, second.NextCursor)

	rr = srv.do(http.MethodGet, "/v1/sessions?cursor=bm9waXBl", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodGet, "/v1/sessions/history?since="+workoutDay.Add(9*time.Hour).Format(time.RFC3339), token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[ListSessionsResponse](t, rr).Items, 2)
}

func TestAuthAndScopes(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(http.MethodGet, "/v1/plans", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions", srv.token(auth.ScopePlansRead), CreateSessionRequest{ContentID: "c", LoggedAt: workoutDay})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = srv.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(http.MethodDelete, "/v1/sessions", srv.token(auth.AllScopes...), nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSignalsRegeneratePlan(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(auth.ScopeSignalsWrite, auth.ScopePlansRead)

	rr := srv.do(http.MethodPost, "/v1/signals/soreness", token, SorenessRequest{Date: "2025-06-10", Soreness: 7})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/signals/soreness", token, SorenessRequest{Date: "June 10", Soreness: 2})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/signals/soreness", token, SorenessRequest{Date: "2025-06-10", Soreness: 2, PainFlags: []string{"Knee"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = srv.do(http.MethodPost, "/v1/signals/recovery", token, RecoveryRequest{Date: "2025-06-10", RecoveryPct: 72, RestingHR: 52, HRV: 80})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[SignalResponse](t, rr)
	require.Equal(t, 2, *resp.Signal.Soreness)
	require.InDelta(t, 72.0, *resp.Signal.RecoveryPct, 1e-9)
	require.Equal(t, []string{"knee"}, resp.Signal.PainFlags)
	require.NotNil(t, resp.Plan)
	for _, d := range resp.Plan.Days {
		if d.Recommended != nil {
			require.False(t, d.Recommended.Type.HighIntensity, "pain flags rule out high intensity")
		}
	}

	rr = srv.do(http.MethodGet, "/v1/signals?date=2025-06-10", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2025-06-10", decode[SignalView](t, rr).Date)

	rr = srv.do(http.MethodGet, "/v1/signals?date=2025-06-11", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetPlanValidatesQuery(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(auth.ScopePlansRead)

	rr := srv.do(http.MethodGet, "/v1/plans?equipment=gym", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(http.MethodGet, "/v1/plans?horizon=zero", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	asOf := workoutDay.Add(7 * time.Hour).Format(time.RFC3339)
	rr = srv.do(http.MethodGet, "/v1/plans?horizon=2&equipment=travel_none&as_of="+asOf, token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	plan := decode[planner.Plan](t, rr)
	require.Equal(t, "user-1", plan.UserID)
	require.Equal(t, planner.ProfileTravelNone, plan.Equipment)
	require.Len(t, plan.Days, 2)
	require.NotEmpty(t, plan.Hash)

	again := srv.do(http.MethodGet, "/v1/plans?horizon=2&equipment=travel_none&as_of="+asOf, token, nil)
	require.Equal(t, plan.Hash, decode[planner.Plan](t, again).Hash)
	require.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json"))
}

func TestContentSummaryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.store.AddWorkouts(domain.WorkoutRecord{
		ID: "w1", UserID: "user-1", Start: workoutDay.Add(14 * time.Hour), End: workoutDay.Add(15 * time.Hour),
		Source: domain.SourceWearable, Strain: 11,
	})
	token := srv.token(auth.AllScopes...)

	rr := srv.do(http.MethodPost, "/v1/sessions", token, CreateSessionRequest{ContentID: "abc123", ActivityHint: "kettlebell", LoggedAt: workoutDay.Add(14*time.Hour + 2*time.Minute)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := decode[AttributionResponse](t, rr).Session.SessionID
	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/rate", token, RateRequest{Exertion: 4})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = srv.do(http.MethodGet, "/v1/content/abc123", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decode[ContentView](t, rr)
	require.Equal(t, "abc123", view.ContentID)
	require.Equal(t, 1, view.UseCount)
	require.Equal(t, id, view.LastSession.SessionID)
	require.InDelta(t, 11.0, *view.Strain.Mean, 1e-9)
	require.InDelta(t, 4.0, *view.Exertion.Mean, 1e-9)
	require.Len(t, view.ByHint, 1)
	require.Equal(t, "kettlebell", view.ByHint[0].ActivityHint)

	rr = srv.do(http.MethodGet, "/v1/content/abc123", srv.token(auth.ScopePlansRead), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = srv.do(http.MethodGet, "/v1/content/", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = srv.do(http.MethodGet, "/v1/content/unknown", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(http.MethodPost, "/v1/sessions/"+id+"/undo", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = srv.do(http.MethodGet, "/v1/content/abc123", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code, "undone sessions are not remembered")
}

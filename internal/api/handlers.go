// Package api exposes HTTP handlers for the coach service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/coach/internal/attribution"
	"example.com/coach/internal/auth"
	"example.com/coach/internal/domain"
	"example.com/coach/internal/planner"
	"example.com/coach/internal/recovery"
)

// SessionService is the attribution surface used by the handlers.
type SessionService interface {
	LogSession(ctx context.Context, in domain.NewSessionInput) (attribution.Result, bool, error)
	Pick(ctx context.Context, userID, sessionID, workoutID string) (attribution.Result, error)
	Clarify(ctx context.Context, userID, sessionID string, answer domain.ClarificationAnswer) (attribution.Result, error)
	Rate(ctx context.Context, userID, sessionID string, rating int) (attribution.Result, error)
	Retry(ctx context.Context, userID, sessionID string) (attribution.Result, error)
	Undo(ctx context.Context, userID, sessionID string) (attribution.Result, error)
	Get(ctx context.Context, userID, sessionID string) (domain.LoggedSession, error)
	LatestActive(ctx context.Context, userID string) (domain.LoggedSession, error)
	History(ctx context.Context, userID string, since time.Time, limit int) ([]domain.LoggedSession, error)
	ListSessions(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LoggedSession, *domain.Cursor, error)
	ContentSummary(ctx context.Context, userID, contentID string) (domain.ContentSummary, error)
}

// SignalService ingests the two halves of a day's readiness signal.
type SignalService interface {
	IngestRecovery(ctx context.Context, in domain.RecoveryInput) (recovery.Result, error)
	IngestSoreness(ctx context.Context, in domain.SorenessInput) (recovery.Result, error)
	Signal(ctx context.Context, userID string, date time.Time) (*domain.RecoverySignal, error)
}

// PlanService generates recommendation plans.
type PlanService interface {
	GeneratePlan(ctx context.Context, req planner.PlanRequest) (planner.Plan, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	sessions SessionService
	signals  SignalService
	plans    PlanService
}

// NewHandler builds a Handler.
func NewHandler(sessions SessionService, signals SignalService, plans PlanService) *Handler {
	return &Handler{sessions: sessions, signals: signals, plans: plans}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessionCollection)
	mux.HandleFunc("/v1/sessions/", h.sessionByID)
	mux.HandleFunc("/v1/content/", h.getContent)
	mux.HandleFunc("/v1/signals", h.getSignal)
	mux.HandleFunc("/v1/signals/recovery", h.postRecovery)
	mux.HandleFunc("/v1/signals/soreness", h.postSoreness)
	mux.HandleFunc("/v1/plans", h.getPlan)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the caller's user id when the token carries one of scopes.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims.Subject, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return "", false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing body")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var transition *domain.InvalidTransitionError
	switch {
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", transition.Explanation())
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, domain.ErrContentNotFound):
		writeError(w, http.StatusNotFound, "not_found", "content not found")
	case errors.Is(err, domain.ErrInvalidSession),
		errors.Is(err, domain.ErrInvalidExertion),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidSignal),
		errors.Is(err, domain.ErrWorkoutNotCandidate),
		errors.Is(err, planner.ErrInvalidPlanRequest):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrWorkoutClaimed), errors.Is(err, domain.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(raw))
}

const dateLayout = "2006-01-02"

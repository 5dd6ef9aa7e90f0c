package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/coach/internal/attribution"
	"example.com/coach/internal/auth"
	"example.com/coach/internal/domain"
	"example.com/coach/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (h *Handler) sessionCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSession(w, r)
	case http.MethodGet:
		h.listSessions(w, r)
	default:
		methodNotAllowed(w)
	}
}

// sessionByID routes /v1/sessions/{id}[/{action}] plus the latest and history views.
func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions/"), "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}
	id, action, _ := strings.Cut(rest, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		switch id {
		case "latest":
			h.latestSession(w, r)
		case "history":
			h.sessionHistory(w, r)
		default:
			h.getSession(w, r, id)
		}
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	userID, ok := authorize(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	var (
		res attribution.Result
		err error
	)
	ctx := r.Context()
	switch action {
	case "pick":
		var req PickRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.WorkoutID) == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "workout_id is required")
			return
		}
		res, err = h.sessions.Pick(ctx, userID, id, req.WorkoutID)
	case "clarify":
		var req ClarifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err = h.sessions.Clarify(ctx, userID, id, domain.ClarificationAnswer{
			Environment: strings.ToLower(strings.TrimSpace(req.Environment)),
			DurationMin: req.DurationMin,
		})
	case "rate":
		var req RateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err = h.sessions.Rate(ctx, userID, id, req.Exertion)
	case "retry":
		res, err = h.sessions.Retry(ctx, userID, id)
	case "undo":
		res, err = h.sessions.Undo(ctx, userID, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown action "+action)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttributionResponse(res, false))
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, replay, err := h.sessions.LogSession(r.Context(), domain.NewSessionInput{
		UserID:         userID,
		RawReference:   req.RawReference,
		ContentID:      req.ContentID,
		ActivityHint:   req.ActivityHint,
		LoggedAt:       req.LoggedAt,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, toAttributionResponse(res, replay))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := authorize(w, r, auth.ScopeSessionsRead, auth.ScopeSessionsWrite)
	if !ok {
		return
	}
	session, err := h.sessions.Get(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(session))
}

func (h *Handler) latestSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeSessionsRead, auth.ScopeSessionsWrite)
	if !ok {
		return
	}
	session, err := h.sessions.LatestActive(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(session))
}

func (h *Handler) sessionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeSessionsRead, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -7)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "since must be RFC3339")
			return
		}
		since = parsed
	}

	sessions, err := h.sessions.History(r.Context(), userID, since, pageSize(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Items: toSessionViews(sessions)})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeSessionsRead, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	sessions, next, err := h.sessions.ListSessions(r.Context(), userID, cursor, pageSize(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{
		Items:      toSessionViews(sessions),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func pageSize(r *http.Request) int {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}
	return limit
}

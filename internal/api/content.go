package api

import (
	"net/http"
	"net/url"
	"strings"

	"example.com/coach/internal/auth"
)

// getContent serves GET /v1/content/{id}: the last use of a content id plus strain and
// exertion averages.
func (h *Handler) getContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID, ok := authorize(w, r, auth.ScopeSessionsRead)
	if !ok {
		return
	}

	raw := strings.Trim(strings.TrimPrefix(r.URL.EscapedPath(), "/v1/content/"), "/")
	contentID, err := url.PathUnescape(raw)
	if err != nil || contentID == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing or malformed content id")
		return
	}

	summary, err := h.sessions.ContentSummary(r.Context(), userID, contentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentView(summary))
}

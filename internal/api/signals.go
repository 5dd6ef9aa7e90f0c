package api

import (
	"net/http"

	"example.com/coach/internal/auth"
	"example.com/coach/internal/domain"
	"example.com/coach/internal/recovery"
)

func (h *Handler) postRecovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	userID, ok := authorize(w, r, auth.ScopeSignalsWrite)
	if !ok {
		return
	}

	var req RecoveryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	res, err := h.signals.IngestRecovery(r.Context(), domain.RecoveryInput{
		UserID:      userID,
		Date:        date,
		RecoveryPct: req.RecoveryPct,
		RestingHR:   req.RestingHR,
		HRV:         req.HRV,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponse(res))
}

func (h *Handler) postSoreness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	userID, ok := authorize(w, r, auth.ScopeSignalsWrite)
	if !ok {
		return
	}

	var req SorenessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	res, err := h.signals.IngestSoreness(r.Context(), domain.SorenessInput{
		UserID:    userID,
		Date:      date,
		Soreness:  req.Soreness,
		PainFlags: req.PainFlags,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponse(res))
}

func (h *Handler) getSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID, ok := authorize(w, r, auth.ScopePlansRead, auth.ScopeSignalsWrite)
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	signal, err := h.signals.Signal(r.Context(), userID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if signal == nil {
		writeError(w, http.StatusNotFound, "not_found", "no signal for "+date.Format(dateLayout))
		return
	}
	writeJSON(w, http.StatusOK, toSignalView(*signal))
}

func toSignalResponse(res recovery.Result) SignalResponse {
	return SignalResponse{Signal: toSignalView(res.Signal), Plan: res.Plan}
}

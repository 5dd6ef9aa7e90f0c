package api

import (
	"net/http"
	"strconv"
	"time"

	"example.com/coach/internal/auth"
	"example.com/coach/internal/planner"
)

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID, ok := authorize(w, r, auth.ScopePlansRead)
	if !ok {
		return
	}

	query := r.URL.Query()
	req := planner.PlanRequest{UserID: userID}
	if raw := query.Get("horizon"); raw != "" {
		horizon, err := strconv.Atoi(raw)
		if err != nil || horizon <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "horizon must be a positive integer")
			return
		}
		req.Horizon = horizon
	}
	if raw := query.Get("equipment"); raw != "" {
		profile := planner.EquipmentProfile(raw)
		switch profile {
		case planner.ProfileHomeFull, planner.ProfileTravelBands, planner.ProfileTravelNone:
			req.Equipment = profile
		default:
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown equipment profile "+raw)
			return
		}
	}
	if raw := query.Get("as_of"); raw != "" {
		asOf, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "as_of must be RFC3339")
			return
		}
		req.AsOf = asOf
	}

	plan, err := h.plans.GeneratePlan(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

package handler

import (
	"context"
	"net/http"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/ports"
)

// --- Request DTO (HTTP boundary) ---

type reportMissingRequest struct {
	LastSeen     *geo.Coordinate `json:"last_seen_coordinate"`
	LastSeenAtMs int64           `json:"last_seen_at_ms"`
	Notes        string          `json:"notes"`
	UseLastKnown bool            `json:"use_last_known"`
}

// ----- Handler: POST /pets/{pet_id}/missing -----

func (handler *TrackerHTTPHandler) handleReportMissing(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	var req reportMissingRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.ReportMissing(ctxWithTimeout, ports.ReportMissingInput{
		OwnerID:      ownerID,
		PetID:        petID,
		LastSeen:     req.LastSeen,
		LastSeenAt:   req.LastSeenAtMs,
		Notes:        req.Notes,
		UseLastKnown: req.UseLastKnown,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: DELETE /pets/{pet_id}/missing -----

func (handler *TrackerHTTPHandler) handleClearMissing(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.ClearMissing(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

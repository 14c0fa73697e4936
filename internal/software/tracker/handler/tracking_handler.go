package handler

import (
	"context"
	"net/http"

	"pet-tracker/internal/domain/tracking"
)

type trackingOp func(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error)

// ----- Handlers: POST /pets/{pet_id}/tracking/{start,stop}, GET /pets/{pet_id}/tracking -----

func (handler *TrackerHTTPHandler) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	// Start polls the feed once before returning
	handler.runTrackingOp(w, r, handler.svc.StartTracking)
}

func (handler *TrackerHTTPHandler) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	handler.runTrackingOp(w, r, handler.svc.StopTracking)
}

func (handler *TrackerHTTPHandler) handleTrackingStatus(w http.ResponseWriter, r *http.Request) {
	handler.runTrackingOp(w, r, handler.svc.TrackingStatus)
}

func (handler *TrackerHTTPHandler) runTrackingOp(w http.ResponseWriter, r *http.Request, op trackingOp) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 3*serviceTimeout)
	defer cancel()

	snap, err := op(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, snap)
}

// ----- Handler: POST /pets/{pet_id}/tracking/refresh -----

func (handler *TrackerHTTPHandler) handleRefreshTracking(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 3*serviceTimeout)
	defer cancel()

	res, err := handler.svc.RefreshTracking(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	status := http.StatusOK
	if !res.Polled {
		status = http.StatusAccepted
	}
	handler.jsonResponse(ctxWithTimeout, w, status, res)
}

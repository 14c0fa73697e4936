package handler

import (
	"context"
	"net/http"
	"strings"
)

// ----- Handler: GET /pets/{pet_id}/history -----

func (handler *TrackerHTTPHandler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.ListHistory(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: DELETE /pets/{pet_id}/history -----

func (handler *TrackerHTTPHandler) handleDeleteAllHistory(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.DeleteAllHistory(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: DELETE /pets/{pet_id}/history/{entry_id} -----

func (handler *TrackerHTTPHandler) handleDeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	entryID := strings.TrimSpace(r.PathValue("entry_id"))
	if entryID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "entry_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	if err := handler.svc.DeleteHistoryEntry(ctxWithTimeout, ownerID, petID, entryID); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----- Handler: GET /pets/{pet_id}/history/viewport -----

func (handler *TrackerHTTPHandler) handleHistoryViewport(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.HistoryViewport(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

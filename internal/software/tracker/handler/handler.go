package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/domain/user"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/metrics"
	"pet-tracker/internal/general/websocket"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const serviceTimeout = 5 * time.Second

// TrackerHTTPHandler adapts HTTP requests to the TrackerService.
type TrackerHTTPHandler struct {
	svc       ports.TrackerService
	logger    *logger.Logger
	auth      *jwt.Manager
	websocket *websocket.WebSocket
	media     http.Handler
}

// NewTrackerHTTPHandler wires an HTTP handler around the TrackerService.
// media serves stored profile images; it may be nil.
func NewTrackerHTTPHandler(
	svc ports.TrackerService,
	logger *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.WebSocket,
	media http.Handler,
) *TrackerHTTPHandler {
	return &TrackerHTTPHandler{svc: svc, logger: logger, auth: auth, websocket: ws, media: media}
}

// RegisterRoutes mounts pet, tracking, history and missing-report endpoints on the provided mux.
func (handler *TrackerHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	owner := jwt.AuthMiddlewareFunc(handler.auth, user.RoleOwner)

	mux.HandleFunc("GET /pets", owner(handler.handleListPets))
	mux.HandleFunc("POST /pets", owner(handler.handleCreatePet))
	mux.HandleFunc("GET /pets/{pet_id}", owner(handler.handleGetPet))
	mux.HandleFunc("PATCH /pets/{pet_id}", owner(handler.handleUpdatePet))
	mux.HandleFunc("DELETE /pets/{pet_id}", owner(handler.handleDeletePet))
	mux.HandleFunc("PUT /pets/{pet_id}/photo", owner(handler.handleUploadPhoto))

	mux.HandleFunc("POST /pets/{pet_id}/tracking/start", owner(handler.handleStartTracking))
	mux.HandleFunc("POST /pets/{pet_id}/tracking/stop", owner(handler.handleStopTracking))
	mux.HandleFunc("POST /pets/{pet_id}/tracking/refresh", owner(handler.handleRefreshTracking))
	mux.HandleFunc("GET /pets/{pet_id}/tracking", owner(handler.handleTrackingStatus))

	mux.HandleFunc("GET /pets/{pet_id}/history", owner(handler.handleListHistory))
	mux.HandleFunc("DELETE /pets/{pet_id}/history", owner(handler.handleDeleteAllHistory))
	mux.HandleFunc("DELETE /pets/{pet_id}/history/{entry_id}", owner(handler.handleDeleteHistoryEntry))
	mux.HandleFunc("GET /pets/{pet_id}/history/viewport", owner(handler.handleHistoryViewport))

	mux.HandleFunc("POST /pets/{pet_id}/missing", owner(handler.handleReportMissing))
	mux.HandleFunc("DELETE /pets/{pet_id}/missing", owner(handler.handleClearMissing))
	mux.HandleFunc("GET /missing-pets", handler.handleListMissingPets)

	// WebSocket streams authenticate with their first frame
	if handler.websocket != nil {
		mux.HandleFunc("GET /ws/pets/{pet_id}/tracking", handler.websocket.StreamTracking)
		mux.HandleFunc("GET /ws/pets", handler.websocket.StreamPets)
	}

	if handler.media != nil {
		mux.Handle("GET /media/", http.StripPrefix("/media/", handler.media))
	}
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- general helpers -----

// TokenRequest is the body of POST /tokens.
type TokenRequest struct {
	Subject string    `json:"subject"`
	Role    user.Role `json:"role"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Subject   string    `json:"subject"`
	Role      user.Role `json:"role"`
}

func (handler *TrackerHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "subject is required", nil)
		return
	}
	role, err := user.ParseRole(string(req.Role))
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "role must be one of: OWNER, DEVICE", err)
		return
	}

	tokenString, claims, err := handler.auth.IssueToken(req.Subject, role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"subject": claims.Subject, "role": role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		Subject:   claims.Subject,
		Role:      role,
	})
}

// handleHealth returns a minimal JSON health status payload.
func (handler *TrackerHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	type resp struct {
		Status string `json:"status"`
	}
	_ = json.NewEncoder(w).Encode(resp{Status: "ok"})
}

// ownerAndPet reads the owner from the token and the pet id from the path.
// On failure the response is already written.
func (handler *TrackerHTTPHandler) ownerAndPet(ctx context.Context, w http.ResponseWriter, r *http.Request) (context.Context, string, string, bool) {
	ownerID, ok := handler.owner(ctx, w, r)
	if !ok {
		return ctx, "", "", false
	}

	petID := strings.TrimSpace(r.PathValue("pet_id"))
	if _, err := uuid.Parse(petID); err != nil {
		handler.httpError(ctx, w, http.StatusNotFound, "pet not found", err)
		return ctx, "", "", false
	}
	ctx = handler.logger.WithOwnerID(ctx, ownerID)
	return handler.logger.WithPetID(ctx, petID), ownerID, petID, true
}

func (handler *TrackerHTTPHandler) owner(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := jwt.RequireClaims(r)
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}
	return strings.TrimSpace(claims.Subject), true
}

// decodeJSON decodes a JSON body strictly. On failure the response is already written.
func (handler *TrackerHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 256<<10) // 256 KiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// serviceError maps a service failure to its HTTP status.
func (handler *TrackerHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		pgErr    *pgconn.PgError
		storeErr *history.StoreError
	)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, "pet not found", err)
	case errors.Is(err, ports.ErrNotTracking), errors.Is(err, ports.ErrNoTrackerDevice):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, ports.ErrUnsupportedImage):
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, err.Error(), err)
	case errors.Is(err, ports.ErrImageTooLarge):
		handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, err.Error(), err)
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	case errors.As(err, &storeErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "history store error", err)
	case isValidation(err):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.httpError(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		pet.ErrValidation,
		pet.ErrEmptyName,
		pet.ErrNameTooLong,
		pet.ErrMissingOwnerID,
		geo.ErrInvalidLatitude,
		geo.ErrInvalidLongitude,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (handler *TrackerHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *TrackerHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TrackerHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

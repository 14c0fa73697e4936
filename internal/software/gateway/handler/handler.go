package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/user"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/metrics"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
)

// GatewayHTTPHandler adapts device requests to the DeviceGatewayService.
type GatewayHTTPHandler struct {
	svc    ports.DeviceGatewayService
	logger *logger.Logger
	auth   *jwt.Manager
	ready  func() bool
}

// NewGatewayHTTPHandler wires an HTTP handler around the DeviceGatewayService.
func NewGatewayHTTPHandler(svc ports.DeviceGatewayService, logger *logger.Logger, auth *jwt.Manager) *GatewayHTTPHandler {
	return &GatewayHTTPHandler{svc: svc, logger: logger, auth: auth}
}

// WithReadiness makes /health answer 503 while ready reports false (broker disconnected).
func (handler *GatewayHTTPHandler) WithReadiness(ready func() bool) *GatewayHTTPHandler {
	handler.ready = ready
	return handler
}

// RegisterRoutes mounts the device endpoints on the provided mux.
func (handler *GatewayHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /devices/{device_id}/fixes",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDevice)(handler.handleIngestFix),
	)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", handler.handleHealth)
}

// --- Request DTO (HTTP boundary) ---

type ingestFixRequest struct {
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	BatteryPercent *int       `json:"battery_percent,omitempty"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`
}

// ----- Handler: POST /devices/{device_id}/fixes -----

func (handler *GatewayHTTPHandler) handleIngestFix(w http.ResponseWriter, r *http.Request) {
	// generate a context with request ID
	ctx := handler.withReqID(r.Context(), r)

	// check the content type
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	// limit body size
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10) // 16 KiB
	defer r.Body.Close()

	// a device may only report for itself
	deviceID := strings.TrimSpace(r.PathValue("device_id"))
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	if deviceID == "" || deviceID != strings.TrimSpace(claims.Subject) {
		handler.httpError(ctx, w, http.StatusForbidden, "device_id does not match token subject", errors.New("device/token mismatch"))
		return
	}
	ctx = handler.logger.WithDeviceID(ctx, deviceID)

	// decode strictly
	var req ingestFixRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "latitude and longitude are required", nil)
		return
	}

	in := ports.IngestFixInput{
		DeviceID:       deviceID,
		Coordinate:     geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		BatteryPercent: req.BatteryPercent,
	}
	if req.RecordedAt != nil {
		in.RecordedAt = *req.RecordedAt
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.IngestFix(ctxWithTimeout, in)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidFix) {
			handler.httpError(ctxWithTimeout, w, http.StatusBadRequest, err.Error(), err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusServiceUnavailable, "broker unavailable", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusAccepted, res)
}

// handleHealth returns a minimal JSON health status payload.
func (handler *GatewayHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	type resp struct {
		Status string `json:"status"`
	}
	if handler.ready != nil && !handler.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(resp{Status: "broker_unavailable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp{Status: "ok"})
}

// ----- general helpers -----

func (handler *GatewayHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *GatewayHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *GatewayHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pet-tracker/internal/domain/user"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/rabbitmq"
	"pet-tracker/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	got ports.IngestFixInput
	err error
}

func (s *stubGateway) IngestFix(_ context.Context, in ports.IngestFixInput) (ports.IngestFixResult, error) {
	s.got = in
	if s.err != nil {
		return ports.IngestFixResult{}, s.err
	}
	return ports.IngestFixResult{DeviceID: in.DeviceID, RecordedAt: in.RecordedAt, Accepted: true}, nil
}

func setup(t *testing.T, svc ports.DeviceGatewayService) (*http.ServeMux, *jwt.Manager) {
	t.Helper()
	mgr := jwt.NewManager("gateway-secret", time.Hour)
	mux := http.NewServeMux()
	NewGatewayHTTPHandler(svc, logger.NewWithWriter("gateway-test", nil), mgr).RegisterRoutes(mux)
	return mux, mgr
}

func post(t *testing.T, mux http.Handler, mgr *jwt.Manager, subject string, role user.Role, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	raw, _, err := mgr.IssueToken(subject, role)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestIngestFixAccepted(t *testing.T) {
	svc := &stubGateway{}
	mux, mgr := setup(t, svc)

	rec := post(t, mux, mgr, "collar-1", user.RoleDevice, "/devices/collar-1/fixes",
		`{"latitude":14.6,"longitude":121.3,"battery_percent":55,"recorded_at":"2025-06-01T12:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "collar-1", svc.got.DeviceID)
	assert.Equal(t, 55, *svc.got.BatteryPercent)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), svc.got.RecordedAt.UTC())
}

func TestIngestFixRejectsOtherDevicesAndOwners(t *testing.T) {
	mux, mgr := setup(t, &stubGateway{})

	rec := post(t, mux, mgr, "collar-2", user.RoleDevice, "/devices/collar-1/fixes", `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = post(t, mux, mgr, "collar-1", user.RoleOwner, "/devices/collar-1/fixes", `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIngestFixErrors(t *testing.T) {
	svc := &stubGateway{}
	mux, mgr := setup(t, svc)

	rec := post(t, mux, mgr, "collar-1", user.RoleDevice, "/devices/collar-1/fixes", `{"latitude":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = fmt.Errorf("%w: latitude must be between -90 and 90", ports.ErrInvalidFix)
	rec = post(t, mux, mgr, "collar-1", user.RoleDevice, "/devices/collar-1/fixes", `{"latitude":91,"longitude":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = fmt.Errorf("publish device fix: connection is not open")
	rec = post(t, mux, mgr, "collar-1", user.RoleDevice, "/devices/collar-1/fixes", `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.err = fmt.Errorf("publish device fix: %w", rabbitmq.ErrUnroutable)
	rec = post(t, mux, mgr, "collar-1", user.RoleDevice, "/devices/collar-1/fixes", `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "a returned publish is not reported as accepted")
}

func TestHealthReflectsBrokerReadiness(t *testing.T) {
	ready := false
	mux := http.NewServeMux()
	NewGatewayHTTPHandler(&stubGateway{}, logger.NewWithWriter("gateway-test", nil), jwt.NewManager("s", time.Hour)).
		WithReadiness(func() bool { return ready }).
		RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "broker_unavailable")

	ready = true
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/domain/user"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPetID = "5f0c2d0e-9a43-4a57-9d0f-0b6c1a2e3f40"

// stubService implements only what a test sets; calling anything else panics.
type stubService struct {
	ports.TrackerService

	gotOwner  string
	gotCreate ports.CreatePetInput
	gotReport ports.ReportMissingInput
	gotLimit  int

	getErr     error
	refresh    ports.RefreshResult
	refreshErr error
	reportErr  error
}

func (s *stubService) ListPets(_ context.Context, ownerID string) ([]ports.PetView, error) {
	s.gotOwner = ownerID
	return nil, nil
}

func (s *stubService) CreatePet(_ context.Context, in ports.CreatePetInput) (ports.PetView, error) {
	s.gotCreate = in
	p, err := pet.NewTrackedPet(testPetID, in.OwnerID, in.Profile)
	if err != nil {
		return ports.PetView{}, err
	}
	return ports.PetView{TrackedPet: *p}, nil
}

func (s *stubService) GetPet(_ context.Context, ownerID, petID string) (ports.PetView, error) {
	s.gotOwner = ownerID
	if s.getErr != nil {
		return ports.PetView{}, s.getErr
	}
	return ports.PetView{TrackedPet: pet.TrackedPet{ID: petID, OwnerID: ownerID, Name: "Rex"}}, nil
}

func (s *stubService) RefreshTracking(context.Context, string, string) (ports.RefreshResult, error) {
	return s.refresh, s.refreshErr
}

func (s *stubService) StartTracking(_ context.Context, _, petID string) (tracking.Snapshot, error) {
	return tracking.Snapshot{PetID: petID, Lifecycle: tracking.LifecycleRunning}, nil
}

func (s *stubService) ReportMissing(_ context.Context, in ports.ReportMissingInput) (ports.PetView, error) {
	s.gotReport = in
	if s.reportErr != nil {
		return ports.PetView{}, s.reportErr
	}
	return ports.PetView{}, nil
}

func (s *stubService) ListMissingPets(_ context.Context, limit int) ([]ports.MissingPetView, error) {
	s.gotLimit = limit
	return nil, nil
}

func newTestMux(t *testing.T, svc ports.TrackerService) (*http.ServeMux, *jwt.Manager) {
	t.Helper()
	mgr := jwt.NewManager("handler-secret", time.Hour)
	h := NewTrackerHTTPHandler(svc, logger.NewWithWriter("handler-test", nil), mgr, nil, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, mgr
}

func token(t *testing.T, mgr *jwt.Manager, subject string, role user.Role) string {
	t.Helper()
	raw, _, err := mgr.IssueToken(subject, role)
	require.NoError(t, err)
	return "Bearer " + raw
}

func do(mux http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuthIsRequiredForOwnerRoutes(t *testing.T) {
	svc := &stubService{}
	mux, mgr := newTestMux(t, svc)

	rec := do(mux, http.MethodGet, "/pets", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(mux, http.MethodGet, "/pets", token(t, mgr, "collar-1", user.RoleDevice), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(mux, http.MethodGet, "/pets", token(t, mgr, "owner-1", user.RoleOwner), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-1", svc.gotOwner)
	assert.JSONEq(t, `{"pets":[],"count":0}`, rec.Body.String())
}

func TestCreatePetTakesOwnerFromToken(t *testing.T) {
	svc := &stubService{}
	mux, mgr := newTestMux(t, svc)
	auth := token(t, mgr, "owner-1", user.RoleOwner)

	rec := do(mux, http.MethodPost, "/pets", auth, `{"name":"Rex","species":"dog","tracker_device_id":"collar-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "owner-1", svc.gotCreate.OwnerID)
	assert.Equal(t, "collar-1", svc.gotCreate.Profile.TrackerDeviceID)

	rec = do(mux, http.MethodPost, "/pets", auth, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pet.ErrEmptyName.Error(), errorOf(t, rec))

	rec = do(mux, http.MethodPost, "/pets", auth, `{"name":"Rex","owner_id":"someone-else"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPetIDMustBeUUID(t *testing.T) {
	mux, mgr := newTestMux(t, &stubService{})

	rec := do(mux, http.MethodGet, "/pets/not-a-uuid", token(t, mgr, "owner-1", user.RoleOwner), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	svc := &stubService{getErr: ports.ErrNotFound, refreshErr: ports.ErrNotTracking}
	mux, mgr := newTestMux(t, svc)
	auth := token(t, mgr, "owner-1", user.RoleOwner)

	rec := do(mux, http.MethodGet, "/pets/"+testPetID, auth, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodPost, "/pets/"+testPetID+"/tracking/refresh", auth, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.reportErr = &pet.ValidationError{Field: "notes", Reason: "additional information is required"}
	rec = do(mux, http.MethodPost, "/pets/"+testPetID+"/missing", auth, `{"use_last_known":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "notes: additional information is required", errorOf(t, rec))
	assert.True(t, svc.gotReport.UseLastKnown)
	assert.Equal(t, testPetID, svc.gotReport.PetID)
}

func TestRefreshSkippedWhenPollInFlight(t *testing.T) {
	svc := &stubService{refresh: ports.RefreshResult{Polled: false}}
	mux, mgr := newTestMux(t, svc)

	rec := do(mux, http.MethodPost, "/pets/"+testPetID+"/tracking/refresh", token(t, mgr, "owner-1", user.RoleOwner), "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStartTrackingReturnsSnapshot(t *testing.T) {
	mux, mgr := newTestMux(t, &stubService{})

	rec := do(mux, http.MethodPost, "/pets/"+testPetID+"/tracking/start", token(t, mgr, "owner-1", user.RoleOwner), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap tracking.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, tracking.LifecycleRunning, snap.Lifecycle)
	assert.Equal(t, testPetID, snap.PetID)
}

func TestMissingPetsIsPublic(t *testing.T) {
	svc := &stubService{}
	mux, _ := newTestMux(t, svc)

	rec := do(mux, http.MethodGet, "/missing-pets?limit=20", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, svc.gotLimit)

	rec = do(mux, http.MethodGet, "/missing-pets?limit=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadPhotoRequiresImageContentType(t *testing.T) {
	mux, mgr := newTestMux(t, &stubService{})

	rec := do(mux, http.MethodPut, "/pets/"+testPetID+"/photo", token(t, mgr, "owner-1", user.RoleOwner), `{}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestTokensAndHealth(t *testing.T) {
	mux, mgr := newTestMux(t, &stubService{})

	rec := do(mux, http.MethodPost, "/tokens", "", `{"subject":"owner-1","role":"owner"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var res TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, user.RoleOwner, res.Role)
	_, claims, err := mgr.ParseAndValidate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.Subject)

	rec = do(mux, http.MethodPost, "/tokens", "", `{"subject":"x","role":"ADMIN"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

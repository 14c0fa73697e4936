package websocket

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
	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshots chan tracking.Snapshot
	changes   chan struct{}
	pets      []ports.PetView
	subErr    error
	gotOwner  chan string
}

func (f *fakeSource) SubscribeTracking(_ context.Context, ownerID, _ string) (<-chan tracking.Snapshot, func(), error) {
	if f.subErr != nil {
		return nil, nil, f.subErr
	}
	f.gotOwner <- ownerID
	return f.snapshots, func() {}, nil
}

func (f *fakeSource) WatchPets(string) (<-chan struct{}, func()) {
	return f.changes, func() {}
}

func (f *fakeSource) ListPets(context.Context, string) ([]ports.PetView, error) {
	return f.pets, nil
}

func newTestServer(t *testing.T, src Source) (*httptest.Server, *jwt.Manager) {
	t.Helper()
	return newTestServerTTL(t, src, time.Hour)
}

func newTestServerTTL(t *testing.T, src Source, ttl time.Duration) (*httptest.Server, *jwt.Manager) {
	t.Helper()
	mgr := jwt.NewManager("ws-secret", ttl)
	ws := NewWebSocket(logger.NewWithWriter("ws-test", nil), mgr, src)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/pets/{pet_id}/tracking", ws.StreamTracking)
	mux.HandleFunc("GET /ws/pets", ws.StreamPets)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func dialAndAuth(t *testing.T, srv *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "Bearer " + token}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestStreamTracking_DeliversSnapshotsUntilSessionEnds(t *testing.T) {
	src := &fakeSource{snapshots: make(chan tracking.Snapshot, 1), gotOwner: make(chan string, 1)}
	srv, mgr := newTestServer(t, src)
	token, _, err := mgr.IssueToken("owner-1", user.RoleOwner)
	require.NoError(t, err)

	conn := dialAndAuth(t, srv, "/ws/pets/pet-1/tracking", token)
	assert.Equal(t, "auth_success", readType(t, conn)["type"])
	assert.Equal(t, "owner-1", <-src.gotOwner)

	src.snapshots <- tracking.Snapshot{PetID: "pet-1", Lifecycle: tracking.LifecycleRunning, State: tracking.SessionState{DeviceOnline: true}}

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg contracts.WSTrackingSnapshot
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, contracts.WSTypeTrackingSnapshot, msg.Type)
	assert.Equal(t, tracking.LifecycleRunning, msg.Snapshot.Lifecycle)
	assert.True(t, msg.Snapshot.State.DeviceOnline)

	close(src.snapshots)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamTracking_UnknownPet(t *testing.T) {
	src := &fakeSource{subErr: ports.ErrNotFound}
	srv, mgr := newTestServer(t, src)
	token, _, err := mgr.IssueToken("owner-1", user.RoleOwner)
	require.NoError(t, err)

	conn := dialAndAuth(t, srv, "/ws/pets/nope/tracking", token)
	assert.Equal(t, "auth_success", readType(t, conn)["type"])

	msg := readType(t, conn)
	assert.Equal(t, contracts.WSTypeError, msg["type"])
	assert.Equal(t, "pet not found", msg["message"])
}

func TestStream_RejectsDeviceToken(t *testing.T) {
	srv, mgr := newTestServer(t, &fakeSource{})
	token, _, err := mgr.IssueToken("collar-1", user.RoleDevice)
	require.NoError(t, err)

	conn := dialAndAuth(t, srv, "/ws/pets", token)
	msg := readType(t, conn)
	assert.Equal(t, "auth_error", msg["type"])
}

func TestStreamPets_ResendsListOnChange(t *testing.T) {
	p, err := pet.NewTrackedPet("pet-1", "owner-1", pet.Profile{Name: "Mochi"})
	require.NoError(t, err)
	src := &fakeSource{
		changes: make(chan struct{}, 1),
		pets:    []ports.PetView{{TrackedPet: *p}},
	}
	srv, mgr := newTestServer(t, src)
	token, _, err := mgr.IssueToken("owner-1", user.RoleOwner)
	require.NoError(t, err)

	conn := dialAndAuth(t, srv, "/ws/pets", token)
	assert.Equal(t, "auth_success", readType(t, conn)["type"])

	first := readType(t, conn)
	assert.Equal(t, contracts.WSTypePetList, first["type"])
	assert.EqualValues(t, 1, first["count"])

	src.changes <- struct{}{}
	second := readType(t, conn)
	assert.Equal(t, contracts.WSTypePetList, second["type"])
}

func TestStreamPets_ClosesWhenTokenExpires(t *testing.T) {
	src := &fakeSource{changes: make(chan struct{})}
	// token expiry has second precision, so this expires one to two seconds from now
	srv, mgr := newTestServerTTL(t, src, 2*time.Second)
	token, _, err := mgr.IssueToken("owner-1", user.RoleOwner)
	require.NoError(t, err)

	conn := dialAndAuth(t, srv, "/ws/pets", token)
	assert.Equal(t, "auth_success", readType(t, conn)["type"])
	assert.Equal(t, contracts.WSTypePetList, readType(t, conn)["type"])

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

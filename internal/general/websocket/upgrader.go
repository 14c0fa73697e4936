package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/domain/user"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	authTimeout      = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	pingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Source is what the streams read from. The tracker service implements it.
type Source interface {
	SubscribeTracking(ctx context.Context, ownerID, petID string) (<-chan tracking.Snapshot, func(), error)
	WatchPets(ownerID string) (<-chan struct{}, func())
	ListPets(ctx context.Context, ownerID string) ([]ports.PetView, error)
}

// WebSocket serves the owner-facing streams. Every connection authenticates with its first frame:
// { "type":"auth", "token":"Bearer <jwt>" }.
type WebSocket struct {
	logger     *logger.Logger
	jwtMgr     *jwt.Manager
	src        Source
	writeLocks sync.Map // key: *websocket.Conn -> *sync.Mutex
}

// NewWebSocket creates a WebSocket handler with JWT auth.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager, src Source) *WebSocket {
	return &WebSocket{
		logger: logger,
		jwtMgr: jwtMgr,
		src:    src,
	}
}

// authenticate upgrades the request, reads the auth frame and returns the owner it belongs to.
// On failure the socket is already answered and closed.
func (ws *WebSocket) authenticate(w http.ResponseWriter, r *http.Request) (*websocket.Conn, jwt.WSIdentity, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, jwt.WSIdentity{}, false
	}

	fail := func(msg string) (*websocket.Conn, jwt.WSIdentity, bool) {
		_ = ws.sendAuthError(conn, msg)
		ws.wsWriteClose(conn, websocket.ClosePolicyViolation, msg)
		ws.release(conn)
		return nil, jwt.WSIdentity{}, false
	}

	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(authTimeout)); err != nil {
		ws.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		return fail("internal server error")
	}

	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		ws.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		return fail("authentication timeout: please send auth message within 5 seconds")
	}
	if msgType != websocket.TextMessage {
		return fail("auth message must be in text format")
	}

	id, err := jwt.AuthenticateWSFrame(firstFrame, ws.jwtMgr, user.RoleOwner)
	if err != nil {
		ws.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		return fail("authentication failed: invalid token")
	}

	if err := ws.sendAuthSuccess(conn, id.Subject); err != nil {
		ws.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		ws.release(conn)
		return nil, jwt.WSIdentity{}, false
	}

	return conn, id, true
}

// expiry fires when the token behind the stream expires. It never fires for tokens without expiry.
func expiry(id jwt.WSIdentity) (<-chan time.Time, func()) {
	if id.ExpiresAt.IsZero() {
		return nil, func() {}
	}
	t := time.NewTimer(time.Until(id.ExpiresAt))
	return t.C, func() { t.Stop() }
}

// readLoop drains client frames so pongs and close frames are processed. The returned channel
// is closed when the client goes away.
func (ws *WebSocket) readLoop(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		}
	}()
	return done
}

// ping sends a ping control frame under the connection's write lock.
func (ws *WebSocket) ping(conn *websocket.Conn) error {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
}

// sendAuthError sends authentication error message to client
func (ws *WebSocket) sendAuthError(conn *websocket.Conn, message string) error {
	return ws.writeJSON(conn, map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
}

// sendAuthSuccess sends authentication success message to client
func (ws *WebSocket) sendAuthSuccess(conn *websocket.Conn, ownerID string) error {
	return ws.writeJSON(conn, map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		"owner_id":  ownerID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// closeReason picks the close frame for a stream that ended because of err.
func closeReason(err error) (int, string) {
	switch {
	case err == nil:
		return websocket.CloseNormalClosure, "bye"
	case errors.Is(err, ports.ErrNotFound):
		return websocket.ClosePolicyViolation, "pet not found"
	case errors.Is(err, ports.ErrNotTracking):
		return websocket.ClosePolicyViolation, "pet is not being tracked"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

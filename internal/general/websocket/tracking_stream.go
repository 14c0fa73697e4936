package websocket

import (
	"net/http"
	"time"

	"pet-tracker/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// StreamTracking pushes every snapshot of a pet's tracking session to the owner.
// GET /ws/pets/{pet_id}/tracking
func (ws *WebSocket) StreamTracking(w http.ResponseWriter, r *http.Request) {
	conn, id, ok := ws.authenticate(w, r)
	if !ok {
		return
	}
	defer ws.release(conn)

	ownerID := id.Subject
	petID := r.PathValue("pet_id")
	ctx := ws.logger.WithPetID(ws.logger.WithOwnerID(r.Context(), ownerID), petID)

	snapshots, unsubscribe, err := ws.src.SubscribeTracking(ctx, ownerID, petID)
	if err != nil {
		ws.logger.Error(ctx, "ws_tracking_subscribe_failed", "Failed to subscribe to tracking session", err, nil)
		code, reason := closeReason(err)
		_ = ws.writeJSON(conn, contracts.WSError{Type: contracts.WSTypeError, Message: reason})
		ws.wsWriteClose(conn, code, reason)
		return
	}
	defer unsubscribe()

	ws.logger.Info(ctx, "ws_tracking_connected", "Tracking stream connected", nil)

	clientGone := ws.readLoop(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	expired, stopExpiry := expiry(id)
	defer stopExpiry()

	for {
		select {
		case <-clientGone:
			ws.logger.Info(ctx, "ws_connection_closed", "Tracking stream closed by client", nil)
			return

		case <-expired:
			ws.wsWriteClose(conn, websocket.ClosePolicyViolation, "token expired")
			return

		case <-ticker.C:
			if err := ws.ping(conn); err != nil {
				ws.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, nil)
				return
			}

		case snap, ok := <-snapshots:
			if !ok {
				// session stopped or was replaced
				ws.wsWriteClose(conn, websocket.CloseNormalClosure, "tracking stopped")
				return
			}
			msg := contracts.WSTrackingSnapshot{
				Type:      contracts.WSTypeTrackingSnapshot,
				PetID:     snap.PetID,
				Snapshot:  snap,
				Timestamp: time.Now().UTC(),
				Envelope:  contracts.Envelope{Producer: "tracker-service", SentAt: time.Now().UTC()},
			}
			if err := ws.writeJSON(conn, msg); err != nil {
				ws.logger.Error(ctx, "ws_send_failed", "Failed to send tracking snapshot", err, nil)
				return
			}
		}
	}
}

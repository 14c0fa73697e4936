package websocket

import (
	"context"
	"net/http"
	"time"

	"pet-tracker/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// StreamPets sends the owner's pet list on connect and again after every change to it.
// GET /ws/pets
func (ws *WebSocket) StreamPets(w http.ResponseWriter, r *http.Request) {
	conn, id, ok := ws.authenticate(w, r)
	if !ok {
		return
	}
	defer ws.release(conn)

	ownerID := id.Subject
	ctx := ws.logger.WithOwnerID(r.Context(), ownerID)
	changes, unsubscribe := ws.src.WatchPets(ownerID)
	defer unsubscribe()

	if err := ws.sendPetList(ctx, conn, ownerID); err != nil {
		ws.logger.Error(ctx, "ws_pet_list_failed", "Failed to send pet list", err, nil)
		code, reason := closeReason(err)
		ws.wsWriteClose(conn, code, reason)
		return
	}

	clientGone := ws.readLoop(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	expired, stopExpiry := expiry(id)
	defer stopExpiry()

	for {
		select {
		case <-clientGone:
			return

		case <-expired:
			ws.wsWriteClose(conn, websocket.ClosePolicyViolation, "token expired")
			return

		case <-ticker.C:
			if err := ws.ping(conn); err != nil {
				ws.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, nil)
				return
			}

		case _, ok := <-changes:
			if !ok {
				ws.wsWriteClose(conn, websocket.CloseGoingAway, "server shutting down")
				return
			}
			if err := ws.sendPetList(ctx, conn, ownerID); err != nil {
				ws.logger.Error(ctx, "ws_pet_list_failed", "Failed to send pet list", err, nil)
				return
			}
		}
	}
}

func (ws *WebSocket) sendPetList(ctx context.Context, conn *websocket.Conn, ownerID string) error {
	pets, err := ws.src.ListPets(ctx, ownerID)
	if err != nil {
		return err
	}
	return ws.writeJSON(conn, contracts.WSPetList{
		Type:      contracts.WSTypePetList,
		Pets:      pets,
		Count:     len(pets),
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{Producer: "tracker-service", SentAt: time.Now().UTC()},
	})
}

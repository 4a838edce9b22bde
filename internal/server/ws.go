package server

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"

	"crashd/internal/game"
	"crashd/internal/logger"
)

type wsInbound struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount,omitempty"`
	AutoCashOut float64 `json:"auto_cashout,omitempty"`
}

// gameWebSocketHandler subscribes the connection to the event stream and
// handles inbound commands. Every new connection gets a snapshot first, so
// a reconnecting client is consistent before the next push arrives.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	// Presence is enforced at the route before the upgrade.
	uid := conn.Query("user_id")

	client := s.hub.RegisterClient(conn, uid)
	defer s.hub.UnregisterClient(client)

	if snap, ok := s.scheduler.GetSnapshot(uid); ok {
		client.Send(game.Event{Type: "snapshot", Data: snap})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			logger.Debugf("[WS] read error for user %s: %v", uid, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg wsInbound
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "place_bet":
			resp := s.scheduler.PlaceBet(game.BetRequest{
				UserID:      uid,
				Amount:      msg.Amount,
				AutoCashOut: msg.AutoCashOut,
			})
			client.Send(game.Event{Type: "bet_result", Data: resp})

		case "cashout":
			resp := s.scheduler.CashOut(game.CashOutRequest{UserID: uid})
			client.Send(game.Event{Type: "cashout_result", Data: resp})

		case "get_snapshot":
			if snap, ok := s.scheduler.GetSnapshot(uid); ok {
				client.Send(game.Event{Type: "snapshot", Data: snap})
			}

		case "ping":
			client.Send(game.Event{Type: "pong"})
		}
	}
}

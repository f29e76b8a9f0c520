package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"game-session-engine/middleware"
	"game-session-engine/models"
	"game-session-engine/services"
	"game-session-engine/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Inbound command names on the websocket surface.
const (
	cmdJoinMatchmaking  = "JoinMatchmaking"
	cmdLeaveMatchmaking = "LeaveMatchmaking"
	cmdJoinRoom         = "JoinRoom"
	cmdSetReady         = "SetReady"
	cmdStartGame        = "StartGame"
	cmdSendMove         = "SendMove"
	cmdUpdateGameState  = "UpdateGameState"
	cmdPlayerDied       = "PlayerDied"
	cmdEndGame          = "EndGame"
	cmdLeaveRoom        = "LeaveRoom"
	cmdReconnect        = "Reconnect"
)

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SetupRealtimeRoutes registers the websocket gateway endpoint.
func SetupRealtimeRoutes(app *fiber.App, hub *ws.Hub, matchmaking *services.MatchmakingService, sessions *services.SessionService) {
	app.Use("/ws", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)
		if userID == "" {
			// Identity comes from the gateway; nothing to do without it.
			conn.WriteJSON(ws.Envelope{Event: services.EventError, Data: fiber.Map{
				"error": "missing user identity",
			}})
			conn.Close()
			return
		}

		connID := hub.Register(userID, conn)
		log.Printf("[WS] %s connected (%s)", userID, connID)

		defer func() {
			hub.Unregister(userID, connID)
			// Ungraceful drops open the reconnect window; a clean
			// LeaveRoom (or a socket swap that already replaced this
			// connection) makes this a no-op.
			sessions.HandleDisconnect(userID, connID)
			log.Printf("[WS] %s disconnected (%s)", userID, connID)
		}()

		gw := &gateway{hub: hub, matchmaking: matchmaking, sessions: sessions}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			gw.dispatch(userID, connID, msg)
		}
	}))
}

// gateway translates wire envelopes into service calls and service
// errors back into events.
type gateway struct {
	hub         *ws.Hub
	matchmaking *services.MatchmakingService
	sessions    *services.SessionService
}

func (g *gateway) dispatch(userID, connID string, msg []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		g.hub.NotifyUser(userID, services.EventError, fiber.Map{"error": "malformed message"})
		return
	}

	switch env.Event {
	case cmdJoinMatchmaking:
		var req struct {
			Mode        string `json:"mode"`
			PlayerCount int    `json:"player_count"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		status, err := g.matchmaking.Enqueue(userID, connID, req.Mode, req.PlayerCount)
		if err != nil {
			g.hub.NotifyUser(userID, services.EventMatchmakingError, errPayload(err))
			return
		}
		g.hub.NotifyUser(userID, services.EventMatchmakingJoined, status)
		// Immediate attempt for this ticket's group; MatchFound (if
		// any) lands after MatchmakingJoined.
		if _, err := g.matchmaking.TryMatch(status.Mode, status.PlayerCount); err != nil {
			log.Printf("[Matchmaker] immediate match for %s/%d: %v", status.Mode, status.PlayerCount, err)
		}

	case cmdLeaveMatchmaking:
		if err := g.matchmaking.Dequeue(userID); err != nil {
			g.hub.NotifyUser(userID, services.EventMatchmakingError, errPayload(err))
			return
		}
		g.hub.NotifyUser(userID, services.EventMatchmakingLeft, nil)

	case cmdJoinRoom:
		var req struct {
			JoinCode string `json:"join_code"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		snapshot, err := g.sessions.Join(userID, connID, req.JoinCode)
		if err != nil {
			g.sendError(userID, env.Event, err)
			return
		}
		g.hub.NotifyUser(userID, services.EventRoomJoined, snapshot)

	case cmdSetReady:
		var req struct {
			Ready bool `json:"ready"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		if err := g.sessions.SetReady(userID, req.Ready); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdStartGame:
		if err := g.sessions.Start(userID); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdSendMove:
		var req struct {
			Direction string              `json:"direction"`
			Body      models.PositionList `json:"body"`
			Score     int64               `json:"score"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		if err := g.sessions.Move(userID, req.Direction, req.Body, req.Score); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdUpdateGameState:
		var req struct {
			Food     models.PositionList `json:"food"`
			PowerUps models.PowerUpList  `json:"power_ups"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		if err := g.sessions.UpdateEnvironment(userID, req.Food, req.PowerUps); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdPlayerDied:
		if err := g.sessions.Died(userID); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdEndGame:
		var req struct {
			Score int64 `json:"score"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		if err := g.sessions.EndGame(userID, req.Score); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdLeaveRoom:
		if err := g.sessions.Leave(userID); err != nil {
			g.sendError(userID, env.Event, err)
		}

	case cmdReconnect:
		var req struct {
			JoinCode string `json:"join_code"`
		}
		if !g.decode(userID, env.Data, &req) {
			return
		}
		snapshot, err := g.sessions.Reconnect(userID, connID, req.JoinCode)
		if err != nil {
			g.hub.NotifyUser(userID, services.EventReconnectFailed, errPayload(err))
			return
		}
		g.hub.NotifyUser(userID, services.EventReconnectSuccess, snapshot)

	default:
		g.hub.NotifyUser(userID, services.EventError, fiber.Map{
			"error": "unknown event: " + env.Event,
		})
	}
}

func (g *gateway) decode(userID string, data json.RawMessage, dest interface{}) bool {
	if len(data) == 0 {
		g.hub.NotifyUser(userID, services.EventError, fiber.Map{"error": "missing payload"})
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		g.hub.NotifyUser(userID, services.EventError, fiber.Map{"error": "malformed payload"})
		return false
	}
	return true
}

func (g *gateway) sendError(userID, event string, err error) {
	payload := errPayload(err)
	payload["event"] = event
	g.hub.NotifyUser(userID, services.EventError, payload)
}

func errPayload(err error) fiber.Map {
	var gameErr *services.GameError
	if errors.As(err, &gameErr) {
		return fiber.Map{"error": gameErr.Message, "kind": string(gameErr.Kind)}
	}
	log.Printf("[WS] internal error: %v", err)
	return fiber.Map{"error": "internal error", "kind": "internal"}
}

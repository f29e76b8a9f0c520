package services

import "game-session-engine/models"

// Event names on the gateway surface. Inbound command names are
// matched in the realtime handler; these are the outbound set.
const (
	EventMatchmakingJoined = "MatchmakingJoined"
	EventMatchmakingError  = "MatchmakingError"
	EventMatchmakingLeft   = "MatchmakingLeft"
	EventMatchFound        = "MatchFound"

	EventRoomJoined         = "RoomJoined"
	EventPlayerJoined       = "PlayerJoined"
	EventPlayerReady        = "PlayerReady"
	EventGameStarting       = "GameStarting"
	EventGameStarted        = "GameStarted"
	EventPlayerMoved        = "PlayerMoved"
	EventGameStateUpdated   = "GameStateUpdated"
	EventPlayerEliminated   = "PlayerEliminated"
	EventGameOver           = "GameOver"
	EventGameEnded          = "GameEnded"
	EventPlayerLeft         = "PlayerLeft"
	EventPlayerDisconnected = "PlayerDisconnected"
	EventPlayerReconnected  = "PlayerReconnected"
	EventReconnectSuccess   = "ReconnectSuccess"
	EventReconnectFailed    = "ReconnectFailed"
	EventError              = "Error"
)

// Session end reasons carried on GameEnded.
const (
	EndReasonCompleted = "completed"
	EndReasonAbandoned = "abandoned"
)

// Notifier is the transport the services broadcast through. ws.Hub
// implements it; tests use a recording fake.
type Notifier interface {
	NotifyUser(userID, event string, payload interface{})
	NotifySession(sessionID, event string, payload interface{})
	NotifySessionExcept(sessionID, exceptUserID, event string, payload interface{})
	AddToSession(sessionID, userID string)
	RemoveFromSession(sessionID, userID string)
	DropSession(sessionID string)
}

// MatchFoundPayload is sent to each matched player's connection.
type MatchFoundPayload struct {
	SessionID   string `json:"session_id"`
	JoinCode    string `json:"join_code"`
	Mode        string `json:"mode"`
	PlayerCount int    `json:"player_count"`
	PlayerIndex int    `json:"player_index"`
}

// QueueStatus is returned from Enqueue and echoed on MatchmakingJoined.
type QueueStatus struct {
	Mode                 string `json:"mode"`
	PlayerCount          int    `json:"player_count"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

// Snapshot is the full session state handed to joining and
// reconnecting clients.
type Snapshot struct {
	Session *models.GameSession `json:"session"`
	Players []models.PlayerSlot `json:"players"`
}

// GameEndedPayload closes out a session with the final standings.
type GameEndedPayload struct {
	SessionID    string         `json:"session_id"`
	Reason       string         `json:"reason"`
	WinnerUserID string         `json:"winner_user_id,omitempty"`
	Results      []PlayerResult `json:"results"`
	TotalPlayers int            `json:"total_players"`
}

// GameStartingPayload announces the countdown before play begins.
type GameStartingPayload struct {
	SessionID        string `json:"session_id"`
	CountdownSeconds int    `json:"countdown_seconds"`
}

// PlayerMovedPayload relays one player's positional update to the
// rest of the session.
type PlayerMovedPayload struct {
	UserID    string              `json:"user_id"`
	Direction string              `json:"direction"`
	Body      models.PositionList `json:"body"`
	Score     int64               `json:"score"`
}

// GameStatePayload carries the host-authoritative environment.
type GameStatePayload struct {
	Food     models.PositionList `json:"food"`
	PowerUps models.PowerUpList  `json:"power_ups"`
}

// PlayerEliminatedPayload announces a death and its assigned rank.
type PlayerEliminatedPayload struct {
	UserID          string `json:"user_id"`
	EliminationRank int    `json:"elimination_rank"`
	AliveRemaining  int    `json:"alive_remaining"`
}

// PlayerDisconnectedPayload opens a reconnect window for the rest of
// the session to display.
type PlayerDisconnectedPayload struct {
	UserID                 string `json:"user_id"`
	ReconnectWindowSeconds int    `json:"reconnect_window_seconds"`
}

// PlayerLeftPayload reports a departure; NewHostUserID is set when the
// host role moved.
type PlayerLeftPayload struct {
	UserID        string `json:"user_id"`
	NewHostUserID string `json:"new_host_user_id,omitempty"`
}

package models

import "time"

// MatchmakingTicket is a user's pending request to be matched into a
// session. A user holds at most one unmatched ticket; re-queueing
// overwrites it.
type MatchmakingTicket struct {
	UserID             string    `gorm:"primaryKey" json:"user_id"`
	Mode               string    `gorm:"index;not null" json:"mode"`
	DesiredPlayerCount int       `gorm:"index;not null" json:"desired_player_count"`
	QueuedAt           time.Time `gorm:"index;not null" json:"queued_at"`
	ConnectionID       string    `json:"connection_id"`
	Matched            bool      `gorm:"index;default:false" json:"matched"`
	MatchedSessionID   *string   `json:"matched_session_id,omitempty"`
	MatchedAt          *time.Time `json:"matched_at,omitempty"`
}

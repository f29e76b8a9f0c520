package models

import "time"

// PlayerSlot is one player's membership record within a session. The
// index is assigned once at join time and never reassigned.
type PlayerSlot struct {
	SessionID string `gorm:"primaryKey" json:"session_id"`
	UserID    string `gorm:"primaryKey;index" json:"user_id"`
	Index     int    `gorm:"not null" json:"index"`

	Score   int64 `gorm:"default:0" json:"score"`
	IsAlive bool  `gorm:"default:true" json:"is_alive"`
	IsReady bool  `gorm:"default:false" json:"is_ready"`

	Direction string       `json:"direction"`
	Body      PositionList `gorm:"type:jsonb" json:"body"`
	Color     string       `json:"color"`

	ConnectionID    string     `json:"connection_id"`
	DisconnectedAt  *time.Time `json:"disconnected_at,omitempty"`
	EliminationRank *int       `json:"elimination_rank,omitempty"`
	EliminatedAt    *time.Time `json:"eliminated_at,omitempty"`

	Timestamps
}

// Connected reports whether the slot currently holds a live connection.
func (p *PlayerSlot) Connected() bool {
	return p.DisconnectedAt == nil
}

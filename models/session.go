package models

import "time"

// Session lifecycle statuses. Transitions only move forward:
// waiting → countdown → playing → finished, with any non-terminal
// state allowed to jump straight to finished.
const (
	SessionWaiting   = "waiting"
	SessionCountdown = "countdown"
	SessionPlaying   = "playing"
	SessionFinished  = "finished"
)

// GameSession is one multiplayer game instance: roster, lifecycle
// status and the host-authoritative environment (food, power-ups).
type GameSession struct {
	ID           string       `gorm:"primaryKey" json:"id"`
	JoinCode     string       `gorm:"index;not null" json:"join_code"`
	Mode         string       `gorm:"index;not null" json:"mode"`
	Status       string       `gorm:"index;default:'waiting'" json:"status"`
	MaxPlayers   int          `gorm:"not null" json:"max_players"`
	HostUserID   string       `gorm:"index;not null" json:"host_user_id"`
	Food         PositionList `gorm:"type:jsonb" json:"food"`
	PowerUps     PowerUpList  `gorm:"type:jsonb" json:"power_ups"`
	Settings     GameSettings `gorm:"type:jsonb" json:"settings"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	FinishedAt   *time.Time   `gorm:"index" json:"finished_at,omitempty"`

	// Relationship: one session owns its player slots (cascade delete)
	Slots []PlayerSlot `json:"slots,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`

	Timestamps
}

// Active reports whether the session still occupies its join code.
func (s *GameSession) Active() bool {
	return s.Status != SessionFinished
}

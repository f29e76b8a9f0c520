package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Position is a single cell on the board grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PowerUp is a pickup on the board. Kind is game-defined
// (e.g. "speed", "shield", "shrink").
type PowerUp struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Kind string `json:"kind"`
}

// PositionList stores a list of positions as a JSON column.
type PositionList []Position

func (p PositionList) Value() (driver.Value, error) {
	if p == nil {
		p = PositionList{}
	}
	return json.Marshal(p)
}

func (p *PositionList) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// PowerUpList stores a list of power-ups as a JSON column.
type PowerUpList []PowerUp

func (p PowerUpList) Value() (driver.Value, error) {
	if p == nil {
		p = PowerUpList{}
	}
	return json.Marshal(p)
}

func (p *PowerUpList) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// GameSettings are session-level rules fixed at creation time.
type GameSettings struct {
	BoardSize int `json:"board_size"`
	TickMS    int `json:"tick_ms"`
	FoodCount int `json:"food_count"`
}

func (s GameSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *GameSettings) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

package store

import (
	"errors"
	"fmt"
	"time"

	"game-session-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// --- Tickets ---

func (g *GormStore) GetTicket(userID string) (*models.MatchmakingTicket, error) {
	var t models.MatchmakingTicket
	if err := g.DB.First(&t, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (g *GormStore) SaveTicket(t *models.MatchmakingTicket) error {
	return g.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mode", "desired_player_count", "queued_at", "connection_id",
			"matched", "matched_session_id", "matched_at",
		}),
	}).Create(t).Error
}

func (g *GormStore) DeleteUnmatchedTicket(userID string) error {
	return g.DB.Where("user_id = ? AND matched = false", userID).
		Delete(&models.MatchmakingTicket{}).Error
}

func (g *GormStore) ListUnmatchedTickets(mode string, playerCount int) ([]models.MatchmakingTicket, error) {
	var tickets []models.MatchmakingTicket
	err := g.DB.Where("matched = false AND mode = ? AND desired_player_count = ?", mode, playerCount).
		Order("queued_at ASC, user_id ASC").
		Find(&tickets).Error
	return tickets, err
}

func (g *GormStore) ListWaitingGroups() ([]QueueGroup, error) {
	var groups []QueueGroup
	err := g.DB.Model(&models.MatchmakingTicket{}).
		Select("mode, desired_player_count AS player_count").
		Where("matched = false").
		Group("mode, desired_player_count").
		Order("mode ASC, desired_player_count ASC").
		Scan(&groups).Error
	return groups, err
}

func (g *GormStore) DeleteMatchedTicketsBefore(cutoff time.Time) (int, error) {
	res := g.DB.Where("matched = true AND matched_at < ?", cutoff).
		Delete(&models.MatchmakingTicket{})
	return int(res.RowsAffected), res.Error
}

// --- Sessions ---

// CreateMatch commits a formed match as one transaction: the session,
// its slots and the matched flags on the selected tickets. If any
// ticket was removed or matched in the meantime the whole transaction
// rolls back.
func (g *GormStore) CreateMatch(session *models.GameSession, slots []models.PlayerSlot, ticketUserIDs []string) error {
	return g.DB.Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.GameSession{}).
			Where("join_code = ? AND status <> ?", session.JoinCode, models.SessionFinished).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrJoinCodeTaken
		}

		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := tx.Create(&slots).Error; err != nil {
			return fmt.Errorf("create slots: %w", err)
		}

		now := time.Now()
		res := tx.Model(&models.MatchmakingTicket{}).
			Where("user_id IN ? AND matched = false", ticketUserIDs).
			Updates(map[string]interface{}{
				"matched":            true,
				"matched_session_id": session.ID,
				"matched_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ticketUserIDs)) {
			return ErrTicketConflict
		}
		return nil
	})
}

func (g *GormStore) GetSession(id string) (*models.GameSession, error) {
	var s models.GameSession
	if err := g.DB.First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (g *GormStore) GetActiveSessionByCode(code string) (*models.GameSession, error) {
	var s models.GameSession
	err := g.DB.Where("join_code = ? AND status <> ?", code, models.SessionFinished).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (g *GormStore) GetActiveSessionForUser(userID string) (*models.GameSession, error) {
	var s models.GameSession
	err := g.DB.Where("status <> ?", models.SessionFinished).
		Where("id IN (?)", g.DB.Model(&models.PlayerSlot{}).
			Select("session_id").Where("user_id = ?", userID)).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (g *GormStore) UpdateSession(s *models.GameSession) error {
	return g.DB.Save(s).Error
}

func (g *GormStore) ListSessionsByStatus(statuses ...string) ([]models.GameSession, error) {
	var sessions []models.GameSession
	err := g.DB.Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (g *GormStore) ListLobbiesCreatedBefore(cutoff time.Time) ([]models.GameSession, error) {
	var sessions []models.GameSession
	err := g.DB.Where("status IN ? AND created_at < ?",
		[]string{models.SessionWaiting, models.SessionCountdown}, cutoff).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (g *GormStore) ListFinishedBefore(cutoff time.Time) ([]models.GameSession, error) {
	var sessions []models.GameSession
	err := g.DB.Where("status = ? AND finished_at < ?", models.SessionFinished, cutoff).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// DeleteSessionCascade removes a session together with its slots.
func (g *GormStore) DeleteSessionCascade(id string) error {
	return g.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).
			Unscoped().Delete(&models.PlayerSlot{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&models.GameSession{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- Player slots ---

func (g *GormStore) GetSlot(sessionID, userID string) (*models.PlayerSlot, error) {
	var slot models.PlayerSlot
	err := g.DB.Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&slot).Error
	if err != nil {
		return nil, translate(err)
	}
	return &slot, nil
}

func (g *GormStore) ListSlots(sessionID string) ([]models.PlayerSlot, error) {
	var slots []models.PlayerSlot
	err := g.DB.Where("session_id = ?", sessionID).
		Order(`"index" ASC`).
		Find(&slots).Error
	return slots, err
}

func (g *GormStore) SaveSlot(slot *models.PlayerSlot) error {
	return g.DB.Save(slot).Error
}

func (g *GormStore) DeleteSlot(sessionID, userID string) error {
	res := g.DB.Where("session_id = ? AND user_id = ?", sessionID, userID).
		Unscoped().Delete(&models.PlayerSlot{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

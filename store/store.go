package store

import (
	"errors"
	"time"

	"game-session-engine/models"
)

var (
	// ErrNotFound is returned for missing tickets, sessions or slots.
	ErrNotFound = errors.New("record not found")

	// ErrJoinCodeTaken is returned by CreateMatch when the generated
	// join code already belongs to a non-finished session. Callers
	// retry with a fresh code.
	ErrJoinCodeTaken = errors.New("join code already in use")

	// ErrTicketConflict is returned by CreateMatch when one of the
	// selected tickets was removed or matched concurrently. Nothing
	// is committed in that case.
	ErrTicketConflict = errors.New("ticket no longer available")
)

// QueueGroup identifies one matchmaking bucket.
type QueueGroup struct {
	Mode        string
	PlayerCount int
}

// Store is the persistence boundary for the engine. Implementations
// must make CreateMatch and DeleteSessionCascade atomic: either the
// full set of writes lands or none of it does.
type Store interface {
	// Tickets
	GetTicket(userID string) (*models.MatchmakingTicket, error)
	SaveTicket(t *models.MatchmakingTicket) error
	DeleteUnmatchedTicket(userID string) error
	ListUnmatchedTickets(mode string, playerCount int) ([]models.MatchmakingTicket, error)
	ListWaitingGroups() ([]QueueGroup, error)
	DeleteMatchedTicketsBefore(cutoff time.Time) (int, error)

	// Sessions
	CreateMatch(session *models.GameSession, slots []models.PlayerSlot, ticketUserIDs []string) error
	GetSession(id string) (*models.GameSession, error)
	GetActiveSessionByCode(code string) (*models.GameSession, error)
	GetActiveSessionForUser(userID string) (*models.GameSession, error)
	UpdateSession(s *models.GameSession) error
	ListSessionsByStatus(statuses ...string) ([]models.GameSession, error)
	ListLobbiesCreatedBefore(cutoff time.Time) ([]models.GameSession, error)
	ListFinishedBefore(cutoff time.Time) ([]models.GameSession, error)
	DeleteSessionCascade(id string) error

	// Player slots
	GetSlot(sessionID, userID string) (*models.PlayerSlot, error)
	ListSlots(sessionID string) ([]models.PlayerSlot, error)
	SaveSlot(slot *models.PlayerSlot) error
	DeleteSlot(sessionID, userID string) error
}

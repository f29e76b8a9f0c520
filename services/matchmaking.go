package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"game-session-engine/models"
	"game-session-engine/store"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	perSlotWaitSeconds     = 5
	matchedTicketRetention = 5 * time.Minute

	// Join codes are drawn from an alphabet without 0/O/1/I so they
	// survive being read out loud.
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
	joinCodeAttempts = 20
)

var allowedPlayerCounts = map[int]bool{2: true, 4: true, 6: true, 8: true}

// MatchmakingService owns the ticket store and the match creator.
// Ticket selection, session creation and ticket marking run under a
// single injected lock so concurrent attempts can never select
// overlapping ticket sets. The default is one global mutex; a
// per-group locker can be swapped in without changing the contract.
type MatchmakingService struct {
	Store    store.Store
	Notifier Notifier

	matchMu sync.Locker
}

func NewMatchmakingService(st store.Store, notifier Notifier, matchLock sync.Locker) *MatchmakingService {
	if matchLock == nil {
		matchLock = &sync.Mutex{}
	}
	return &MatchmakingService{Store: st, Notifier: notifier, matchMu: matchLock}
}

// Enqueue upserts the user's single pending ticket and returns its
// FIFO position within the (mode, playerCount) group plus a rough
// wait estimate. Re-queueing overwrites mode, count and connection
// and resets the queue position.
func (s *MatchmakingService) Enqueue(userID, connectionID, mode string, playerCount int) (*QueueStatus, error) {
	if userID == "" {
		return nil, validationErr("user id is required")
	}
	if mode == "" {
		return nil, validationErr("game mode is required")
	}
	if !allowedPlayerCounts[playerCount] {
		return nil, validationErr("player count must be one of 2, 4, 6 or 8")
	}
	if _, err := s.Store.GetActiveSessionForUser(userID); err == nil {
		return nil, validationErr("already in an active session")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	canonical := slug.Make(mode)
	ticket := &models.MatchmakingTicket{
		UserID:             userID,
		Mode:               canonical,
		DesiredPlayerCount: playerCount,
		QueuedAt:           time.Now(),
		ConnectionID:       connectionID,
	}
	if err := s.Store.SaveTicket(ticket); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	position := 0
	tickets, err := s.Store.ListUnmatchedTickets(canonical, playerCount)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].UserID == userID {
			position = i + 1
			break
		}
	}

	return &QueueStatus{
		Mode:                 canonical,
		PlayerCount:          playerCount,
		Position:             position,
		EstimatedWaitSeconds: position * perSlotWaitSeconds,
	}, nil
}

// Dequeue removes the user's unmatched ticket. It takes the matching
// lock so a ticket being removed can never also be selected by an
// in-flight match attempt.
func (s *MatchmakingService) Dequeue(userID string) error {
	s.matchMu.Lock()
	defer s.matchMu.Unlock()
	return s.Store.DeleteUnmatchedTicket(userID)
}

// QueueDepth reports how many unmatched tickets wait in a group.
func (s *MatchmakingService) QueueDepth(mode string, playerCount int) (int, error) {
	tickets, err := s.Store.ListUnmatchedTickets(slug.Make(mode), playerCount)
	if err != nil {
		return 0, err
	}
	return len(tickets), nil
}

// TryMatch attempts to form exactly one match for the group. Losing a
// race is not an error: the attempt simply reports no match.
func (s *MatchmakingService) TryMatch(mode string, playerCount int) (bool, error) {
	s.matchMu.Lock()
	defer s.matchMu.Unlock()
	return s.formMatchLocked(mode, playerCount)
}

// DrainQueues forms as many matches as possible across every waiting
// group, draining each group until fewer than playerCount tickets
// remain. Returns the number of sessions created.
func (s *MatchmakingService) DrainQueues() (int, error) {
	groups, err := s.Store.ListWaitingGroups()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, g := range groups {
		for {
			s.matchMu.Lock()
			matched, err := s.formMatchLocked(g.Mode, g.PlayerCount)
			s.matchMu.Unlock()
			if err != nil {
				log.Printf("[Matchmaker] drain %s/%d: %v", g.Mode, g.PlayerCount, err)
				break
			}
			if !matched {
				break
			}
			created++
		}
	}
	return created, nil
}

// CleanupMatchedTickets deletes matched tickets past the retention
// window to bound storage.
func (s *MatchmakingService) CleanupMatchedTickets() (int, error) {
	return s.Store.DeleteMatchedTicketsBefore(time.Now().Add(-matchedTicketRetention))
}

// formMatchLocked runs the core algorithm. Caller holds the matching
// lock. Either the full match commits (session, slots, matched flags)
// or nothing does and the tickets stay queued.
func (s *MatchmakingService) formMatchLocked(mode string, playerCount int) (bool, error) {
	tickets, err := s.Store.ListUnmatchedTickets(mode, playerCount)
	if err != nil {
		return false, err
	}
	if len(tickets) < playerCount {
		return false, nil
	}
	selected := tickets[:playerCount]

	boardSize := models.BoardSizeFor(playerCount)
	spawns := models.SpawnPositions(playerCount)

	session := &models.GameSession{
		ID:         uuid.NewString(),
		Mode:       mode,
		Status:     models.SessionWaiting,
		MaxPlayers: playerCount,
		HostUserID: selected[0].UserID,
		Food:       models.PositionList{},
		PowerUps:   models.PowerUpList{},
		Settings: models.GameSettings{
			BoardSize: boardSize,
			TickMS:    models.DefaultTickMS,
			FoodCount: models.DefaultFoodCount,
		},
	}

	slots := make([]models.PlayerSlot, playerCount)
	ticketUserIDs := make([]string, playerCount)
	for i, t := range selected {
		slots[i] = models.PlayerSlot{
			SessionID:    session.ID,
			UserID:       t.UserID,
			Index:        i,
			IsAlive:      true,
			Direction:    spawns[i].Direction,
			Body:         spawns[i].Body,
			Color:        spawns[i].Color,
			ConnectionID: t.ConnectionID,
		}
		ticketUserIDs[i] = t.UserID
	}

	committed := false
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		session.JoinCode = generateJoinCode()
		err = s.Store.CreateMatch(session, slots, ticketUserIDs)
		if err == nil {
			committed = true
			break
		}
		if errors.Is(err, store.ErrJoinCodeTaken) {
			continue
		}
		if errors.Is(err, store.ErrTicketConflict) {
			// A selected ticket vanished mid-flight; leave the rest
			// queued for the next attempt.
			log.Printf("[Matchmaker] match abandoned for %s/%d: %v", mode, playerCount, err)
			return false, nil
		}
		log.Printf("[Matchmaker] failed to persist match for %s/%d: %v", mode, playerCount, err)
		return false, nil
	}
	if !committed {
		return false, fmt.Errorf("exhausted join code attempts for %s/%d", mode, playerCount)
	}

	log.Printf("[Matchmaker] session %s (%s) created for %d players, code %s",
		session.ID, mode, playerCount, session.JoinCode)

	for i, userID := range ticketUserIDs {
		s.Notifier.AddToSession(session.ID, userID)
		s.Notifier.NotifyUser(userID, EventMatchFound, MatchFoundPayload{
			SessionID:   session.ID,
			JoinCode:    session.JoinCode,
			Mode:        session.Mode,
			PlayerCount: playerCount,
			PlayerIndex: i,
		})
	}
	return true, nil
}

func generateJoinCode() string {
	code := make([]byte, joinCodeLength)
	for i := range code {
		code[i] = joinCodeAlphabet[rand.Intn(len(joinCodeAlphabet))]
	}
	return string(code)
}

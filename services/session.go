package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"game-session-engine/models"
	"game-session-engine/store"
)

const (
	// DefaultReconnectWindow is the grace period after an ungraceful
	// disconnect during play before the sweep eliminates the player.
	DefaultReconnectWindow = 60 * time.Second

	// DefaultCountdownSeconds is announced on GameStarting and waited
	// out before the session flips to playing.
	DefaultCountdownSeconds = 3
)

// SessionService owns the session lifecycle and is the command
// surface real-time clients reach through the gateway. All mutating
// operations against one session are serialized on a per-session
// mutex; operations on different sessions run in parallel.
type SessionService struct {
	Store    store.Store
	Notifier Notifier

	ReconnectWindow  time.Duration
	CountdownSeconds int
	countdownDelay   time.Duration

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	timers map[string]*time.Timer
}

func NewSessionService(st store.Store, notifier Notifier) *SessionService {
	return &SessionService{
		Store:            st,
		Notifier:         notifier,
		ReconnectWindow:  DefaultReconnectWindow,
		CountdownSeconds: DefaultCountdownSeconds,
		countdownDelay:   DefaultCountdownSeconds * time.Second,
		locks:            make(map[string]*sync.Mutex),
		timers:           make(map[string]*time.Timer),
	}
}

func (s *SessionService) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	return m
}

// Forget drops the lock and timer bookkeeping for an archived
// session. Called after the session's rows are gone.
func (s *SessionService) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
	delete(s.locks, sessionID)
}

// --- Gateway operations ---

// Join adds the user to a waiting session found by join code.
func (s *SessionService) Join(userID, connectionID, joinCode string) (*Snapshot, error) {
	session, err := s.Store.GetActiveSessionByCode(joinCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("no open session with code %s", joinCode)
		}
		return nil, err
	}

	lock := s.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	session, err = s.Store.GetSession(session.ID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionWaiting {
		return nil, conflictErr("session is not accepting players")
	}

	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return nil, err
	}
	if len(slots) >= session.MaxPlayers {
		return nil, validationErr("session is full")
	}
	usedIndex := make(map[int]bool, len(slots))
	for i := range slots {
		if slots[i].UserID == userID {
			return nil, validationErr("already in this session")
		}
		usedIndex[slots[i].Index] = true
	}
	// Take the lowest free index so it stays within 0..maxPlayers-1
	// and the spawn seed never collides with a seated player's.
	nextIndex := 0
	for usedIndex[nextIndex] {
		nextIndex++
	}

	spawns := models.SpawnPositions(session.MaxPlayers)
	spawn := spawns[nextIndex]
	slot := &models.PlayerSlot{
		SessionID:    session.ID,
		UserID:       userID,
		Index:        nextIndex,
		IsAlive:      true,
		Direction:    spawn.Direction,
		Body:         spawn.Body,
		Color:        spawn.Color,
		ConnectionID: connectionID,
	}
	if err := s.Store.SaveSlot(slot); err != nil {
		return nil, fmt.Errorf("save slot: %w", err)
	}

	s.Notifier.NotifySessionExcept(session.ID, userID, EventPlayerJoined, slot)
	s.Notifier.AddToSession(session.ID, userID)

	return s.snapshotLocked(session)
}

// SetReady toggles the caller's ready flag while the lobby waits.
func (s *SessionService) SetReady(userID string, ready bool) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if session.Status != models.SessionWaiting {
		return conflictErr("ready state can only change while waiting")
	}
	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return translateStoreErr(err, "not part of this session")
	}
	slot.IsReady = ready
	if err := s.Store.SaveSlot(slot); err != nil {
		return err
	}

	s.Notifier.NotifySession(session.ID, EventPlayerReady, map[string]interface{}{
		"user_id": userID,
		"ready":   ready,
	})
	return nil
}

// Start begins the countdown. Host only, waiting only, all ready.
func (s *SessionService) Start(userID string) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if session.Status != models.SessionWaiting {
		return conflictErr("session already started")
	}
	if session.HostUserID != userID {
		return forbiddenErr("only the host can start the game")
	}
	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return err
	}
	for i := range slots {
		if !slots[i].IsReady {
			return conflictErr("not all players are ready")
		}
	}

	session.Status = models.SessionCountdown
	if err := s.Store.UpdateSession(session); err != nil {
		return err
	}

	s.Notifier.NotifySession(session.ID, EventGameStarting, GameStartingPayload{
		SessionID:        session.ID,
		CountdownSeconds: s.CountdownSeconds,
	})
	s.scheduleCountdown(session.ID)
	return nil
}

// Move overwrites the caller's positional fields and relays them to
// every other participant. Never echoed back to the sender.
func (s *SessionService) Move(userID, direction string, body models.PositionList, score int64) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if session.Status != models.SessionPlaying {
		return conflictErr("session is not in play")
	}
	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return translateStoreErr(err, "not part of this session")
	}
	if !slot.IsAlive {
		return conflictErr("player is eliminated")
	}

	slot.Direction = direction
	slot.Body = body
	slot.Score = score
	if err := s.Store.SaveSlot(slot); err != nil {
		return err
	}

	s.Notifier.NotifySessionExcept(session.ID, userID, EventPlayerMoved, PlayerMovedPayload{
		UserID:    userID,
		Direction: direction,
		Body:      body,
		Score:     score,
	})
	return nil
}

// UpdateEnvironment replaces the session-level food and power-up
// state. Host only, broadcast to everyone including the sender.
func (s *SessionService) UpdateEnvironment(userID string, food models.PositionList, powerUps models.PowerUpList) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if session.Status != models.SessionPlaying {
		return conflictErr("session is not in play")
	}
	if session.HostUserID != userID {
		return forbiddenErr("only the host can update the game environment")
	}

	session.Food = food
	session.PowerUps = powerUps
	if err := s.Store.UpdateSession(session); err != nil {
		return err
	}

	s.Notifier.NotifySession(session.ID, EventGameStateUpdated, GameStatePayload{
		Food:     food,
		PowerUps: powerUps,
	})
	return nil
}

// Died eliminates the caller and may finish the session.
func (s *SessionService) Died(userID string) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if session.Status != models.SessionPlaying {
		return conflictErr("session is not in play")
	}
	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return translateStoreErr(err, "not part of this session")
	}
	if !slot.IsAlive {
		return conflictErr("player is already eliminated")
	}

	if err := s.eliminateLocked(session, slot); err != nil {
		return err
	}
	return s.checkEndLocked(session)
}

// EndGame records the caller's final score and marks the run done.
// When every slot has finished the session closes out.
func (s *SessionService) EndGame(userID string, finalScore int64) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if session.Status != models.SessionPlaying {
		return conflictErr("session is not in play")
	}
	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return translateStoreErr(err, "not part of this session")
	}

	slot.Score = finalScore
	slot.IsAlive = false
	if err := s.Store.SaveSlot(slot); err != nil {
		return err
	}

	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return err
	}
	if countAlive(slots) == 0 {
		return s.finishLocked(session, EndReasonCompleted)
	}
	return nil
}

// Leave removes the caller from a lobby, or marks it dead during
// play so elimination bookkeeping survives.
func (s *SessionService) Leave(userID string) error {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return s.leaveLocked(session, userID)
}

func (s *SessionService) leaveLocked(session *models.GameSession, userID string) error {
	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return translateStoreErr(err, "not part of this session")
	}

	switch session.Status {
	case models.SessionWaiting, models.SessionCountdown:
		if err := s.Store.DeleteSlot(session.ID, userID); err != nil {
			return err
		}
		remaining, err := s.Store.ListSlots(session.ID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			s.Notifier.RemoveFromSession(session.ID, userID)
			return s.finishLocked(session, EndReasonAbandoned)
		}

		payload := PlayerLeftPayload{UserID: userID}
		if session.HostUserID == userID {
			// Host authority moves to the lowest remaining index.
			session.HostUserID = remaining[0].UserID
			payload.NewHostUserID = session.HostUserID
			if err := s.Store.UpdateSession(session); err != nil {
				return err
			}
		}
		s.Notifier.NotifySession(session.ID, EventPlayerLeft, payload)
		s.Notifier.RemoveFromSession(session.ID, userID)
		return nil

	case models.SessionPlaying:
		if slot.IsAlive {
			slot.IsAlive = false
			if err := s.Store.SaveSlot(slot); err != nil {
				return err
			}
		}
		s.Notifier.NotifySession(session.ID, EventPlayerLeft, PlayerLeftPayload{UserID: userID})
		s.Notifier.RemoveFromSession(session.ID, userID)
		return s.checkEndLocked(session)

	default:
		return conflictErr("session already finished")
	}
}

// Reconnect restores a disconnected player within the window and
// returns a full state snapshot.
func (s *SessionService) Reconnect(userID, connectionID, joinCode string) (*Snapshot, error) {
	session, err := s.Store.GetActiveSessionByCode(joinCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("no open session with code %s", joinCode)
		}
		return nil, err
	}

	lock := s.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	session, err = s.Store.GetSession(session.ID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionFinished {
		return nil, conflictErr("session already finished")
	}
	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return nil, translateStoreErr(err, "not part of this session")
	}

	wasDisconnected := slot.DisconnectedAt != nil
	if wasDisconnected {
		if time.Since(*slot.DisconnectedAt) >= s.ReconnectWindow {
			return nil, conflictErr("reconnect window expired")
		}
		slot.DisconnectedAt = nil
	}
	slot.ConnectionID = connectionID
	if err := s.Store.SaveSlot(slot); err != nil {
		return nil, err
	}

	s.Notifier.AddToSession(session.ID, userID)
	// An already-connected player resyncing (socket swap) gets the
	// snapshot without announcing a return nobody saw.
	if wasDisconnected {
		s.Notifier.NotifySessionExcept(session.ID, userID, EventPlayerReconnected, map[string]interface{}{
			"user_id": userID,
		})
	}
	return s.snapshotLocked(session)
}

// HandleDisconnect is called by the transport when a connection drops
// without a graceful leave. During play an alive player gets the
// reconnect window; a lobby member is removed as if they left. The
// dropped connection id must still be the slot's current one: a
// replaced socket's late read-loop exit is ignored so it cannot
// disconnect the player's fresh connection.
func (s *SessionService) HandleDisconnect(userID, connectionID string) {
	session, lock, err := s.lockActiveSession(userID)
	if err != nil {
		return
	}
	defer lock.Unlock()

	slot, err := s.Store.GetSlot(session.ID, userID)
	if err != nil {
		return
	}
	if slot.ConnectionID != connectionID {
		return
	}

	switch session.Status {
	case models.SessionWaiting, models.SessionCountdown:
		if err := s.leaveLocked(session, userID); err != nil {
			log.Printf("[Session] disconnect-leave %s from %s: %v", userID, session.ID, err)
		}

	case models.SessionPlaying:
		if !slot.IsAlive {
			s.Notifier.RemoveFromSession(session.ID, userID)
			return
		}
		now := time.Now()
		slot.DisconnectedAt = &now
		slot.ConnectionID = ""
		if err := s.Store.SaveSlot(slot); err != nil {
			log.Printf("[Session] failed to stamp disconnect for %s: %v", userID, err)
			return
		}
		s.Notifier.RemoveFromSession(session.ID, userID)
		s.Notifier.NotifySession(session.ID, EventPlayerDisconnected, PlayerDisconnectedPayload{
			UserID:                 userID,
			ReconnectWindowSeconds: int(s.ReconnectWindow / time.Second),
		})
	}
}

// SnapshotByCode returns a read-only view of an open session.
func (s *SessionService) SnapshotByCode(joinCode string) (*Snapshot, error) {
	session, err := s.Store.GetActiveSessionByCode(joinCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("no open session with code %s", joinCode)
		}
		return nil, err
	}
	return s.snapshotLocked(session)
}

// --- Sweep entry points ---

// ExpireDisconnected eliminates every alive slot whose reconnect
// window has lapsed. Safe to call repeatedly: a slot is eliminated
// exactly once. Used only by the sweep scheduler.
func (s *SessionService) ExpireDisconnected(sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.Store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionPlaying {
		return nil
	}
	slots, err := s.Store.ListSlots(sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	expired := false
	for i := range slots {
		slot := &slots[i]
		if !slot.IsAlive || slot.Connected() {
			continue
		}
		if now.Sub(*slot.DisconnectedAt) < s.ReconnectWindow {
			continue
		}
		if err := s.eliminateLocked(session, slot); err != nil {
			return err
		}
		expired = true
	}
	if !expired {
		return nil
	}
	return s.checkEndLocked(session)
}

// Abandon force-finishes a stale lobby.
func (s *SessionService) Abandon(sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.Store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.SessionFinished {
		return nil
	}
	return s.finishLocked(session, EndReasonAbandoned)
}

// --- internals (caller holds the session lock) ---

// lockActiveSession resolves the caller's active session and acquires
// its lock, re-reading the session under the lock.
func (s *SessionService) lockActiveSession(userID string) (*models.GameSession, *sync.Mutex, error) {
	session, err := s.Store.GetActiveSessionForUser(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, notFoundErr("not in an active session")
		}
		return nil, nil, err
	}

	lock := s.sessionLock(session.ID)
	lock.Lock()
	session, err = s.Store.GetSession(session.ID)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return session, lock, nil
}

// eliminateLocked applies the alive-before rank formula and
// broadcasts the elimination.
func (s *SessionService) eliminateLocked(session *models.GameSession, slot *models.PlayerSlot) error {
	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return err
	}
	aliveBefore := countAlive(slots)

	assignElimination(slot, aliveBefore, time.Now())
	if err := s.Store.SaveSlot(slot); err != nil {
		return err
	}

	s.Notifier.NotifySession(session.ID, EventPlayerEliminated, PlayerEliminatedPayload{
		UserID:          slot.UserID,
		EliminationRank: *slot.EliminationRank,
		AliveRemaining:  aliveBefore - 1,
	})
	return nil
}

// checkEndLocked finishes the session once at most one player
// remains alive. The last survivor is stamped rank 1.
func (s *SessionService) checkEndLocked(session *models.GameSession) error {
	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return err
	}

	var survivor *models.PlayerSlot
	alive := 0
	for i := range slots {
		if slots[i].IsAlive {
			alive++
			survivor = &slots[i]
		}
	}
	if alive > 1 {
		return nil
	}
	if alive == 1 && survivor.EliminationRank == nil {
		winnerRank := 1
		survivor.EliminationRank = &winnerRank
		if err := s.Store.SaveSlot(survivor); err != nil {
			return err
		}
	}
	return s.finishLocked(session, EndReasonCompleted)
}

// finishLocked applies the terminal transition and broadcasts the
// final standings. Any pending countdown is cancelled first so it
// cannot fire into a finished session.
func (s *SessionService) finishLocked(session *models.GameSession, reason string) error {
	s.cancelCountdown(session.ID)

	now := time.Now()
	session.Status = models.SessionFinished
	session.FinishedAt = &now
	if err := s.Store.UpdateSession(session); err != nil {
		return err
	}

	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return err
	}
	results := FinalResults(slots)

	payload := GameEndedPayload{
		SessionID:    session.ID,
		Reason:       reason,
		Results:      results,
		TotalPlayers: len(results),
	}
	if reason == EndReasonCompleted && len(results) > 0 {
		payload.WinnerUserID = results[0].UserID
	}

	s.Notifier.NotifySession(session.ID, EventGameOver, map[string]interface{}{
		"session_id": session.ID,
	})
	s.Notifier.NotifySession(session.ID, EventGameEnded, payload)

	log.Printf("[Session] %s finished (%s), %d players", session.ID, reason, len(results))
	return nil
}

func (s *SessionService) snapshotLocked(session *models.GameSession) (*Snapshot, error) {
	slots, err := s.Store.ListSlots(session.ID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: session, Players: slots}, nil
}

// --- countdown ---

// scheduleCountdown arms the deferred countdown→playing transition.
// The timer re-validates status when it fires: a session that
// finished during the delay is left alone.
func (s *SessionService) scheduleCountdown(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(s.countdownDelay, func() {
		s.completeCountdown(sessionID)
	})
}

func (s *SessionService) cancelCountdown(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

func (s *SessionService) completeCountdown(sessionID string) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	delete(s.timers, sessionID)
	s.mu.Unlock()

	session, err := s.Store.GetSession(sessionID)
	if err != nil {
		log.Printf("[Session] countdown fired for missing session %s: %v", sessionID, err)
		return
	}
	if session.Status != models.SessionCountdown {
		return
	}

	now := time.Now()
	session.Status = models.SessionPlaying
	session.StartedAt = &now
	if err := s.Store.UpdateSession(session); err != nil {
		log.Printf("[Session] failed to start %s: %v", sessionID, err)
		return
	}

	s.Notifier.NotifySession(sessionID, EventGameStarted, map[string]interface{}{
		"session_id": sessionID,
		"started_at": now,
	})
}

func translateStoreErr(err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr("%s", notFoundMsg)
	}
	return err
}

package store

import (
	"sort"
	"sync"
	"time"

	"game-session-engine/models"
)

// MemoryStore keeps the whole engine state in process memory behind a
// single RWMutex. It is the default when no DATABASE_URL is set and
// the backend the test suite runs against.
type MemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]*models.MatchmakingTicket
	sessions map[string]*models.GameSession
	slots    map[string]map[string]*models.PlayerSlot // sessionID → userID → slot
	codes    map[string]string                        // active join code → sessionID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*models.MatchmakingTicket),
		sessions: make(map[string]*models.GameSession),
		slots:    make(map[string]map[string]*models.PlayerSlot),
		codes:    make(map[string]string),
	}
}

// --- Tickets ---

func (m *MemoryStore) GetTicket(userID string) (*models.MatchmakingTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTicket(t), nil
}

func (m *MemoryStore) SaveTicket(t *models.MatchmakingTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.UserID] = copyTicket(t)
	return nil
}

func (m *MemoryStore) DeleteUnmatchedTicket(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tickets[userID]; ok && !t.Matched {
		delete(m.tickets, userID)
	}
	return nil
}

func (m *MemoryStore) ListUnmatchedTickets(mode string, playerCount int) ([]models.MatchmakingTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.MatchmakingTicket
	for _, t := range m.tickets {
		if !t.Matched && t.Mode == mode && t.DesiredPlayerCount == playerCount {
			out = append(out, *copyTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListWaitingGroups() ([]QueueGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[QueueGroup]bool)
	var out []QueueGroup
	for _, t := range m.tickets {
		if t.Matched {
			continue
		}
		g := QueueGroup{Mode: t.Mode, PlayerCount: t.DesiredPlayerCount}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mode == out[j].Mode {
			return out[i].PlayerCount < out[j].PlayerCount
		}
		return out[i].Mode < out[j].Mode
	})
	return out, nil
}

func (m *MemoryStore) DeleteMatchedTicketsBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, t := range m.tickets {
		if t.Matched && t.MatchedAt != nil && t.MatchedAt.Before(cutoff) {
			delete(m.tickets, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Sessions ---

func (m *MemoryStore) CreateMatch(session *models.GameSession, slots []models.PlayerSlot, ticketUserIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.codes[session.JoinCode]; taken {
		return ErrJoinCodeTaken
	}
	for _, userID := range ticketUserIDs {
		t, ok := m.tickets[userID]
		if !ok || t.Matched {
			return ErrTicketConflict
		}
	}

	now := time.Now()
	s := copySession(session)
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = s
	m.codes[s.JoinCode] = s.ID

	m.slots[s.ID] = make(map[string]*models.PlayerSlot, len(slots))
	for i := range slots {
		slot := copySlot(&slots[i])
		slot.CreatedAt = now
		slot.UpdatedAt = now
		m.slots[s.ID][slot.UserID] = slot
	}

	for _, userID := range ticketUserIDs {
		t := m.tickets[userID]
		t.Matched = true
		sessionID := s.ID
		t.MatchedSessionID = &sessionID
		matchedAt := now
		t.MatchedAt = &matchedAt
	}

	session.CreatedAt = now
	session.UpdatedAt = now
	return nil
}

func (m *MemoryStore) GetSession(id string) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

func (m *MemoryStore) GetActiveSessionByCode(code string) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(m.sessions[id]), nil
}

func (m *MemoryStore) GetActiveSessionForUser(userID string) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sessionID, sessionSlots := range m.slots {
		if _, ok := sessionSlots[userID]; !ok {
			continue
		}
		if s := m.sessions[sessionID]; s != nil && s.Active() {
			return copySession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateSession(s *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	updated := copySession(s)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	m.sessions[s.ID] = updated
	if updated.Status == models.SessionFinished {
		delete(m.codes, updated.JoinCode)
	}
	return nil
}

func (m *MemoryStore) ListSessionsByStatus(statuses ...string) ([]models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []models.GameSession
	for _, s := range m.sessions {
		if want[s.Status] {
			out = append(out, *copySession(s))
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryStore) ListLobbiesCreatedBefore(cutoff time.Time) ([]models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.GameSession
	for _, s := range m.sessions {
		if (s.Status == models.SessionWaiting || s.Status == models.SessionCountdown) && s.CreatedAt.Before(cutoff) {
			out = append(out, *copySession(s))
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryStore) ListFinishedBefore(cutoff time.Time) ([]models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.GameSession
	for _, s := range m.sessions {
		if s.Status == models.SessionFinished && s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			out = append(out, *copySession(s))
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryStore) DeleteSessionCascade(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.codes, s.JoinCode)
	delete(m.sessions, id)
	delete(m.slots, id)
	return nil
}

// --- Player slots ---

func (m *MemoryStore) GetSlot(sessionID, userID string) (*models.PlayerSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.slots[sessionID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySlot(slot), nil
}

func (m *MemoryStore) ListSlots(sessionID string) ([]models.PlayerSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.PlayerSlot
	for _, slot := range m.slots[sessionID] {
		out = append(out, *copySlot(slot))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemoryStore) SaveSlot(slot *models.PlayerSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionSlots, ok := m.slots[slot.SessionID]
	if !ok {
		sessionSlots = make(map[string]*models.PlayerSlot)
		m.slots[slot.SessionID] = sessionSlots
	}
	saved := copySlot(slot)
	if existing, ok := sessionSlots[slot.UserID]; ok {
		saved.CreatedAt = existing.CreatedAt
	} else {
		saved.CreatedAt = time.Now()
	}
	saved.UpdatedAt = time.Now()
	sessionSlots[slot.UserID] = saved
	return nil
}

func (m *MemoryStore) DeleteSlot(sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[sessionID][userID]; !ok {
		return ErrNotFound
	}
	delete(m.slots[sessionID], userID)
	return nil
}

// --- copies ---
// Returned records are detached copies so callers can mutate freely
// and commit through Save/Update.

func copyTicket(t *models.MatchmakingTicket) *models.MatchmakingTicket {
	c := *t
	if t.MatchedSessionID != nil {
		v := *t.MatchedSessionID
		c.MatchedSessionID = &v
	}
	if t.MatchedAt != nil {
		v := *t.MatchedAt
		c.MatchedAt = &v
	}
	return &c
}

func copySession(s *models.GameSession) *models.GameSession {
	c := *s
	c.Food = append(models.PositionList(nil), s.Food...)
	c.PowerUps = append(models.PowerUpList(nil), s.PowerUps...)
	c.Slots = nil
	if s.StartedAt != nil {
		v := *s.StartedAt
		c.StartedAt = &v
	}
	if s.FinishedAt != nil {
		v := *s.FinishedAt
		c.FinishedAt = &v
	}
	return &c
}

func copySlot(p *models.PlayerSlot) *models.PlayerSlot {
	c := *p
	c.Body = append(models.PositionList(nil), p.Body...)
	if p.DisconnectedAt != nil {
		v := *p.DisconnectedAt
		c.DisconnectedAt = &v
	}
	if p.EliminationRank != nil {
		v := *p.EliminationRank
		c.EliminationRank = &v
	}
	if p.EliminatedAt != nil {
		v := *p.EliminatedAt
		c.EliminatedAt = &v
	}
	return &c
}

func sortSessions(sessions []models.GameSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}

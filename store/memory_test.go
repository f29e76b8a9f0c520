package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"game-session-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTickets(t *testing.T, m *MemoryStore, userIDs ...string) {
	t.Helper()
	for i, id := range userIDs {
		require.NoError(t, m.SaveTicket(&models.MatchmakingTicket{
			UserID:             id,
			Mode:               "classic",
			DesiredPlayerCount: 2,
			QueuedAt:           time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
}

func makeMatch(t *testing.T, m *MemoryStore, sessionID, joinCode string, userIDs ...string) *models.GameSession {
	t.Helper()
	session := &models.GameSession{
		ID:         sessionID,
		JoinCode:   joinCode,
		Mode:       "classic",
		Status:     models.SessionWaiting,
		MaxPlayers: len(userIDs),
		HostUserID: userIDs[0],
	}
	slots := make([]models.PlayerSlot, len(userIDs))
	for i, id := range userIDs {
		slots[i] = models.PlayerSlot{SessionID: sessionID, UserID: id, Index: i, IsAlive: true}
	}
	require.NoError(t, m.CreateMatch(session, slots, userIDs))
	return session
}

func TestListUnmatchedTicketsFIFO(t *testing.T) {
	m := NewMemoryStore()

	base := time.Now()
	for i, id := range []string{"zed", "amy", "moe"} {
		require.NoError(t, m.SaveTicket(&models.MatchmakingTicket{
			UserID:             id,
			Mode:               "classic",
			DesiredPlayerCount: 2,
			QueuedAt:           base.Add(time.Duration(i) * time.Second),
		}))
	}

	tickets, err := m.ListUnmatchedTickets("classic", 2)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "zed", tickets[0].UserID)
	assert.Equal(t, "amy", tickets[1].UserID)
	assert.Equal(t, "moe", tickets[2].UserID)
}

func TestListWaitingGroups(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.SaveTicket(&models.MatchmakingTicket{UserID: "a", Mode: "classic", DesiredPlayerCount: 2, QueuedAt: time.Now()}))
	require.NoError(t, m.SaveTicket(&models.MatchmakingTicket{UserID: "b", Mode: "classic", DesiredPlayerCount: 4, QueuedAt: time.Now()}))
	require.NoError(t, m.SaveTicket(&models.MatchmakingTicket{UserID: "c", Mode: "classic", DesiredPlayerCount: 2, QueuedAt: time.Now()}))
	require.NoError(t, m.SaveTicket(&models.MatchmakingTicket{UserID: "d", Mode: "ranked", DesiredPlayerCount: 2, QueuedAt: time.Now(), Matched: true}))

	groups, err := m.ListWaitingGroups()
	require.NoError(t, err)
	assert.Equal(t, []QueueGroup{
		{Mode: "classic", PlayerCount: 2},
		{Mode: "classic", PlayerCount: 4},
	}, groups)
}

func TestCreateMatchMarksTickets(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2")

	session := makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	for _, id := range []string{"u1", "u2"} {
		ticket, err := m.GetTicket(id)
		require.NoError(t, err)
		assert.True(t, ticket.Matched)
		require.NotNil(t, ticket.MatchedSessionID)
		assert.Equal(t, session.ID, *ticket.MatchedSessionID)
		assert.NotNil(t, ticket.MatchedAt)
	}

	got, err := m.GetActiveSessionByCode("AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestCreateMatchRejectsTakenJoinCode(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2", "u3", "u4")
	makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	session := &models.GameSession{ID: "s2", JoinCode: "AAAAAA", Status: models.SessionWaiting}
	err := m.CreateMatch(session, nil, []string{"u3", "u4"})
	assert.ErrorIs(t, err, ErrJoinCodeTaken)

	// Nothing committed for the losing attempt.
	_, err = m.GetSession("s2")
	assert.ErrorIs(t, err, ErrNotFound)
	ticket, err := m.GetTicket("u3")
	require.NoError(t, err)
	assert.False(t, ticket.Matched)
}

func TestCreateMatchRejectsClaimedTickets(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2", "u3")
	makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	session := &models.GameSession{ID: "s2", JoinCode: "BBBBBB", Status: models.SessionWaiting}
	err := m.CreateMatch(session, nil, []string{"u2", "u3"})
	assert.ErrorIs(t, err, ErrTicketConflict)

	_, err = m.GetSession("s2")
	assert.ErrorIs(t, err, ErrNotFound)
	ticket, err := m.GetTicket("u3")
	require.NoError(t, err)
	assert.False(t, ticket.Matched)
}

func TestConcurrentCreateMatchSameCode(t *testing.T) {
	m := NewMemoryStore()
	const attempts = 20
	ids := make([]string, attempts)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%02d", i)
	}
	seedTickets(t, m, ids...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners, losers := 0, 0
	for i := 0; i < attempts; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := &models.GameSession{
				ID:       fmt.Sprintf("s%02d", i),
				JoinCode: "SAME01",
				Status:   models.SessionWaiting,
			}
			err := m.CreateMatch(session, nil, []string{ids[i], ids[i+1]})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, ErrJoinCodeTaken)
				losers++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts/2-1, losers)
}

func TestJoinCodeReleasedOnFinish(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2", "u3", "u4")
	session := makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	now := time.Now()
	session.Status = models.SessionFinished
	session.FinishedAt = &now
	require.NoError(t, m.UpdateSession(session))

	_, err := m.GetActiveSessionByCode("AAAAAA")
	assert.ErrorIs(t, err, ErrNotFound)

	// The code is immediately reusable.
	makeMatch(t, m, "s2", "AAAAAA", "u3", "u4")
}

func TestGetActiveSessionForUserIgnoresFinished(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2")
	session := makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	got, err := m.GetActiveSessionForUser("u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	now := time.Now()
	session.Status = models.SessionFinished
	session.FinishedAt = &now
	require.NoError(t, m.UpdateSession(session))

	_, err = m.GetActiveSessionForUser("u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionCascade(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2")
	makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	require.NoError(t, m.DeleteSessionCascade("s1"))

	_, err := m.GetSession("s1")
	assert.ErrorIs(t, err, ErrNotFound)
	slots, err := m.ListSlots("s1")
	require.NoError(t, err)
	assert.Empty(t, slots)
	_, err = m.GetActiveSessionByCode("AAAAAA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedRecordsAreDetached(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2")
	makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	session, err := m.GetSession("s1")
	require.NoError(t, err)
	session.Status = models.SessionPlaying
	session.Food = append(session.Food, models.Position{X: 1, Y: 1})

	fresh, err := m.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionWaiting, fresh.Status)
	assert.Empty(t, fresh.Food)

	slot, err := m.GetSlot("s1", "u1")
	require.NoError(t, err)
	slot.Score = 999

	freshSlot, err := m.GetSlot("s1", "u1")
	require.NoError(t, err)
	assert.Zero(t, freshSlot.Score)
}

func TestDeleteUnmatchedTicketSkipsMatched(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2")
	makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")

	require.NoError(t, m.DeleteUnmatchedTicket("u1"))

	// The matched ticket survives for the retention sweep.
	ticket, err := m.GetTicket("u1")
	require.NoError(t, err)
	assert.True(t, ticket.Matched)
}

func TestListFinishedBefore(t *testing.T) {
	m := NewMemoryStore()
	seedTickets(t, m, "u1", "u2", "u3", "u4")
	old := makeMatch(t, m, "s1", "AAAAAA", "u1", "u2")
	recent := makeMatch(t, m, "s2", "BBBBBB", "u3", "u4")

	past := time.Now().Add(-48 * time.Hour)
	old.Status = models.SessionFinished
	old.FinishedAt = &past
	require.NoError(t, m.UpdateSession(old))

	now := time.Now()
	recent.Status = models.SessionFinished
	recent.FinishedAt = &now
	require.NoError(t, m.UpdateSession(recent))

	finished, err := m.ListFinishedBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, "s1", finished[0].ID)
}

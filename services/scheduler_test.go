package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"game-session-engine/models"
	"game-session-engine/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	keys    []string
	bodies  [][]byte
	failErr error
}

func (u *fakeUploader) upload(key string, body []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failErr != nil {
		return "", u.failErr
	}
	u.keys = append(u.keys, key)
	u.bodies = append(u.bodies, body)
	return "https://cdn.example.com/" + key, nil
}

func newSweepFixture(t *testing.T, playerCount int) (*fixture, *Sweeper) {
	t.Helper()
	f := newFixture(t, playerCount)
	return f, NewSweeper(f.sessions, f.matchmaker, f.notifier)
}

func TestSweepExpiresLapsedReconnections(t *testing.T) {
	f, sweeper := newSweepFixture(t, 4)
	f.sessions.ReconnectWindow = 10 * time.Millisecond
	f.startPlaying(t)

	// One player is already out when another drops the connection.
	require.NoError(t, f.sessions.Died("p3"))
	f.sessions.HandleDisconnect("p2", "conn-p2")

	time.Sleep(30 * time.Millisecond)

	sweeper.RunOnce()

	// Three were alive when the window lapsed, so the expiry ranks 3.
	slot, err := f.store.GetSlot(f.session.ID, "p2")
	require.NoError(t, err)
	assert.False(t, slot.IsAlive)
	require.NotNil(t, slot.EliminationRank)
	assert.Equal(t, 3, *slot.EliminationRank)

	// Two players still alive, so the game goes on.
	assert.Equal(t, models.SessionPlaying, f.status(t))

	// A second sweep finds nothing new.
	sweeper.RunOnce()
	assert.Len(t, f.notifier.named(EventPlayerEliminated), 2)
}

func TestSweepLeavesOpenWindowsAlone(t *testing.T) {
	f, sweeper := newSweepFixture(t, 4)
	f.startPlaying(t)
	f.sessions.HandleDisconnect("p2", "conn-p2")

	sweeper.RunOnce()

	slot, err := f.store.GetSlot(f.session.ID, "p2")
	require.NoError(t, err)
	assert.True(t, slot.IsAlive)
	assert.Nil(t, slot.EliminationRank)
}

func TestSweepAbandonsStaleLobbies(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)
	sweeper.LobbyTTL = 0 // everything created before now is stale

	sweeper.AbandonStaleLobbies()

	assert.Equal(t, models.SessionFinished, f.status(t))
	ended := f.notifier.named(EventGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, EndReasonAbandoned, ended[0].Payload.(GameEndedPayload).Reason)
}

func TestSweepSparesFreshLobbies(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)

	sweeper.AbandonStaleLobbies()

	assert.Equal(t, models.SessionWaiting, f.status(t))
}

func TestSweepArchivesFinishedSessions(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)
	uploader := &fakeUploader{}
	sweeper.Uploader = uploader.upload
	sweeper.ArchiveRetention = 0

	f.startPlaying(t)
	require.NoError(t, f.sessions.Died("p0"))
	require.Equal(t, models.SessionFinished, f.status(t))

	sweeper.ArchiveFinishedSessions()

	_, err := f.store.GetSession(f.session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	slots, err := f.store.ListSlots(f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)

	require.Len(t, uploader.keys, 1)
	assert.Contains(t, uploader.keys[0], f.session.ID)

	var report struct {
		Session *models.GameSession `json:"session"`
		Players []models.PlayerSlot `json:"players"`
		Results []PlayerResult      `json:"results"`
	}
	require.NoError(t, json.Unmarshal(uploader.bodies[0], &report))
	assert.Equal(t, f.session.ID, report.Session.ID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "p1", report.Results[0].UserID)
}

func TestSweepKeepsSessionWhenExportFails(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)
	uploader := &fakeUploader{failErr: errors.New("bucket down")}
	sweeper.Uploader = uploader.upload
	sweeper.ArchiveRetention = 0

	f.startPlaying(t)
	require.NoError(t, f.sessions.Died("p0"))

	sweeper.ArchiveFinishedSessions()

	// Deletion is deferred until the export succeeds.
	_, err := f.store.GetSession(f.session.ID)
	assert.NoError(t, err)

	uploader.failErr = nil
	sweeper.ArchiveFinishedSessions()
	_, err = f.store.GetSession(f.session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepDeletesWithoutUploader(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)
	sweeper.ArchiveRetention = 0

	f.startPlaying(t)
	require.NoError(t, f.sessions.Died("p0"))

	sweeper.ArchiveFinishedSessions()

	_, err := f.store.GetSession(f.session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepRespectsArchiveRetention(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)

	f.startPlaying(t)
	require.NoError(t, f.sessions.Died("p0"))

	// Default retention keeps a just-finished session around.
	sweeper.ArchiveFinishedSessions()
	_, err := f.store.GetSession(f.session.ID)
	assert.NoError(t, err)
}

func TestSweepCleansMatchedTickets(t *testing.T) {
	f, sweeper := newSweepFixture(t, 2)

	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, f.store.SaveTicket(&models.MatchmakingTicket{
		UserID: "stale", Mode: "classic", DesiredPlayerCount: 2,
		Matched: true, MatchedAt: &old,
	}))

	sweeper.CleanupTickets()

	_, err := f.store.GetTicket("stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

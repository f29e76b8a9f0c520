// services/scheduler.go
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"game-session-engine/models"

	"github.com/go-co-op/gocron/v2"
)

const (
	DefaultSweepInterval    = 30 * time.Second
	DefaultLobbyTTL         = 30 * time.Minute
	DefaultArchiveRetention = 24 * time.Hour
)

// ArchiveUploadFunc exports a finished session's final report before
// its rows are deleted. Nil disables export.
type ArchiveUploadFunc func(key string, body []byte) (string, error)

// Sweeper runs the periodic maintenance passes: expire lapsed
// reconnections, abandon stale lobbies, archive old finished
// sessions and clean up matched tickets. It competes for the same
// per-session locks as live traffic.
type Sweeper struct {
	Sessions   *SessionService
	Matchmaker *MatchmakingService
	Notifier   Notifier
	Uploader   ArchiveUploadFunc

	LobbyTTL         time.Duration
	ArchiveRetention time.Duration
}

func NewSweeper(sessions *SessionService, matchmaker *MatchmakingService, notifier Notifier) *Sweeper {
	return &Sweeper{
		Sessions:         sessions,
		Matchmaker:       matchmaker,
		Notifier:         notifier,
		LobbyTTL:         DefaultLobbyTTL,
		ArchiveRetention: DefaultArchiveRetention,
	}
}

// Start schedules the sweep on a fixed interval. The returned
// scheduler is already running; shut it down on exit.
func (s *Sweeper) Start(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.RunOnce),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}

// RunOnce executes the four passes. Each pass is isolated: a failure
// in one session's processing is logged and the rest continue.
func (s *Sweeper) RunOnce() {
	s.ExpireReconnections()
	s.AbandonStaleLobbies()
	s.ArchiveFinishedSessions()
	s.CleanupTickets()
}

// ExpireReconnections eliminates players whose reconnect window
// lapsed, using the same path a voluntary death takes.
func (s *Sweeper) ExpireReconnections() {
	sessions, err := s.Sessions.Store.ListSessionsByStatus(models.SessionPlaying)
	if err != nil {
		log.Printf("[Sweep] list playing sessions: %v", err)
		return
	}
	for i := range sessions {
		if err := s.Sessions.ExpireDisconnected(sessions[i].ID); err != nil {
			log.Printf("[Sweep] expire reconnections for %s: %v", sessions[i].ID, err)
		}
	}
}

// AbandonStaleLobbies force-finishes lobbies that never started.
func (s *Sweeper) AbandonStaleLobbies() {
	cutoff := time.Now().Add(-s.LobbyTTL)
	lobbies, err := s.Sessions.Store.ListLobbiesCreatedBefore(cutoff)
	if err != nil {
		log.Printf("[Sweep] list stale lobbies: %v", err)
		return
	}
	for i := range lobbies {
		if err := s.Sessions.Abandon(lobbies[i].ID); err != nil {
			log.Printf("[Sweep] abandon lobby %s: %v", lobbies[i].ID, err)
			continue
		}
		log.Printf("[Sweep] abandoned stale lobby %s (created %s)",
			lobbies[i].ID, lobbies[i].CreatedAt.Format(time.RFC3339))
	}
}

// ArchiveFinishedSessions exports and deletes old finished sessions
// together with their slots. An export failure leaves the session in
// place for the next cycle.
func (s *Sweeper) ArchiveFinishedSessions() {
	cutoff := time.Now().Add(-s.ArchiveRetention)
	finished, err := s.Sessions.Store.ListFinishedBefore(cutoff)
	if err != nil {
		log.Printf("[Sweep] list finished sessions: %v", err)
		return
	}

	for i := range finished {
		session := &finished[i]
		if s.Uploader != nil {
			if err := s.exportSession(session); err != nil {
				log.Printf("[Sweep] export session %s: %v (will retry)", session.ID, err)
				continue
			}
		}
		if err := s.Sessions.Store.DeleteSessionCascade(session.ID); err != nil {
			log.Printf("[Sweep] archive session %s: %v", session.ID, err)
			continue
		}
		s.Notifier.DropSession(session.ID)
		s.Sessions.Forget(session.ID)
		log.Printf("[Sweep] archived session %s", session.ID)
	}
}

// CleanupTickets drops matched tickets past retention.
func (s *Sweeper) CleanupTickets() {
	deleted, err := s.Matchmaker.CleanupMatchedTickets()
	if err != nil {
		log.Printf("[Sweep] ticket cleanup: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[Sweep] deleted %d matched ticket(s)", deleted)
	}
}

func (s *Sweeper) exportSession(session *models.GameSession) error {
	slots, err := s.Sessions.Store.ListSlots(session.ID)
	if err != nil {
		return err
	}

	report := struct {
		Session *models.GameSession `json:"session"`
		Players []models.PlayerSlot `json:"players"`
		Results []PlayerResult      `json:"results"`
	}{
		Session: session,
		Players: slots,
		Results: FinalResults(slots),
	}

	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("sessions/%s/%s.json",
		session.FinishedAt.Format("2006-01-02"), session.ID)
	_, err = s.Uploader(key, body)
	return err
}

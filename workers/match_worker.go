package workers

import (
	"context"
	"log"
	"time"

	"game-session-engine/services"
)

// MatchWorker periodically drains every matchmaking group, forming as
// many sessions as the queues allow. It is the sweep-side entry into
// the match creator; the immediate path runs inline on enqueue.
type MatchWorker struct {
	Matchmaker *services.MatchmakingService
}

func NewMatchWorker(matchmaker *services.MatchmakingService) *MatchWorker {
	return &MatchWorker{Matchmaker: matchmaker}
}

// PollQueues drains the queues on a fixed interval until ctx is done.
func PollQueues(ctx context.Context, w *MatchWorker, pollInterval time.Duration) {
	log.Println("Starting matchmaking queue polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Matchmaking queue polling stopped.")
			return
		case <-ticker.C:
			created, err := w.Matchmaker.DrainQueues()
			if err != nil {
				log.Printf("[Matchmaker] queue drain failed: %v", err)
				continue
			}
			if created > 0 {
				log.Printf("[Matchmaker] drained queues, %d session(s) created", created)
			}
		}
	}
}

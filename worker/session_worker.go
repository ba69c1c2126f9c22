package worker

import (
	"context"
	"log"
	"time"

	"databender/utils"
)

// SessionWorker finalizes sessions that have gone idle past the timeout.
type SessionWorker struct {
	tracker *utils.SessionTracker
	logger  *log.Logger
}

func NewSessionWorker(tracker *utils.SessionTracker, logger *log.Logger) *SessionWorker {
	return &SessionWorker{tracker: tracker, logger: logger}
}

func (sw *SessionWorker) Start(ctx context.Context) {
	sw.logger.Println("Starting session worker...")
	ticker := time.NewTicker(5 * time.Minute)

	for {
		select {
		case <-ticker.C:
			closed, err := sw.tracker.FinalizeIdleSessions()
			if err != nil {
				sw.logger.Printf("Session finalization failed: %v", err)
				continue
			}
			if closed > 0 {
				sw.logger.Printf("Finalized %d idle sessions", closed)
			}
		case <-ctx.Done():
			sw.logger.Println("Stopping session worker...")
			ticker.Stop()
			return
		}
	}
}

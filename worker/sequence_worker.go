package worker

import (
	"context"
	"log"
	"time"

	"databender/utils"
)

// SequenceWorker triggers the daily sequence batch. The processor itself is
// idempotent; the worker only decides when to run it.
type SequenceWorker struct {
	processor *utils.SequenceProcessor
	logger    *log.Logger
	sendHour  int
	onResult  func(utils.ProcessResult)

	lastRunDate string
}

// NewSequenceWorker builds the daily worker. onResult receives each batch
// result and may be nil.
func NewSequenceWorker(processor *utils.SequenceProcessor, logger *log.Logger, sendHour int, onResult func(utils.ProcessResult)) *SequenceWorker {
	if sendHour < 0 || sendHour > 23 {
		sendHour = 9
	}
	return &SequenceWorker{
		processor: processor,
		logger:    logger,
		sendHour:  sendHour,
		onResult:  onResult,
	}
}

func (sw *SequenceWorker) Start(ctx context.Context) {
	sw.logger.Println("Starting sequence worker...")
	ticker := time.NewTicker(10 * time.Minute)

	for {
		select {
		case <-ticker.C:
			sw.maybeRun(time.Now())
		case <-ctx.Done():
			sw.logger.Println("Stopping sequence worker...")
			ticker.Stop()
			return
		}
	}
}

// maybeRun fires at most once per calendar day, at or after the configured
// send hour. The date guard survives ticker jitter and long batch times.
func (sw *SequenceWorker) maybeRun(now time.Time) {
	today := now.Format("2006-01-02")
	if now.Hour() < sw.sendHour || sw.lastRunDate == today {
		return
	}
	sw.lastRunDate = today

	sw.logger.Println("Running daily sequence batch...")
	result := sw.processor.ProcessSequenceEmails()
	sw.logger.Printf("Sequence batch done: %d processed, %d sent, %d completed, %d errors",
		result.TotalProcessed, result.EmailsSent, result.CompletedSequences, len(result.Errors))

	if sw.onResult != nil {
		sw.onResult(result)
	}
}

package worker

import (
	"context"
	"log"
	"os"
	"sync"
)

// TaskQueue runs fire-and-forget side effects (enrichment, first-step
// sends, event recording) off the request path. Handlers submit work and
// return immediately; the response never waits on these tasks.
type TaskQueue struct {
	tasks  chan func()
	wg     sync.WaitGroup
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewTaskQueue starts workers goroutines draining the queue.
func NewTaskQueue(workers, buffer int) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 64
	}
	q := &TaskQueue{
		tasks:  make(chan func(), buffer),
		logger: log.New(os.Stdout, "TASKS: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	return q
}

func (q *TaskQueue) run() {
	defer q.wg.Done()
	for task := range q.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Printf("background task panicked: %v", r)
				}
			}()
			task()
		}()
	}
}

// Submit enqueues a task. When the queue is full or already shut down the
// task is dropped with a log line: background work is best effort.
func (q *TaskQueue) Submit(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Printf("task dropped: queue shut down")
		return
	}
	select {
	case q.tasks <- task:
	default:
		q.logger.Printf("task dropped: queue full")
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones, up to the
// context deadline.
func (q *TaskQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

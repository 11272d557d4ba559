package monitor

import (
	"context"
	"time"

	"github.com/dlqrecover/pipeline/internal/queue"
	"github.com/dlqrecover/pipeline/internal/worker"
)

// pollJob adapts one queue's poll into a worker.Job so the fleet of
// discovered DLQs can be polled concurrently via worker.SpawnWorkerPool.
type pollJob struct {
	monitor *Monitor
	handle  queue.Handle
}

// pollResult satisfies worker.Result.
type pollResult struct {
	handle    queue.Handle
	processed int
	err       error
}

func (r pollResult) Error() error { return r.err }

func (j pollJob) Execute(ctx context.Context) worker.Result {
	start := time.Now()
	processed, err := j.monitor.pollQueue(ctx, j.handle)
	j.monitor.metrics.RecordPoll(j.handle.Name, time.Since(start))
	return pollResult{handle: j.handle, processed: processed, err: err}
}

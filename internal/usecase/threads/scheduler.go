package threads

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
)

// archiveScheduler owns the deferred-archive timers. Each scheduled task
// carries the generation it was issued for; the service refuses to honor a
// task whose thread has advanced past that generation, so a timer that
// fires after a reopen cannot downgrade the thread.
type archiveScheduler struct {
	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	stopped bool
	svc     *Service
}

func newArchiveScheduler(svc *Service) *archiveScheduler {
	return &archiveScheduler{
		timers: make(map[uint64]*time.Timer),
		svc:    svc,
	}
}

func (a *archiveScheduler) schedule(threadID uint64, generation uint64, delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	if existing, ok := a.timers[threadID]; ok {
		existing.Stop()
	}

	a.timers[threadID] = time.AfterFunc(delay, func() {
		a.fire(threadID, generation)
	})
}

func (a *archiveScheduler) cancel(threadID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if timer, ok := a.timers[threadID]; ok {
		timer.Stop()
		delete(a.timers, threadID)
	}
}

func (a *archiveScheduler) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	for threadID, timer := range a.timers {
		timer.Stop()
		delete(a.timers, threadID)
	}
}

func (a *archiveScheduler) fire(threadID uint64, generation uint64) {
	a.mu.Lock()
	delete(a.timers, threadID)
	stopped := a.stopped
	a.mu.Unlock()

	if stopped {
		return
	}

	ctx := context.Background()
	if err := a.svc.archiveIfGeneration(ctx, threadID, generation); err != nil {
		logging.Error(ctx, "deferred archive failed",
			slog.String("component", "threads"),
			slog.Uint64("thread_id", threadID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

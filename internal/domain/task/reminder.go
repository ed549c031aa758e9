package task

import (
	"context"
	"sync"
	"time"

	"voicetask-server-go/internal/platform/logging"
	"voicetask-server-go/internal/platform/storage"

	"voicetask-server-go/internal/domain/eventbus"
)

// Reminders polls for open tasks that have come due and announces each once.
// Announced IDs are tracked in memory, so a restart re-announces anything
// still open and overdue; clients are expected to tolerate the repeat.
type Reminders struct {
	repo     *storage.TaskRepository
	bus      *eventbus.Bus
	logger   *logging.Logger
	interval time.Duration

	mu        sync.Mutex
	announced map[string]struct{}
}

func NewReminders(repo *storage.TaskRepository, bus *eventbus.Bus, logger *logging.Logger, interval time.Duration) *Reminders {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reminders{
		repo:      repo,
		bus:       bus,
		logger:    logger,
		interval:  interval,
		announced: make(map[string]struct{}),
	}
}

// Run blocks until ctx is done, sweeping on each tick.
func (r *Reminders) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.sweep(ctx, now)
		}
	}
}

func (r *Reminders) sweep(ctx context.Context, now time.Time) {
	due, err := r.repo.DueBefore(ctx, now)
	if err != nil {
		if r.logger != nil {
			r.logger.WarnTag("TASK", "reminder sweep: %v", err)
		}
		return
	}

	for _, record := range due {
		r.mu.Lock()
		_, seen := r.announced[record.ID]
		if !seen {
			r.announced[record.ID] = struct{}{}
		}
		r.mu.Unlock()
		if seen {
			continue
		}

		if r.logger != nil {
			r.logger.InfoTag("TASK", "task due: %q", record.Title)
		}
		r.bus.PublishAsync(eventbus.EventTaskDue, eventbus.TaskEventData{
			TaskID: record.ID,
			Title:  record.Title,
			Due:    record.Due,
		})
	}
}

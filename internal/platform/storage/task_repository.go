package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

// TaskStats summarizes the store for the dashboard.
type TaskStats struct {
	Open         int64 `json:"open"`
	Done         int64 `json:"done"`
	DueToday     int64 `json:"due_today"`
	CreatedToday int64 `json:"created_today"`
}

// TaskRepository persists task records in SQLite.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, record *TaskRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "tasks.create",
			"failed to insert task", err)
	}
	return nil
}

// List returns tasks newest first. When openOnly is set, completed tasks are
// filtered out.
func (r *TaskRepository) List(ctx context.Context, openOnly bool, limit int) ([]TaskRecord, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if openOnly {
		query = query.Where("done = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []TaskRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "tasks.list",
			"failed to list tasks", err)
	}
	return records, nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*TaskRecord, error) {
	var record TaskRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "tasks.get",
			"task not found: "+id, err)
	}
	return &record, nil
}

func (r *TaskRepository) Complete(ctx context.Context, id string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&TaskRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"done": true, "completed_at": &now})
	if result.Error != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "tasks.complete",
			"failed to complete task "+id, result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.New(platformerrors.KindStorage, "tasks.complete",
			"task not found: "+id)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&TaskRecord{}, "id = ?", id)
	if result.Error != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "tasks.delete",
			"failed to delete task "+id, result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.New(platformerrors.KindStorage, "tasks.delete",
			"task not found: "+id)
	}
	return nil
}

// DueBefore returns open tasks whose due time falls before the given instant.
// The reminder scheduler polls this.
func (r *TaskRepository) DueBefore(ctx context.Context, t time.Time) ([]TaskRecord, error) {
	var records []TaskRecord
	err := r.db.WithContext(ctx).
		Where("done = ? AND due IS NOT NULL AND due <= ?", false, t).
		Order("due ASC").
		Find(&records).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "tasks.due_before",
			"failed to query due tasks", err)
	}
	return records, nil
}

func (r *TaskRepository) Stats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{}
	model := func() *gorm.DB { return r.db.WithContext(ctx).Model(&TaskRecord{}) }

	startOfDay := time.Now().Truncate(24 * time.Hour)
	endOfDay := startOfDay.Add(24 * time.Hour)

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.Open, model().Where("done = ?", false)},
		{&stats.Done, model().Where("done = ?", true)},
		{&stats.DueToday, model().
			Where("done = ? AND due >= ? AND due < ?", false, startOfDay, endOfDay)},
		{&stats.CreatedToday, model().
			Where("created_at >= ? AND created_at < ?", startOfDay, endOfDay)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindStorage, "tasks.stats",
				"failed to count tasks", err)
		}
	}
	return stats, nil
}

// Package task turns finalized transcripts into stored tasks and reminds
// about the ones coming due.
package task

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"voicetask-server-go/internal/platform/cache"
	"voicetask-server-go/internal/platform/errors"
	"voicetask-server-go/internal/platform/logging"
	"voicetask-server-go/internal/platform/storage"
	"voicetask-server-go/internal/utils"

	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/parser"
)

const statsCacheKey = "stats"

// Service coordinates parsing, persistence, and task events. The cache is
// optional; a nil cache means every stats read hits the database.
type Service struct {
	repo   *storage.TaskRepository
	bus    *eventbus.Bus
	cache  *cache.Cache
	logger *logging.Logger
}

func NewService(repo *storage.TaskRepository, bus *eventbus.Bus, c *cache.Cache, logger *logging.Logger) *Service {
	return &Service{repo: repo, bus: bus, cache: c, logger: logger}
}

// BindVoicePipeline subscribes the service to finalized transcripts so voice
// sessions create tasks without the transports knowing about parsing.
func (s *Service) BindVoicePipeline() error {
	return s.bus.Subscribe(eventbus.EventFinalResult, func(data eventbus.TranscriptEventData) {
		if !data.IsFinal || data.Text == "" {
			return
		}
		if _, err := s.CreateFromTranscript(context.Background(), data.SessionID, data.Text); err != nil && s.logger != nil {
			s.logger.WarnTag("TASK", "voice task create: %v", err)
		}
	})
}

// CreateFromTranscript parses a spoken transcript and stores the result.
func (s *Service) CreateFromTranscript(ctx context.Context, sessionID, transcript string) (*storage.TaskRecord, error) {
	cleaned := utils.CollapseWhitespace(utils.RemoveControlCharacters(transcript))
	parsed := parser.ParseSpokenTask(cleaned, time.Now())

	metadata, _ := sonic.Marshal(map[string]any{
		"session_id": sessionID,
	})
	record := &storage.TaskRecord{
		ID:            uuid.NewString(),
		Title:         parsed.Title,
		Due:           parsed.When,
		Source:        "voice",
		RawTranscript: parsed.RawTranscript,
		Metadata:      datatypes.JSON(metadata),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)

	if s.logger != nil {
		s.logger.InfoTag("TASK", "created %q from session %s", record.Title, sessionID)
	}
	if s.bus != nil {
		s.bus.PublishAsync(eventbus.EventTaskCreated, eventbus.TaskEventData{
			SessionID: sessionID,
			TaskID:    record.ID,
			Title:     record.Title,
			Due:       record.Due,
		})
	}
	return record, nil
}

// Create stores a manually entered task.
func (s *Service) Create(ctx context.Context, title string, due *time.Time) (*storage.TaskRecord, error) {
	const op = "task.Service.Create"

	if title == "" {
		return nil, errors.New(errors.KindParser, op, "title is required")
	}
	record := &storage.TaskRecord{
		ID:     uuid.NewString(),
		Title:  title,
		Due:    due,
		Source: "manual",
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)

	if s.bus != nil {
		s.bus.PublishAsync(eventbus.EventTaskCreated, eventbus.TaskEventData{
			TaskID: record.ID,
			Title:  record.Title,
			Due:    record.Due,
		})
	}
	return record, nil
}

// CreateFromText runs typed free-form input through the same parser the voice
// path uses, so "call mom tomorrow at 3pm" works from the task form too.
func (s *Service) CreateFromText(ctx context.Context, text string) (*storage.TaskRecord, error) {
	const op = "task.Service.CreateFromText"

	cleaned := utils.CollapseWhitespace(utils.RemoveControlCharacters(text))
	if cleaned == "" {
		return nil, errors.New(errors.KindParser, op, "text is required")
	}
	parsed := parser.ParseSpokenTask(cleaned, time.Now())

	record := &storage.TaskRecord{
		ID:            uuid.NewString(),
		Title:         parsed.Title,
		Due:           parsed.When,
		Source:        "typed",
		RawTranscript: parsed.RawTranscript,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)

	if s.bus != nil {
		s.bus.PublishAsync(eventbus.EventTaskCreated, eventbus.TaskEventData{
			TaskID: record.ID,
			Title:  record.Title,
			Due:    record.Due,
		})
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, openOnly bool, limit int) ([]storage.TaskRecord, error) {
	return s.repo.List(ctx, openOnly, limit)
}

func (s *Service) Get(ctx context.Context, id string) (*storage.TaskRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Complete(ctx context.Context, id string) error {
	if err := s.repo.Complete(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

// Stats serves dashboard counters, from cache when one is configured.
func (s *Service) Stats(ctx context.Context) (*storage.TaskStats, error) {
	if s.cache != nil {
		var cached storage.TaskStats
		err := s.cache.GetJSON(ctx, statsCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if err != cache.ErrMiss && s.logger != nil {
			s.logger.WarnTag("TASK", "stats cache read: %v", err)
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, statsCacheKey, stats); err != nil && s.logger != nil {
			s.logger.WarnTag("TASK", "stats cache write: %v", err)
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, statsCacheKey); err != nil && s.logger != nil {
		s.logger.WarnTag("TASK", "stats cache invalidate: %v", err)
	}
}

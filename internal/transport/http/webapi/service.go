// Package webapi exposes the task and assistant operations over a JSON API.
package webapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voicetask-server-go/internal/domain/assistant"
	"voicetask-server-go/internal/domain/task"
	"voicetask-server-go/internal/platform/config"
	"voicetask-server-go/internal/platform/errors"
	"voicetask-server-go/internal/platform/logging"
	"voicetask-server-go/internal/platform/storage"
	httptransport "voicetask-server-go/internal/transport/http"
	"voicetask-server-go/internal/utils"
)

// Service handles the /api routes.
type Service struct {
	cfg    *config.Config
	logger *logging.Logger
	tasks  *task.Service
	relay  *assistant.Relay
}

// NewService builds the API service. The relay may be nil when the assistant
// is disabled; the chat endpoint then responds with 503.
func NewService(cfg *config.Config, logger *logging.Logger, tasks *task.Service, relay *assistant.Relay) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "config is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "logger is required")
	}
	if tasks == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "task service is required")
	}

	return &Service{
		cfg:    cfg,
		logger: logger,
		tasks:  tasks,
		relay:  relay,
	}, nil
}

// Register wires the API routes onto the given group.
func (s *Service) Register(ctx context.Context, api *gin.RouterGroup) {
	api.GET("/healthz", s.handleHealth)

	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.POST("/tasks/:id/complete", s.handleCompleteTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)

	api.GET("/stats", s.handleStats)
	api.POST("/chat", s.handleChat)
}

func (s *Service) handleHealth(c *gin.Context) {
	httptransport.RespondSuccess(c, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Service) handleListTasks(c *gin.Context) {
	openOnly := c.Query("open") == "true"
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := s.tasks.List(c.Request.Context(), openOnly, limit)
	if err != nil {
		s.logger.Error("[API] list tasks failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	httptransport.RespondSuccess(c, gin.H{
		"tasks": records,
		"count": len(records),
	})
}

// createTaskRequest accepts either an explicit title with an optional due
// time, or free-form text that goes through the spoken-task parser.
type createTaskRequest struct {
	Title string     `json:"title"`
	Due   *time.Time `json:"due,omitempty"`
	Text  string     `json:"text,omitempty"`
}

func (s *Service) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		record *storage.TaskRecord
		err    error
	)
	if req.Text != "" {
		record, err = s.tasks.CreateFromText(c.Request.Context(), req.Text)
	} else {
		record, err = s.tasks.Create(c.Request.Context(), req.Title, req.Due)
	}
	if err != nil {
		if errors.IsKind(err, errors.KindParser) {
			httptransport.RespondError(c, http.StatusBadRequest, "title or text is required")
			return
		}
		s.logger.Error("[API] create task failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to create task")
		return
	}

	httptransport.RespondSuccess(c, record)
}

func (s *Service) handleGetTask(c *gin.Context) {
	record, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "task not found")
		return
	}
	httptransport.RespondSuccess(c, record)
}

func (s *Service) handleCompleteTask(c *gin.Context) {
	if err := s.tasks.Complete(c.Request.Context(), c.Param("id")); err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "task not found")
		return
	}
	httptransport.RespondSuccess(c, gin.H{"id": c.Param("id"), "done": true})
}

func (s *Service) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "task not found")
		return
	}
	httptransport.RespondSuccess(c, gin.H{"id": c.Param("id"), "deleted": true})
}

func (s *Service) handleStats(c *gin.Context) {
	stats, err := s.tasks.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("[API] stats failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to load stats")
		return
	}

	payload := gin.H{"tasks": stats}

	if mem, err := utils.GetSystemMemoryUsage(); err == nil {
		payload["memory_percent"] = mem
	}
	if cpu, err := utils.GetSystemCPUUsage(); err == nil {
		payload["cpu_percent"] = cpu
	}

	httptransport.RespondSuccess(c, payload)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

func (s *Service) handleChat(c *gin.Context) {
	if s.relay == nil {
		httptransport.RespondError(c, http.StatusServiceUnavailable, "assistant is disabled")
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "content is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = c.GetHeader("Client-Id")
	}

	reply, err := s.relay.Chat(c.Request.Context(), req.ConversationID, req.Content)
	if err != nil {
		s.logger.Error("[API] chat failed: %v", err)
		httptransport.RespondError(c, http.StatusBadGateway, "assistant request failed")
		return
	}

	httptransport.RespondSuccess(c, gin.H{
		"conversation_id": req.ConversationID,
		"reply":           reply,
	})
}

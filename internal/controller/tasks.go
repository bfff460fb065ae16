package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

// TaskRepository is the persistence the handlers need.
type TaskRepository interface {
	List(ctx context.Context, userID string, f models.FetchFilter) ([]models.Task, error)
	Create(ctx context.Context, userID string, p models.TaskPatch) (models.Task, error)
	Update(ctx context.Context, userID, id string, p models.TaskPatch) (models.Task, error)
	Delete(ctx context.Context, userID, id string) error
	ApplyBatch(ctx context.Context, userID string, ops []models.BatchOperation) (models.BatchResult, error)
	Ping(ctx context.Context) error
}

// ListCache holds each user's unfiltered list body.
type ListCache interface {
	GetRaw(ctx context.Context, userID string) ([]byte, bool)
	SetRawAsync(userID string, b []byte)
	Invalidate(ctx context.Context, userID string)
	Ping(ctx context.Context) error
}

// EventPublisher announces committed changes.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.TaskEvent) error
}

// Handler serves /v1. Writes go straight to the repository; the cache is
// invalidated and an event published so workers can re-warm it.
type Handler struct {
	repo   TaskRepository
	cache  ListCache
	events EventPublisher
	now    func() time.Time

	lists singleflight.Group
}

func New(repo TaskRepository, cache ListCache, events EventPublisher) *Handler {
	return &Handler{repo: repo, cache: cache, events: events, now: time.Now}
}

// UserKey is the gin context key holding the authenticated user id.
const UserKey = "user"

func userID(c *gin.Context) (string, bool) {
	v, _ := c.Get(UserKey)
	uid, _ := v.(string)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return uid, true
}

// Ping answers the client's reachability check.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// Health returns 200 if the process is alive. Used by load balancers.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if the database is reachable. Redis is optional and only reported.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
		return
	}
	if err := h.cache.Ping(ctx); err != nil {
		logger.Warn(ctx, "Ready: cache unavailable", "error", err)
	}
	c.String(http.StatusOK, "OK")
}

// ListTasks returns {"tasks": [...]}. The unfiltered list is served from the
// cache and concurrent misses for one user collapse into one query.
func (h *Handler) ListTasks(c *gin.Context) {
	ctx := c.Request.Context()
	uid, ok := userID(c)
	if !ok {
		return
	}
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !f.IsZero() {
		tasks, err := h.repo.List(ctx, uid, f)
		if err != nil {
			h.fail(c, "list", "", err)
			return
		}
		c.JSON(http.StatusOK, models.TaskList{Tasks: tasks})
		return
	}

	if b, ok := h.cache.GetRaw(ctx, uid); ok {
		c.Data(http.StatusOK, "application/json", b)
		return
	}
	v, err, _ := h.lists.Do(uid, func() (interface{}, error) {
		tasks, err := h.repo.List(context.WithoutCancel(ctx), uid, models.FetchFilter{})
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.TaskList{Tasks: tasks})
	})
	if err != nil {
		if ctx.Err() != nil || isContextErr(err) {
			return
		}
		h.fail(c, "list", "", err)
		return
	}
	b := v.([]byte)
	c.Data(http.StatusOK, "application/json", b)
	h.cache.SetRawAsync(uid, b)
}

func parseFilter(c *gin.Context) (models.FetchFilter, error) {
	var f models.FetchFilter
	f.Category = strings.TrimSpace(c.Query("category"))
	if s := c.Query("completed"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return f, errors.New("completed must be true or false")
		}
		f.Completed = &b
	}
	if s := c.Query("due_date"); s != "" {
		d, err := models.ParseDate(s)
		if err != nil {
			return f, errors.New("due_date must be YYYY-MM-DD")
		}
		f.DueDate = &d
	}
	if s := c.Query("upcoming"); s != "" {
		f.Upcoming, _ = strconv.ParseBool(s)
	}
	return f, nil
}

// CreateTask stores a task and answers 201 with the record.
func (h *Handler) CreateTask(c *gin.Context) {
	ctx := c.Request.Context()
	uid, ok := userID(c)
	if !ok {
		return
	}
	var p models.TaskPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if p.Text == nil || strings.TrimSpace(*p.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	t, err := h.repo.Create(ctx, uid, p)
	if err != nil {
		h.fail(c, "create", "", err)
		return
	}
	h.changed(ctx, uid, "create", t.ID)
	c.JSON(http.StatusCreated, t)
}

// UpdateTask applies a partial update and answers with the stored record.
func (h *Handler) UpdateTask(c *gin.Context) {
	ctx := c.Request.Context()
	uid, ok := userID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	var p models.TaskPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if p.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields"})
		return
	}
	t, err := h.repo.Update(ctx, uid, id, p)
	if err != nil {
		h.fail(c, "update", id, err)
		return
	}
	h.changed(ctx, uid, "update", id)
	c.JSON(http.StatusOK, t)
}

// DeleteTask soft deletes a task.
func (h *Handler) DeleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	uid, ok := userID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.repo.Delete(ctx, uid, id); err != nil {
		h.fail(c, "delete", id, err)
		return
	}
	h.changed(ctx, uid, "delete", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "message": "Task deleted"})
}

// Batch applies create/update/delete operations in one transaction.
func (h *Handler) Batch(c *gin.Context) {
	ctx := c.Request.Context()
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Operations == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operations are required"})
		return
	}
	res, err := h.repo.ApplyBatch(ctx, uid, req.Operations)
	if err != nil {
		h.fail(c, "batch", "", err)
		return
	}
	h.changed(ctx, uid, "batch", "")
	c.JSON(http.StatusOK, res)
}

func (h *Handler) changed(ctx context.Context, uid, action, id string) {
	h.cache.Invalidate(ctx, uid)
	ev := models.TaskEvent{Action: action, TaskID: id, UserID: uid, OccurredAt: h.now()}
	if err := h.events.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "Publish task event failed", "error", err, "action", action, "id", id)
	}
}

func (h *Handler) fail(c *gin.Context, op, id string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error(ctx, "Task "+op+" failed", "error", err, "id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"downbeat/internal/domain"
	"downbeat/internal/engine"
	"downbeat/internal/store"
)

// Handler wires HTTP routes to the download engine.
type Handler struct {
	engine *engine.Engine
	store  *store.Store
}

func NewHandler(eng *engine.Engine, st *store.Store) *Handler {
	return &Handler{
		engine: eng,
		store:  st,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/downloads", h.createDownload)
		api.GET("/downloads", h.listDownloads)
		api.GET("/downloads/:id", h.getDownload)
		api.DELETE("/downloads/:id", h.cancelDownload)
		api.DELETE("/downloads", h.cancelAllDownloads)
		api.POST("/downloads/:id/retry", h.retryDownload)
		api.GET("/downloads/events", h.streamEvents)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

type createDownloadRequest struct {
	Type       string `json:"type" binding:"required"`
	URL        string `json:"url" binding:"required"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	AlbumGroup string `json:"album_group"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) createDownload(c *gin.Context) {
	var req createDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, ok := domain.ParseKind(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid download type"})
		return
	}

	entries, err := h.engine.AddTask(c.Request.Context(), engine.AddRequest{
		Kind:       kind,
		URL:        req.URL,
		Name:       req.Name,
		Artist:     req.Artist,
		AlbumGroup: req.AlbumGroup,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := make([]TaskResponse, len(entries))
	for i := range entries {
		resp[i] = taskToResponse(entries[i])
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) listDownloads(c *gin.Context) {
	entries := h.store.List()

	resp := make([]TaskResponse, len(entries))
	for i := range entries {
		resp[i] = taskToResponse(entries[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getDownload(c *gin.Context) {
	entry, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}

	c.JSON(http.StatusOK, taskToResponse(entry))
}

func (h *Handler) cancelDownload(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Cancel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": id})
}

func (h *Handler) cancelAllDownloads(c *gin.Context) {
	if err := h.engine.CancelAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": "all"})
}

func (h *Handler) retryDownload(c *gin.Context) {
	id := c.Param("id")
	err := h.engine.Retry(c.Request.Context(), id)
	switch {
	case errors.Is(err, engine.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"retrying": id})
	}
}

// streamEvents pushes entry changes over server-sent events until the client
// disconnects.
func (h *Handler) streamEvents(c *gin.Context) {
	events, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), taskToResponse(ev.Entry))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type TaskResponse struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id,omitempty"`
	Type         domain.Kind   `json:"type"`
	Name         string        `json:"name,omitempty"`
	Artist       string        `json:"artist,omitempty"`
	TotalItems   int           `json:"total_items,omitempty"`
	Status       domain.Status `json:"status"`
	Message      string        `json:"message,omitempty"`
	Progress     float64       `json:"progress"`
	CurrentIndex int           `json:"current_index,omitempty"`
	ItemName     string        `json:"item_name,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryCount   int           `json:"retry_count"`
	IsRetrying   bool          `json:"is_retrying"`
	CanRetry     bool          `json:"can_retry"`
	HasEnded     bool          `json:"has_ended"`
	SourceURL    string        `json:"source_url,omitempty"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
}

func taskToResponse(entry domain.TaskEntry) TaskResponse {
	resp := TaskResponse{
		ID:         entry.InternalID,
		TaskID:     entry.ExternalTaskID,
		Type:       entry.Kind,
		Name:       entry.Display.Name,
		Artist:     entry.Display.Artist,
		TotalItems: entry.Display.TotalItems,
		Status:     entry.Status,
		Message:    entry.Message,
		Progress:   entry.Progress,
		RetryCount: entry.RetryCount,
		IsRetrying: entry.IsRetrying,
		CanRetry:   entry.CanRetry(),
		HasEnded:   entry.HasEnded,
		SourceURL:  entry.SourceURL,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  entry.LastUpdatedAt.Format(time.RFC3339),
	}
	if entry.LastUpdate != nil {
		resp.CurrentIndex = entry.LastUpdate.CurrentIndex
		resp.ItemName = entry.LastUpdate.Name
		resp.ErrorMessage = entry.LastUpdate.ErrorMessage
	}
	return resp
}

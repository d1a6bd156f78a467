// Package api exposes the ingestion and query pipeline over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devkraft/ragline/internal/chathistory"
	"github.com/devkraft/ragline/internal/ingest"
	"github.com/devkraft/ragline/internal/ragquery"
	"github.com/devkraft/ragline/pkg/logger"
)

// ingestService is the slice of the ingestor the handlers need.
type ingestService interface {
	IngestFile(ctx context.Context, path string) ingest.Result
	IngestURL(ctx context.Context, rawURL string) ingest.Result
	IngestAll(ctx context.Context) ([]ingest.Result, error)
}

// queryService is the slice of the query engine the handlers need.
type queryService interface {
	Answer(ctx context.Context, space ragquery.Space, chatID, question string) (*ragquery.Answer, error)
	AnswerStream(ctx context.Context, space ragquery.Space, chatID, question string) (<-chan ragquery.Event, error)
}

// Handler carries the service dependencies for all routes.
type Handler struct {
	ingestor ingestService
	engine   queryService
	history  chathistory.Store
	log      *logger.Logger
}

// NewHandler wires a handler.
func NewHandler(ingestor ingestService, engine queryService, history chathistory.Store, log *logger.Logger) *Handler {
	return &Handler{ingestor: ingestor, engine: engine, history: history, log: log}
}

type ingestFileRequest struct {
	Path string `json:"path" binding:"required"`
}

// IngestFile ingests a single file by path. The outcome enum is the
// response; a failed outcome is still a completed request.
func (h *Handler) IngestFile(c *gin.Context) {
	var req ingestFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	c.JSON(http.StatusOK, h.ingestor.IngestFile(c.Request.Context(), req.Path))
}

type ingestURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// IngestURL ingests a web page.
func (h *Handler) IngestURL(c *gin.Context) {
	var req ingestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	c.JSON(http.StatusOK, h.ingestor.IngestURL(c.Request.Context(), req.URL))
}

// IngestAll ingests every eligible file in the inbox and returns per-file
// outcomes in directory order.
func (h *Handler) IngestAll(c *gin.Context) {
	results, err := h.ingestor.IngestAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []ingest.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type queryRequest struct {
	Question string `json:"question" binding:"required"`
	ChatID   string `json:"chat_id"`
	Space    string `json:"space"` // "remote" (default) or "local"
}

// Query produces a complete grounded answer.
func (h *Handler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	ans, err := h.engine.Answer(c.Request.Context(), ragquery.Space(req.Space), req.ChatID, req.Question)
	if err != nil {
		h.log.WithError(err).Error("query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ans)
}

// QueryStream produces the answer as server-sent events: a start event, any
// number of chunk events, and an end event carrying the sources. Errors
// arrive as an explicit error event, never as a silently truncated stream.
func (h *Handler) QueryStream(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	events, err := h.engine.AnswerStream(c.Request.Context(), ragquery.Space(req.Space), req.ChatID, req.Question)
	if err != nil {
		h.log.WithError(err).Error("query stream failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(ev.Type, ev)
		return true
	})
}

// ListChats lists recent conversations.
func (h *Handler) ListChats(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	summaries, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if summaries == nil {
		summaries = []chathistory.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetChat returns one conversation's turns.
func (h *Handler) GetChat(c *gin.Context) {
	chatID := c.Param("id")
	turns, err := h.history.Load(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(turns) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "turns": turns})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"jarvis/internal/models"
	"jarvis/internal/service/assistant"
	"jarvis/internal/service/webhook"
)

// Notifier delivers a message to the automation webhook.
type Notifier interface {
	Notify(ctx context.Context, message any) (webhook.Result, error)
}

// Handler wires HTTP routes to the conversation dispatcher and the webhook notifier.
type Handler struct {
	dispatcher *assistant.Dispatcher
	notifier   Notifier
}

// NewHandler constructs a Handler instance.
func NewHandler(dispatcher *assistant.Dispatcher, notifier Notifier) *Handler {
	return &Handler{dispatcher: dispatcher, notifier: notifier}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	api := router.Group("/api")
	api.GET("/conversation", h.getConversation)
	api.PUT("/conversation/draft", h.setDraft)
	api.POST("/conversation/messages", h.submitMessage)
	api.GET("/conversation/events", h.streamEvents)
	api.POST("/webhook", h.notify)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getConversation(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Conversation().Snapshot())
}

type draftRequest struct {
	Text string `json:"text"`
}

func (h *Handler) setDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.dispatcher.Conversation().SetDraft(req.Text)
	c.Status(http.StatusNoContent)
}

type submitRequest struct {
	Text *string `json:"text"`
}

// submitMessage dispatches the given text, or the current draft when text is omitted.
func (h *Handler) submitMessage(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var (
		msg models.Message
		ok  bool
	)
	if req.Text == nil {
		msg, ok = h.dispatcher.SubmitDraft(c.Request.Context())
	} else {
		msg, ok = h.dispatcher.Submit(c.Request.Context(), *req.Text)
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// streamEvents pushes every appended message as an SSE "message" event until
// the client goes away.
func (h *Handler) streamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	updates, cancel := h.dispatcher.Conversation().Subscribe(0)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := sendEvent("message", msg); err != nil {
				log.Debug().Err(err).Str("component", "api").Msg("event stream closed")
				return
			}
		}
	}
}

type notifyRequest struct {
	Message any `json:"message"`
}

func (h *Handler) notify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	logger := log.With().Str("component", "webhook").Str("request_id", RequestIDFromContext(c)).Logger()
	res, err := h.notifier.Notify(c.Request.Context(), req.Message)
	switch {
	case errors.Is(err, webhook.ErrNotConfigured):
		logger.Error().Err(err).Msg("webhook not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, webhook.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Error().Err(err).Msg("webhook notify failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res.Failed() {
		logger.Warn().Str("error", res.Error).Msg("webhook delivery failed")
		c.JSON(http.StatusBadGateway, res)
		return
	}
	logger.Info().Msg("webhook delivered")
	c.JSON(http.StatusOK, res)
}

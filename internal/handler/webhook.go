package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"teleraid/internal/metrics"
	"teleraid/internal/models"
	"teleraid/internal/queue"
)

const maxWebhookBody = 4 << 20

// WebhookHandler accepts scanner webhooks and queues them for the scheduler.
type WebhookHandler struct {
	events *queue.Queue[models.Envelope]
	logger *zap.Logger
	now    func() time.Time
}

func NewWebhookHandler(events *queue.Queue[models.Envelope], logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{events: events, logger: logger, now: time.Now}
}

// Receive handles POST /. The body is either one event object or an array
// of them. Events are queued undecoded; validation happens in the scheduler.
func (h *WebhookHandler) Receive(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Failed to read body"})
		return
	}

	var envelopes []models.Envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &envelopes)
	} else {
		var env models.Envelope
		err = json.Unmarshal(trimmed, &env)
		envelopes = []models.Envelope{env}
	}
	if err != nil {
		h.logger.Warn("Rejected webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	now := h.now()
	for _, env := range envelopes {
		env.DeliveryID = uuid.NewString()
		env.ReceivedAt = now
		h.events.Push(env)
	}
	metrics.QueueDepth.Set(float64(h.events.Len()))

	h.logger.Debug("Webhook accepted", zap.Int("events", len(envelopes)))
	c.JSON(http.StatusOK, gin.H{"accepted": len(envelopes)})
}

package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/events"
	"github.com/sirupsen/logrus"
)

// WebhookHandler exposes the vendor webhook endpoints and hands payloads
// to the event dispatcher.
type WebhookHandler struct {
	dispatcher *events.Dispatcher
	logger     *logrus.Logger
}

func NewWebhookHandler(dispatcher *events.Dispatcher, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// HandleSlackEvents serves POST /webhooks/slack/events/. Slack retries on
// anything but a fast 200, so the only non-200 here is an unreadable
// body; processing happens in the background.
func (h *WebhookHandler) HandleSlackEvents(c *gin.Context) {
	var payload events.SlackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.WithError(err).Warn("Unreadable Slack payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if challenge := h.dispatcher.HandleSlack(&payload); challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}
	c.Status(http.StatusOK)
}

// HandleGithubWebhook serves POST /webhooks/github/. The raw body is
// needed for signature verification, so it is read before decoding.
func (h *WebhookHandler) HandleGithubWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var payload events.GithubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.WithError(err).Warn("Unreadable GitHub payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result := h.dispatcher.HandleGithub(c.Request.Context(), body, c.GetHeader("X-Hub-Signature-256"), &payload)
	c.JSON(result.Status, gin.H{"msg": result.Message})
}

package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/promosync/internal/webhook/domain"
	webhookservice "github.com/smallbiznis/promosync/internal/webhook/service"
)

const maxWebhookBody = 1 << 20

// HandleWebhook verifies and applies one platform change notification. The
// topic comes from the path, falling back to the topic header.
func (s *Server) HandleWebhook(c *gin.Context) {
	topic := strings.Trim(c.Param("topic"), "/")
	if topic == "" {
		topic = strings.TrimSpace(c.GetHeader(HeaderTopic))
	}
	c.Set(contextWebhookTopicKey, topic)

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhooks.Verify(payload, c.GetHeader(HeaderHmac)); err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.webhooks.Ingest(c.Request.Context(), webhookdomain.Envelope{
		EventID:     c.GetHeader(HeaderWebhookID),
		Topic:       topic,
		Shop:        c.GetHeader(HeaderShopDomain),
		TriggeredAt: webhookservice.ParseTriggeredAt(c.GetHeader(HeaderTriggeredAt)),
		Payload:     payload,
	})
	if err != nil {
		// unknown topics are acknowledged so the platform stops redelivering
		if errors.Is(err, webhookdomain.ErrUnsupportedTopic) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": webhookdomain.OutcomeIgnored})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": res.Outcome})
}

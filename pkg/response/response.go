// Package response holds the JSON bodies this service exposes. The shapes are
// part of the external contract consumed by the web client; keep them stable.
package response

import (
	"github.com/gin-gonic/gin"

	"github.com/dogparkjp/paygate/pkg/apperr"
)

// CheckoutResp is returned on a successful session creation.
type CheckoutResp struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	PointsUse int64  `json:"points_use"`
}

// WebhookResp acknowledges a verified webhook delivery.
type WebhookResp struct {
	Received bool `json:"received"`
}

// ErrorResp carries a caller-facing error message.
type ErrorResp struct {
	Error string `json:"error"`
}

// Err writes the taxonomy-mapped status and message for err.
func Err(c *gin.Context, err error) {
	status, msg := apperr.StatusAndMessage(err)
	c.JSON(status, ErrorResp{Error: msg})
}

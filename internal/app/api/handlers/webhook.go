package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dogparkjp/paygate/internal/app/service/webhookevent"
	"github.com/dogparkjp/paygate/pkg/apperr"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/response"
)

// maxWebhookBody bounds the raw payload read; gateway events are far smaller.
const maxWebhookBody = 1 << 20

// @Summary      Payment gateway webhook
// @Description  Receives signed gateway events. The body must be the raw event payload; the signature header authenticates the caller.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Event signature"
// @Success      200  {object}  response.WebhookResp
// @Failure      400  {string}  string
// @Router       /webhook [post]
func ApiGatewayWebhook(svc *webhookevent.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			logctx.FromGin(c, log).Warnw("failed to read webhook body", "error", err)
			c.String(http.StatusBadRequest, "failed to read request body")
			return
		}

		sig := c.GetHeader("Stripe-Signature")
		traceID := c.GetString("traceID")
		if err := svc.Ingest(c.Request.Context(), payload, sig, traceID); err != nil {
			logctx.FromGin(c, log).Warnw("webhook rejected", "error", err)
			if apperr.IsKind(err, apperr.KindAuth) {
				c.String(http.StatusBadRequest, "invalid signature")
				return
			}
			c.String(http.StatusInternalServerError, "failed to record event")
			return
		}
		c.JSON(http.StatusOK, response.WebhookResp{Received: true})
	}
}

func RegisterWebhookRoutes(r gin.IRouter, svc *webhookevent.Service, log *zap.SugaredLogger) {
	r.POST("/webhook", ApiGatewayWebhook(svc, log))
}

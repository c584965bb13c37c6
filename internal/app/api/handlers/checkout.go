package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dogparkjp/paygate/internal/app/api/middleware"
	"github.com/dogparkjp/paygate/internal/app/service/checkout"
	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/response"
)

// @Summary      Create checkout session
// @Description  Prices the request server-side and creates a hosted checkout session. Returns the redirect URL.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body checkout.Request true "Checkout request"
// @Success      200  {object}  response.CheckoutResp
// @Failure      400  {object}  response.ErrorResp
// @Failure      401  {object}  response.ErrorResp
// @Failure      409  {object}  response.ErrorResp
// @Router       /checkout [post]
func ApiCreateCheckout(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkout.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResp{Error: "invalid request body: " + err.Error()})
			return
		}

		userID := c.GetString("user_id")
		email := c.GetString("user_email")

		res, err := svc.CreateSession(c.Request.Context(), userID, email, &req)
		if err != nil {
			response.Err(c, err)
			return
		}
		c.JSON(http.StatusOK, response.CheckoutResp{
			SessionID: res.SessionID,
			URL:       res.URL,
			PointsUse: res.PointsUse,
		})
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, cfg *cfgpkg.Config, svc *checkout.Service) {
	r.POST("/checkout", middleware.Auth(cfg), ApiCreateCheckout(svc))
}

package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/pagebot/internal/http/handler/webhook"
)

func WebhookRouter(rg *gin.RouterGroup, h *webhook.MetaWebhookHandler) {
	rg.GET("", h.Verify)
	rg.POST("", h.HandleEvent)
}

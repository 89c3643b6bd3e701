package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basegraph.app/pagebot/internal/http/handler"
	"basegraph.app/pagebot/internal/http/handler/webhook"
	"basegraph.app/pagebot/internal/http/middleware"
)

type RouterConfig struct {
	AdminAPIKey string
	// Webhook is nil for processes that do not receive deliveries.
	Webhook *webhook.MetaWebhookHandler
	Admin   *handler.AdminHandler
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Webhook != nil {
		WebhookRouter(router.Group("/webhook"), cfg.Webhook)
	}

	if cfg.Admin != nil {
		admin := router.Group("/admin")
		admin.Use(middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
		AdminRouter(admin, cfg.Admin)
	}
}

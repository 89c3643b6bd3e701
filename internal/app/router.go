package app

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/http/middleware"
	httprouter "basegraph.app/pagebot/internal/http/router"
)

func NewRouter(cfg config.Config, routes httprouter.RouterConfig) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// otelgin must run first so recovery and access logs see the span.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.TraceHeader(cfg.Pipeline.TraceHeaderName))
	router.Use(middleware.Logger())

	routes.AdminAPIKey = cfg.AdminAPIKey
	httprouter.SetupRoutes(router, routes)
	return router
}

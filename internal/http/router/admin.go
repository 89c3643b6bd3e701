package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/pagebot/internal/http/handler"
)

func AdminRouter(rg *gin.RouterGroup, h *handler.AdminHandler) {
	rg.GET("/tenants", h.ListTenants)
	rg.GET("/tenants/:id/actions", h.ListActions)
	rg.POST("/killswitch", h.SetKillSwitch)
}

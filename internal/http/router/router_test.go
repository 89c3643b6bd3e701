package router_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/internal/http/handler"
	httprouter "basegraph.app/pagebot/internal/http/router"
	"basegraph.app/pagebot/internal/killswitch"
	"basegraph.app/pagebot/internal/service"
)

var _ = Describe("SetupRoutes", func() {
	var r *gin.Engine

	serve := func(method, path string, header map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for k, v := range header {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		r = gin.New()
		httprouter.SetupRoutes(r, httprouter.RouterConfig{
			AdminAPIKey: "secret",
			Admin:       handler.NewAdminHandler(service.NewAdminService(nil, killswitch.New(false), nil)),
		})
	})

	It("serves probes and metrics", func() {
		Expect(serve(http.MethodGet, "/health", nil).Code).To(Equal(http.StatusOK))
		metrics := serve(http.MethodGet, "/metrics", nil)
		Expect(metrics.Code).To(Equal(http.StatusOK))
		Expect(metrics.Body.String()).To(ContainSubstring("go_goroutines"))
	})

	It("guards the admin group", func() {
		Expect(serve(http.MethodGet, "/admin/tenants", nil).Code).To(Equal(http.StatusUnauthorized))
		Expect(serve(http.MethodGet, "/admin/tenants", map[string]string{"X-Admin-API-Key": "secret"}).Code).To(Equal(http.StatusOK))
	})

	It("does not mount the webhook without a handler", func() {
		Expect(serve(http.MethodGet, "/webhook", nil).Code).To(Equal(http.StatusNotFound))
	})
})

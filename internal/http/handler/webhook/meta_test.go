package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/http/handler/webhook"
	"basegraph.app/pagebot/internal/mapper"
)

type fakeSubmitter struct {
	err     error
	batches [][]domain.Event
}

func (f *fakeSubmitter) Submit(_ context.Context, events []domain.Event) error {
	f.batches = append(f.batches, events)
	return f.err
}

const feedBody = `{"object":"page","entry":[{"id":"pageX","changes":[{"field":"feed","value":{
	"item":"comment","verb":"add","comment_id":"c1","post_id":"p1","parent_id":"p1","from":{"id":"u1"}}}]}]}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("MetaWebhookHandler", func() {
	var (
		router    *gin.Engine
		submitter *fakeSubmitter
		cfg       webhook.MetaConfig
	)

	setup := func() {
		h := webhook.NewMetaWebhookHandler(mapper.NewMetaFeedMapper(), submitter, cfg)
		router = gin.New()
		router.GET("/webhook", h.Verify)
		router.POST("/webhook", h.HandleEvent)
	}

	post := func(body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		submitter = &fakeSubmitter{}
		cfg = webhook.MetaConfig{VerifyToken: "s3cret"}
		setup()
	})

	Describe("Verify", func() {
		It("echoes the challenge for a matching token", func() {
			req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=1158201444", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("1158201444"))
		})

		DescribeTable("refuses anything else",
			func(query string) {
				req := httptest.NewRequest(http.MethodGet, "/webhook?"+query, nil)
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)
				Expect(w.Code).To(Equal(http.StatusForbidden))
			},
			Entry("wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1"),
			Entry("wrong mode", "hub.mode=unsubscribe&hub.verify_token=s3cret&hub.challenge=1"),
			Entry("no parameters", ""),
		)
	})

	Describe("HandleEvent", func() {
		It("hands mapped events to the submitter and returns 200", func() {
			w := post(feedBody, nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(submitter.batches).To(HaveLen(1))
			Expect(submitter.batches[0][0].ItemID).To(Equal("c1"))
			Expect(submitter.batches[0][0].TenantID).To(Equal("pageX"))
		})

		It("returns 200 without submitting for deliveries with nothing to do", func() {
			w := post(`{"object":"page","entry":[{"id":"pageX","changes":[{"field":"feed","value":{"item":"status","verb":"edited","post_id":"p1"}}]}]}`, nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(submitter.batches).To(BeEmpty())
		})

		It("returns 200 for payloads it does not understand", func() {
			Expect(post(`not json`, nil).Code).To(Equal(http.StatusOK))
			Expect(post(`{"object":"user","entry":[]}`, nil).Code).To(Equal(http.StatusOK))
			Expect(submitter.batches).To(BeEmpty())
		})

		It("returns 503 when the hand-off fails so the delivery is retried", func() {
			submitter.err = errors.New("redis down")
			Expect(post(feedBody, nil).Code).To(Equal(http.StatusServiceUnavailable))
		})

		Context("with an app secret", func() {
			BeforeEach(func() {
				cfg.AppSecret = "appsecret"
				setup()
			})

			It("accepts a correctly signed delivery", func() {
				w := post(feedBody, map[string]string{"X-Hub-Signature-256": sign("appsecret", feedBody)})
				Expect(w.Code).To(Equal(http.StatusOK))
				Expect(submitter.batches).To(HaveLen(1))
			})

			DescribeTable("rejects bad signatures",
				func(header string) {
					w := post(feedBody, map[string]string{"X-Hub-Signature-256": header})
					Expect(w.Code).To(Equal(http.StatusForbidden))
					Expect(submitter.batches).To(BeEmpty())
				},
				Entry("missing", ""),
				Entry("wrong secret", sign("other", feedBody)),
				Entry("not hex", "sha256=zz"),
				Entry("sha1 prefix", "sha1=abcdef"),
			)
		})
	})
})

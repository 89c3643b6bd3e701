package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"basegraph.app/pagebot/internal/mapper"
	"basegraph.app/pagebot/internal/service"
)

const maxBodyBytes = 2 << 20

type MetaConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
}

type MetaWebhookHandler struct {
	mapper    mapper.EventMapper
	submitter service.Submitter
	cfg       MetaConfig
}

func NewMetaWebhookHandler(mapper mapper.EventMapper, submitter service.Submitter, cfg MetaConfig) *MetaWebhookHandler {
	return &MetaWebhookHandler{
		mapper:    mapper,
		submitter: submitter,
		cfg:       cfg,
	}
}

// Verify answers the subscription handshake.
func (h *MetaWebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")

	if mode != "subscribe" || h.cfg.VerifyToken == "" || token != h.cfg.VerifyToken {
		slog.WarnContext(c.Request.Context(), "webhook verification refused", "mode", mode)
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// HandleEvent acknowledges a feed delivery as soon as it is handed off.
// Evaluation happens after the response.
func (h *MetaWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if h.cfg.AppSecret != "" && !validSignature(h.cfg.AppSecret, c.GetHeader("X-Hub-Signature-256"), body) {
		slog.WarnContext(ctx, "webhook signature mismatch")
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	events, err := h.mapper.Map(ctx, body)
	if err != nil {
		// Anything but 200 makes the platform redeliver a payload we will
		// never understand.
		level := slog.LevelWarn
		if errors.Is(err, mapper.ErrUnsupportedObject) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "webhook payload ignored", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if len(events) == 0 {
		slog.DebugContext(ctx, "webhook delivery without actionable changes")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.submitter.Submit(ctx, events); err != nil {
		slog.ErrorContext(ctx, "failed to hand off webhook events", "error", err, "count", len(events))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		return
	}

	slog.InfoContext(ctx, "webhook events accepted", "count", len(events))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/notify"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

const defaultMaxBody = 1 << 20

// Reconciler is the subset of calls.Service the webhook handlers drive.
type Reconciler interface {
	HandleEmailRequest(ctx context.Context, req calls.EmailRequest) (calls.EmailResult, error)
	HandleTranscriptEnded(ctx context.Context, ev calls.TranscriptEnded) (calls.TranscriptResult, error)
	HandleTransfer(ctx context.Context, req calls.TransferRequest) (calls.TransferResult, error)
}

// Handlers converts webhook HTTP requests into canonical events and hands
// them to the reconciler. No reconciliation logic lives here.
type Handlers struct {
	Reconciler   Reconciler
	MaxBodyBytes int64
}

// Register mounts the webhook routes behind the secret check.
func (h Handlers) Register(r gin.IRouter, secret gin.HandlerFunc) {
	g := r.Group("/webhook", secret)
	g.POST("/email", h.Email)
	g.POST("/transcript", h.Transcript)
	g.POST("/transfer", h.Transfer)
}

// MethodNotAllowed is installed as the engine's NoMethod handler.
func MethodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "method_not_allowed"})
}

func (h Handlers) Email(c *gin.Context) {
	log := logger.FromGin(c)
	raw, ok := h.body(c, log)
	if !ok {
		return
	}
	req, err := ParseEmail(raw)
	if err != nil {
		log.Warn("email webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Reconciler.HandleEmailRequest(c.Request.Context(), req)
	if err != nil {
		h.fail(c, log, "email webhook failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "sent",
		"email_type":      res.EmailType,
		"call_id":         res.Call.CallID,
		"delivery_status": res.Event.DeliveryStatus,
	})
}

func (h Handlers) Transcript(c *gin.Context) {
	log := logger.FromGin(c)
	raw, ok := h.body(c, log)
	if !ok {
		return
	}
	event, ev, err := ParseTranscript(raw)
	if err != nil {
		log.Warn("transcript webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if event != EventCallEnded {
		log.Info("ignoring unsupported transcript event", "event", event)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": event})
		return
	}

	res, err := h.Reconciler.HandleTranscriptEnded(c.Request.Context(), ev)
	if err != nil {
		h.fail(c, log, "transcript webhook failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": res.Status})
}

func (h Handlers) Transfer(c *gin.Context) {
	log := logger.FromGin(c)
	raw, ok := h.body(c, log)
	if !ok {
		return
	}
	req, err := ParseTransfer(raw)
	if err != nil {
		log.Warn("transfer webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if _, err := h.Reconciler.HandleTransfer(c.Request.Context(), req); err != nil {
		h.fail(c, log, "transfer webhook failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) body(c *gin.Context, log *slog.Logger) ([]byte, bool) {
	if h.Reconciler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciler not configured"})
		return nil, false
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return nil, false
	}
	log.Debug("webhook payload received", "path", c.FullPath(), "payload", string(raw))
	return raw, true
}

// fail maps reconciler errors onto status codes. Internal error text never
// reaches the response body.
func (h Handlers) fail(c *gin.Context, log *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidEvent):
		log.Warn(msg, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": invalidReason(err)})
	case errors.Is(err, notify.ErrTransport):
		log.Error(msg, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "email delivery failed"})
	default:
		log.Error(msg, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// invalidReason extracts the field message from a wrapped ErrInvalidEvent.
func invalidReason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, calls.ErrInvalidEvent.Error()+": "); i >= 0 {
		return msg[i+len(calls.ErrInvalidEvent.Error())+2:]
	}
	return "invalid request"
}

// Package ingesthttp implements the ingest endpoint (C4): secret
// verification, raw body capture, normalization, dedupe-key
// construction, and a durable insert that always acknowledges 200
// unless the failure occurs below the transport layer.
package ingesthttp

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wpphooks/ingestcore/internal/dedupecache"
	"github.com/wpphooks/ingestcore/internal/metrics"
	"github.com/wpphooks/ingestcore/internal/model"
	"github.com/wpphooks/ingestcore/internal/normalizer"
	"github.com/wpphooks/ingestcore/internal/rawstore"
	"github.com/wpphooks/ingestcore/internal/telemetry"
)

// SecretLookup resolves the configured shared secret for a provider
// path segment; returns "" if unconfigured.
type SecretLookup func(provider string) string

// Handler wires the raw store into gin routes.
type Handler struct {
	Store         rawstore.Store
	SecretFor     SecretLookup
	HeaderNameFor func(provider string) string

	// DedupeCache is optional; a nil value disables the Redis
	// pre-check and every request falls straight through to the
	// authoritative unique-constraint insert.
	DedupeCache *dedupecache.Cache
}

// NewHandler constructs a Handler.
func NewHandler(store rawstore.Store, secretFor SecretLookup, headerNameFor func(string) string) *Handler {
	return &Handler{Store: store, SecretFor: secretFor, HeaderNameFor: headerNameFor}
}

// Register mounts the ingest routes onto router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.health)
	router.POST("/webhooks/:provider/:appId/events", h.ingest)
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) ingest(c *gin.Context) {
	ctx := c.Request.Context()
	provider := c.Param("provider")
	appID := c.Param("appId")
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"app_id":     appID,
		"provider":   provider,
		"request_id": c.GetHeader("X-Request-Id"),
	})

	if !h.secretValid(c, provider) {
		logger.Warn("webhook_secret_rejected")
		metrics.IngestRequestsTotal.WithLabelValues("auth_rejected").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid secret"})
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.WithError(err).Error("webhook_body_read_failed")
		metrics.IngestRequestsTotal.WithLabelValues("ingest_fault").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to read request body"})
		return
	}

	parsed := parseBody(rawBody)
	event := normalizer.Normalize(parsed)

	dedupeKey := rawstore.BuildDedupeKey(rawstore.DedupeMaterial{
		AppID:           appID,
		Kind:            event.Kind,
		ProviderEventID: event.ProviderEventID,
		MessageID:       event.MessageID,
		EventStatus:     string(event.MessageStatus),
		ISOTimestamp:    isoTimestamp(event),
		RawBody:         string(rawBody),
	})

	if h.DedupeCache != nil && h.DedupeCache.Seen(ctx, dedupeKey) {
		logger.Info("webhook_duplicate_ignored")
		metrics.IngestRequestsTotal.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	payloadJSON, err := json.Marshal(parsed)
	if err != nil {
		logger.WithError(err).Error("webhook_payload_marshal_failed")
		metrics.IngestRequestsTotal.WithLabelValues("ingest_fault").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to persist raw event"})
		return
	}

	inserted, err := h.Store.InsertRawEvent(ctx, rawstore.InsertRawEventInput{
		AppID:              appID,
		EventKind:          event.Kind,
		ProviderEventID:    ptrOrNil(event.ProviderEventID),
		MessageID:          ptrOrNil(event.MessageID),
		WhatsAppMessageID:  ptrOrNil(event.WhatsAppMessageID),
		TemplateName:       ptrOrNil(event.TemplateName),
		TemplateProviderID: ptrOrNil(event.TemplateProviderID),
		EventStatus:        ptrOrNil(string(event.MessageStatus)),
		PayloadJSON:        payloadJSON,
		DedupeKey:          dedupeKey,
	})
	if err != nil {
		logger.WithError(err).Error("webhook_raw_insert_failed")
		metrics.IngestRequestsTotal.WithLabelValues("ingest_fault").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to persist raw event"})
		return
	}

	if !inserted {
		logger.Info("webhook_duplicate_ignored")
		metrics.IngestRequestsTotal.WithLabelValues("duplicate").Inc()
	} else {
		metrics.IngestRequestsTotal.WithLabelValues("accepted").Inc()
		if h.DedupeCache != nil {
			h.DedupeCache.Record(ctx, dedupeKey)
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) secretValid(c *gin.Context, provider string) bool {
	expected := h.SecretFor(provider)
	if expected == "" {
		return false
	}
	got := c.GetHeader(h.HeaderNameFor(provider))
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

func parseBody(raw []byte) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{"_raw": "", "_empty": true}
	}
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return map[string]interface{}{"_raw": string(raw), "_format": "text/plain"}
	}
	return parsed
}

func isoTimestamp(event model.NormalizedEvent) string {
	if event.EventAt == nil {
		return ""
	}
	return event.EventAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package sse streams live document state to authenticated clients over
// server-sent events. Snapshots come through the offline manager, so the
// stream shows the same merged (remote + buffered) state the REST reads
// return.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meeplemeet/server/cache"
	"github.com/meeplemeet/server/config"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/offline"
	"go.uber.org/zap"
)

// Handler handles the SSE endpoint.
type Handler struct {
	cache  *offline.Manager
	c      cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(m *offline.Manager, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{cache: m, c: c, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>&collection=<coll>&id=<doc>.
// Each change to the watched document is delivered as a "snapshot" event.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	_, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	collection := c.Query("collection")
	docID := c.Query("id")
	if collection == "" || docID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection and id required"})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	snapCh, unsub, err := h.cache.Subscribe(subCtx, collection, docID)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Warn("sse snapshot marshal failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: snapshot\ndata: %s\n\n", payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

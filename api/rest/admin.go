package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/offline"
	"github.com/meeplemeet/server/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	cache  *offline.Manager
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, cache *offline.Manager, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, cache: cache, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var auditCount int64
	h.db.Model(&model.AuditLog{}).Count(&auditCount)
	c.JSON(http.StatusOK, gin.H{
		"network_reachable": h.cache.Reachable(),
		"pending_entities":  h.cache.PendingCount(),
		"audit_entries":     auditCount,
		"scheduler_tasks":   h.sched.ListTickers(),
	})
}

type networkStatusRequest struct {
	Reachable *bool `json:"reachable" binding:"required"`
}

// SetNetworkStatus overrides the process-wide network status. Setting it
// back to reachable triggers a synchronous flush of buffered writes.
// POST /api/admin/network
func (h *AdminHandler) SetNetworkStatus(c *gin.Context) {
	var req networkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("admin network status override", zap.Bool("reachable", *req.Reachable))
	if err := h.cache.SetNetworkStatus(c.Request.Context(), *req.Reachable); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":            "flush incomplete",
			"detail":           err.Error(),
			"pending_entities": h.cache.PendingCount(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reachable":        *req.Reachable,
		"pending_entities": h.cache.PendingCount(),
	})
}

// Flush forces a replay of buffered writes without touching the network
// status. POST /api/admin/flush
func (h *AdminHandler) Flush(c *gin.Context) {
	if err := h.cache.Flush(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":            "flush incomplete",
			"detail":           err.Error(),
			"pending_entities": h.cache.PendingCount(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_entities": h.cache.PendingCount()})
}

// PendingChanges reports an entity's buffered change map.
// GET /api/admin/pending/:collection/:id
func (h *AdminHandler) PendingChanges(c *gin.Context) {
	changes := h.cache.PendingChanges(c.Param("collection"), c.Param("id"))
	if changes == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "nothing pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// ClearCache drops every cached snapshot and buffered change.
// POST /api/admin/cache/clear
func (h *AdminHandler) ClearCache(c *gin.Context) {
	dropped := h.cache.PendingCount()
	h.cache.Clear()
	h.logger.Warn("admin cleared offline cache", zap.Int("dropped_pending", dropped))
	c.JSON(http.StatusOK, gin.H{"dropped_pending": dropped})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

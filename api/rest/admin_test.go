package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meeplemeet/server/api/rest"
	"github.com/meeplemeet/server/offline"
	"github.com/meeplemeet/server/scheduler"
	"github.com/meeplemeet/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAdminRouter(t *testing.T, adminKey string) (*gin.Engine, *offline.Manager) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	s := testutil.SetupTestStore(t)
	c, _ := testutil.SetupTestCache(t)
	logger, _ := zap.NewDevelopment()

	mgr := offline.NewManager(s, c, logger, true)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	h := rest.NewAdminHandler(db, mgr, sched, logger)
	r := gin.New()
	g := r.Group("/api/admin")
	g.Use(rest.AdminAuth(adminKey))
	g.GET("/metrics", h.Metrics)
	g.POST("/network", h.SetNetworkStatus)
	g.POST("/flush", h.Flush)
	g.GET("/pending/:collection/:id", h.PendingChanges)
	g.POST("/cache/clear", h.ClearCache)
	g.GET("/scheduler", h.ListSchedulerTasks)
	return r, mgr
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	r, _ := newAdminRouter(t, "")
	w := getJSON(r, "/api/admin/metrics", "X-Admin-Key", "anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminRejectsWrongKey(t *testing.T) {
	r, _ := newAdminRouter(t, "sekrit")
	w := getJSON(r, "/api/admin/metrics", "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminMetrics(t *testing.T) {
	r, _ := newAdminRouter(t, "sekrit")
	w := getJSON(r, "/api/admin/metrics", "X-Admin-Key", "sekrit")
	require.Equal(t, http.StatusOK, w.Code)

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, true, m["network_reachable"])
	assert.EqualValues(t, 0, m["pending_entities"])
}

func TestAdminNetworkToggleFlushes(t *testing.T) {
	r, mgr := newAdminRouter(t, "sekrit")
	ctx := context.Background()

	w := postJSON(r, "/api/admin/network",
		map[string]bool{"reachable": false}, "X-Admin-Key", "sekrit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mgr.Reachable())

	require.NoError(t, mgr.Write(ctx, "shops", "s1", map[string]any{"name": "Hexside"}))
	assert.Equal(t, 1, mgr.PendingCount())

	// Pending state is visible through the admin surface.
	w = getJSON(r, "/api/admin/pending/shops/s1", "X-Admin-Key", "sekrit")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Changes map[string]any `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hexside", resp.Changes["name"])

	w = postJSON(r, "/api/admin/network",
		map[string]bool{"reachable": true}, "X-Admin-Key", "sekrit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, mgr.PendingCount())

	w = getJSON(r, "/api/admin/pending/shops/s1", "X-Admin-Key", "sekrit")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminNetworkBadBody(t *testing.T) {
	r, _ := newAdminRouter(t, "sekrit")
	w := postJSON(r, "/api/admin/network", map[string]string{}, "X-Admin-Key", "sekrit")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminClearCacheDropsPending(t *testing.T) {
	r, mgr := newAdminRouter(t, "sekrit")
	ctx := context.Background()

	require.NoError(t, mgr.SetNetworkStatus(ctx, false))
	require.NoError(t, mgr.Write(ctx, "shops", "s1", map[string]any{"name": "lost"}))

	w := postJSON(r, "/api/admin/cache/clear", nil, "X-Admin-Key", "sekrit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, mgr.PendingCount())
}

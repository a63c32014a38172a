package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meeplemeet/server/api/rest"
	"github.com/meeplemeet/server/audit"
	"github.com/meeplemeet/server/discussion"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/notification"
	"github.com/meeplemeet/server/offline"
	"github.com/meeplemeet/server/relationship"
	"github.com/meeplemeet/server/store"
	"github.com/meeplemeet/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testAPI wires the full REST surface over in-memory backends, the same
// way main does.
type testAPI struct {
	router  *gin.Engine
	store   store.Client
	offline *offline.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	s := testutil.SetupTestStore(t)
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger, _ := zap.NewDevelopment()
	sec := testSecurity()

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	offlineMgr := offline.NewManager(s, c, logger, true)
	relEngine := relationship.NewEngine(s, logger)
	discussionSvc := discussion.NewService(s, logger)
	notifEngine := notification.NewEngine(s, relEngine, discussionSvc, logger)

	authH := rest.NewAuthHandler(s, c, sec)
	socialH := rest.NewSocialHandler(relEngine, notifEngine, auditSvc)
	notifH := rest.NewNotificationHandler(notifEngine, auditSvc)
	shopH := rest.NewShopHandler(offlineMgr)
	discH := rest.NewDiscussionHandler(discussionSvc)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/login", authH.Login)

	authed := api.Group("")
	authed.Use(mw.Auth(sec, c))
	authed.GET("/social/relationships", socialH.List)
	authed.POST("/social/request", socialH.SendRequest)
	authed.POST("/social/accept", socialH.Accept)
	authed.POST("/social/block", socialH.Block)
	authed.POST("/social/reset", socialH.Reset)
	authed.GET("/notifications", notifH.List)
	authed.POST("/notifications/invite", notifH.Invite)
	authed.POST("/notifications/:id/read", notifH.MarkRead)
	authed.POST("/notifications/:id/execute", notifH.Execute)
	authed.DELETE("/notifications/:id", notifH.Delete)
	authed.POST("/shops", shopH.Create)
	authed.GET("/shops/:id", shopH.Get)
	authed.PATCH("/shops/:id", shopH.Update)
	authed.POST("/discussions", discH.Create)
	authed.GET("/discussions/:id", discH.Get)
	authed.POST("/discussions/:id/join", discH.Join)
	authed.POST("/discussions/:id/messages", discH.PostMessage)
	authed.POST("/discussions/:id/sessions", discH.CreateSession)
	authed.GET("/sessions/:id", discH.GetSession)
	authed.POST("/sessions/:id/join", discH.JoinSession)

	return &testAPI{router: r, store: s, offline: offlineMgr}
}

// login auto-registers the handle and returns its token and account id.
func (a *testAPI) login(t *testing.T, handle string) (token, accountID string) {
	t.Helper()
	w := postJSON(a.router, "/api/auth/login", map[string]string{
		"handle":   handle,
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code, "login %s: %s", handle, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"], resp["account_id"]
}

func deleteJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func patchJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPatch, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/meeplemeet/server/api/rest"
	"github.com/meeplemeet/server/api/sse"
	"github.com/meeplemeet/server/audit"
	"github.com/meeplemeet/server/cache"
	"github.com/meeplemeet/server/config"
	dbadapter "github.com/meeplemeet/server/db"
	"github.com/meeplemeet/server/discussion"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/notification"
	"github.com/meeplemeet/server/offline"
	"github.com/meeplemeet/server/relationship"
	"github.com/meeplemeet/server/scheduler"
	"github.com/meeplemeet/server/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Document store ----
	var docs store.Client
	switch cfg.Store.Mode {
	case "mongo":
		docs, err = store.NewMongoStore(context.Background(), store.MongoConfig{
			URI:           cfg.Store.MongoURI,
			Database:      cfg.Store.MongoDatabase,
			SubscribePoll: cfg.Store.SubscribePoll,
		}, logger)
		if err != nil {
			log.Fatalf("mongo store: %v", err)
		}
	default:
		docs = store.NewGormStore(db, pubsub, logger)
	}
	logger.Info("Document store initialized", zap.String("mode", cfg.Store.Mode))

	// ---- Offline cache manager ----
	offlineMgr := offline.NewManager(docs, c, logger, cfg.Sync.StartReachable)

	// ---- Engines ----
	relEngine := relationship.NewEngine(docs, logger)
	discussionSvc := discussion.NewService(docs, logger)
	notifEngine := notification.NewEngine(docs, relEngine, discussionSvc, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("pending_gauge", time.Minute, func() {
		if n := offlineMgr.PendingCount(); n > 0 {
			logger.Warn("entities awaiting flush", zap.Int("pending", n))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(docs, c, cfg.Security)
	socialH := apirest.NewSocialHandler(relEngine, notifEngine, auditSvc)
	notifH := apirest.NewNotificationHandler(notifEngine, auditSvc)
	shopH := apirest.NewShopHandler(offlineMgr)
	discH := apirest.NewDiscussionHandler(discussionSvc)
	adminH := apirest.NewAdminHandler(db, offlineMgr, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)
		authG.GET("/me", mw.Auth(cfg.Security, c), authH.Me)

		socialG := api.Group("/social")
		socialG.Use(mw.Auth(cfg.Security, c))
		socialG.GET("/relationships", socialH.List)
		socialG.POST("/request", socialH.SendRequest)
		socialG.POST("/accept", socialH.Accept)
		socialG.POST("/block", socialH.Block)
		socialG.POST("/reset", socialH.Reset)

		notifG := api.Group("/notifications")
		notifG.Use(mw.Auth(cfg.Security, c))
		notifG.GET("", notifH.List)
		notifG.POST("/invite", notifH.Invite)
		notifG.POST("/:id/read", notifH.MarkRead)
		notifG.POST("/:id/execute", notifH.Execute)
		notifG.DELETE("/:id", notifH.Delete)

		shopsG := api.Group("/shops")
		shopsG.Use(mw.Auth(cfg.Security, c))
		shopsG.POST("", shopH.Create)
		shopsG.GET("/:id", shopH.Get)
		shopsG.PATCH("/:id", shopH.Update)

		discG := api.Group("/discussions")
		discG.Use(mw.Auth(cfg.Security, c))
		discG.POST("", discH.Create)
		discG.GET("/previews", discH.Previews)
		discG.GET("/:id", discH.Get)
		discG.POST("/:id/join", discH.Join)
		discG.POST("/:id/messages", discH.PostMessage)
		discG.POST("/:id/open", discH.Open)
		discG.POST("/:id/sessions", discH.CreateSession)

		sessG := api.Group("/sessions")
		sessG.Use(mw.Auth(cfg.Security, c))
		sessG.GET("/:id", discH.GetSession)
		sessG.POST("/:id/join", discH.JoinSession)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/network", adminH.SetNetworkStatus)
		adminG.POST("/flush", adminH.Flush)
		adminG.GET("/pending/:collection/:id", adminH.PendingChanges)
		adminG.POST("/cache/clear", adminH.ClearCache)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(offlineMgr, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

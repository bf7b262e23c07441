package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/yumetose/wardrobe/api/rest"
	"github.com/yumetose/wardrobe/api/sse"
	"github.com/yumetose/wardrobe/audit"
	"github.com/yumetose/wardrobe/cache"
	"github.com/yumetose/wardrobe/config"
	dbadapter "github.com/yumetose/wardrobe/db"
	"github.com/yumetose/wardrobe/detect"
	"github.com/yumetose/wardrobe/imagestore"
	mw "github.com/yumetose/wardrobe/middleware"
	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/scheduler"
	"github.com/yumetose/wardrobe/upload"
	"github.com/yumetose/wardrobe/wardrobe"
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
	cacheConfig := cache.CacheConfig{
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

	// ---- Image Store ----
	images := imagestore.NewStore(db, logger)
	if err := images.LoadFromDB(); err != nil {
		logger.Warn("failed to load image blobs from DB", zap.Error(err))
	} else {
		logger.Info("image blobs loaded", zap.Int("count", images.Len()))
	}

	// ---- Wardrobe Manager ----
	mgr := wardrobe.NewManager(db, c, pubsub, images, cfg.Wardrobe, logger)
	if err := mgr.Load(context.Background()); err != nil {
		log.Fatalf("wardrobe load: %v", err)
	}
	logger.Info("wardrobe collections loaded",
		zap.Int("characters", len(mgr.CharacterNames())))

	// ---- Presets ----
	presets := wardrobe.NewPresetRegistry(db, c, logger)
	if err := presets.Load(context.Background()); err != nil {
		logger.Warn("failed to load slot presets", zap.Error(err))
	}

	// ---- Detection ----
	gen := detect.NewHTTPGenerator(cfg.Detect.Endpoint, cfg.Detect.APIKey, cfg.Detect.Timeout)
	det := detect.NewDetector(gen, mgr, cfg.Detect, logger)

	// ---- Upload ----
	proc := upload.NewProcessor(cfg.Upload.MaxWidth, cfg.Upload.MaxSizeBytes, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sched.AddTicker("wardrobe_autosave", time.Duration(cfg.Wardrobe.AutosaveS)*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr.SaveDirty(ctx)
	})
	sched.AddTicker("image_flush", time.Duration(cfg.Wardrobe.ImageFlushS)*time.Second, func() {
		images.Flush()
	})

	// Flush everything on the way out.
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr.SaveDirty(ctx)
		images.Flush()
	}()

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
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	charH := apirest.NewCharacterHandler(db, mgr, logger)
	wardH := apirest.NewWardrobeHandler(mgr, auditSvc, logger)
	imgH := apirest.NewImageHandler(mgr, images, proc, auditSvc, logger)
	presetH := apirest.NewPresetHandler(presets, mgr, images, auditSvc, logger)
	detH := apirest.NewDetectHandler(det, c, cfg.Detect, logger)
	adminH := apirest.NewAdminHandler(db, mgr, images, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		charsG := api.Group("/characters")
		charsG.Use(mw.Auth(cfg.Security, c))
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)
		charsG.DELETE("/:id", charH.Delete)

		wardG := api.Group("/wardrobe/:owner")
		wardG.Use(mw.Auth(cfg.Security, c))
		wardG.GET("", wardH.Get)
		wardG.POST("/save", wardH.Save)
		wardG.GET("/summaries", wardH.Summaries)
		wardG.PUT("/filters", wardH.SetFilters)
		wardG.POST("/sort", wardH.SortByKind)
		wardG.GET("/kinds", wardH.Kinds)
		wardG.POST("/kinds/rename", wardH.RenameKind)

		wardG.POST("/slots", wardH.AddSlot)
		wardG.POST("/slots/shift", wardH.ShiftSlot)
		wardG.DELETE("/slots/:id", wardH.DeleteSlot)
		wardG.PUT("/slots/:id/value", wardH.SetValue)
		wardG.PUT("/slots/:id/enabled", wardH.SetEnabled)
		wardG.PUT("/slots/:id/equipped", wardH.SetEquipped)
		wardG.POST("/slots/:id/toggle", wardH.ToggleSlot)
		wardG.POST("/slots/:id/move", wardH.MoveSlot)
		wardG.POST("/slots/:id/rename", wardH.RenameSlot)
		wardG.POST("/slots/:id/kind", wardH.MoveToKind)

		wardG.POST("/slots/:id/images", imgH.Attach)
		wardG.DELETE("/slots/:id/images/:tag", imgH.Detach)
		wardG.POST("/slots/:id/images/:tag/activate", imgH.Activate)
		wardG.PUT("/slots/:id/images/:tag/hidden", imgH.Toggle)
		wardG.PUT("/slots/:id/images/:tag/size", imgH.Resize)
		wardG.POST("/slots/:id/apply/:tag", presetH.Apply)

		wardG.GET("/outfits", wardH.ListOutfits)
		wardG.POST("/outfits", wardH.SaveOutfit)
		wardG.GET("/outfits/:name", wardH.GetOutfit)
		wardG.POST("/outfits/:name/load", wardH.LoadOutfit)
		wardG.DELETE("/outfits/:name", wardH.DeleteOutfit)

		wardG.GET("/snapshots", wardH.ListSnapshots)
		wardG.POST("/snapshots", wardH.WriteSnapshot)
		wardG.GET("/snapshots/diff", wardH.DiffSnapshots)
		wardG.GET("/snapshots/:namespace", wardH.GetSnapshot)
		wardG.DELETE("/snapshots/:namespace", wardH.DeleteSnapshot)

		wardG.POST("/detect", detH.Run)

		imagesG := api.Group("/images")
		imagesG.Use(mw.Auth(cfg.Security, c))
		imagesG.POST("", imgH.Upload)
		imagesG.GET("/:key", imgH.GetBlob)
		imagesG.DELETE("/:key", imgH.DeleteBlob)

		presetsG := api.Group("/presets")
		presetsG.Use(mw.Auth(cfg.Security, c))
		presetsG.GET("", presetH.List)
		presetsG.GET("/recent", presetH.Recent)
		presetsG.PUT("/:tag", presetH.Put)
		presetsG.DELETE("/:tag", presetH.Delete)

		chatG := api.Group("/chat/:owner")
		chatG.Use(mw.Auth(cfg.Security, c))
		chatG.POST("/lines", detH.PushLine)
		chatG.GET("/lines", detH.Lines)

		detectG := api.Group("/detect")
		detectG.Use(mw.Auth(cfg.Security, c))
		detectG.GET("/status", detH.Status)
		detectG.POST("/enable", detH.Enable)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/owners", adminH.ListOwners)
		adminG.POST("/save", adminH.ForceSave)
		adminG.POST("/flush-images", adminH.FlushImages)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

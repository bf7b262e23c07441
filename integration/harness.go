package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	apirest "github.com/yumetose/wardrobe/api/rest"
	"github.com/yumetose/wardrobe/audit"
	"github.com/yumetose/wardrobe/cache"
	"github.com/yumetose/wardrobe/config"
	"github.com/yumetose/wardrobe/detect"
	"github.com/yumetose/wardrobe/imagestore"
	mw "github.com/yumetose/wardrobe/middleware"
	"github.com/yumetose/wardrobe/scheduler"
	"github.com/yumetose/wardrobe/testutil"
	"github.com/yumetose/wardrobe/upload"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the X-Admin-Key value accepted by the harness admin routes.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all wardrobe subsystems wired
// together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Manager *wardrobe.Manager
	Images  *imagestore.Store
	Presets *wardrobe.PresetRegistry
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	Sec     config.SecurityConfig
}

// Options tweak the wired subsystems. The zero value is a working default.
type Options struct {
	// Generator replaces the HTTP generation collaborator for detection.
	Generator detect.Generator
}

// NewTestServer creates a fully wired wardrobe server for integration
// testing. It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T, opts Options) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	detectCfg := config.DetectConfig{
		HistoryLines: 10,
		Retries:      2,
		RetryDelay:   time.Millisecond,
		MaxFailures:  5,
	}

	// ---- Wardrobe Systems ----
	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(nil) })

	images := imagestore.NewStore(db, logger)
	require.NoError(t, images.LoadFromDB())

	mgr := wardrobe.NewManager(db, c, pubsub, images, testutil.SetupWardrobeConfig(), logger)
	require.NoError(t, mgr.Load(t.Context()))

	presets := wardrobe.NewPresetRegistry(db, c, logger)
	require.NoError(t, presets.Load(t.Context()))

	gen := opts.Generator
	if gen == nil {
		gen = detect.NewHTTPGenerator("", "", time.Second)
	}
	det := detect.NewDetector(gen, mgr, detectCfg, logger)

	proc := upload.NewProcessor(256, 4<<20, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec)
	charH := apirest.NewCharacterHandler(db, mgr, logger)
	wardH := apirest.NewWardrobeHandler(mgr, auditSvc, logger)
	imgH := apirest.NewImageHandler(mgr, images, proc, auditSvc, logger)
	presetH := apirest.NewPresetHandler(presets, mgr, images, auditSvc, logger)
	detH := apirest.NewDetectHandler(det, c, detectCfg, logger)
	adminH := apirest.NewAdminHandler(db, mgr, images, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		charsG := api.Group("/characters")
		charsG.Use(mw.Auth(sec, c))
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)
		charsG.DELETE("/:id", charH.Delete)

		wardG := api.Group("/wardrobe/:owner")
		wardG.Use(mw.Auth(sec, c))
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
		imagesG.Use(mw.Auth(sec, c))
		imagesG.POST("", imgH.Upload)
		imagesG.GET("/:key", imgH.GetBlob)
		imagesG.DELETE("/:key", imgH.DeleteBlob)

		presetsG := api.Group("/presets")
		presetsG.Use(mw.Auth(sec, c))
		presetsG.GET("", presetH.List)
		presetsG.GET("/recent", presetH.Recent)
		presetsG.PUT("/:tag", presetH.Put)
		presetsG.DELETE("/:tag", presetH.Delete)

		chatG := api.Group("/chat/:owner")
		chatG.Use(mw.Auth(sec, c))
		chatG.POST("/lines", detH.PushLine)
		chatG.GET("/lines", detH.Lines)

		detectG := api.Group("/detect")
		detectG.Use(mw.Auth(sec, c))
		detectG.GET("/status", detH.Status)
		detectG.POST("/enable", detH.Enable)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/owners", adminH.ListOwners)
		adminG.POST("/save", adminH.ForceSave)
		adminG.POST("/flush-images", adminH.FlushImages)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Manager: mgr,
		Images:  images,
		Presets: presets,
		Server:  server,
		URL:     server.URL,
		Sec:     sec,
	}
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Delete sends a DELETE request with JSON body and optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest("DELETE", ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("PUT", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and account ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, accountID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	accountID = int64(result["account_id"].(float64))
	return
}

// CreateCharacter creates a character and returns its ID.
func (ts *TestServer) CreateCharacter(t *testing.T, token, name string) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/characters", map[string]interface{}{
		"name": name,
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return int64(result["id"].(float64))
}

// UniqueID returns a short unique string suitable for usernames/character names.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}

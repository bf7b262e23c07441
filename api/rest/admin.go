package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/imagestore"
	"github.com/yumetose/wardrobe/scheduler"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	mgr    *wardrobe.Manager
	images *imagestore.Store
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	mgr *wardrobe.Manager,
	images *imagestore.Store,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, mgr: mgr, images: images, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"characters":      len(h.mgr.CharacterNames()),
		"dirty_owners":    h.mgr.DirtyCount(),
		"stored_images":   h.images.Len(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListOwners returns every owner key that has ever held a wardrobe.
// GET /api/admin/owners
func (h *AdminHandler) ListOwners(c *gin.Context) {
	owners, err := h.mgr.KnownOwners(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owners": owners, "count": len(owners)})
}

// ForceSave flushes every dirty collection to the database immediately.
// POST /api/admin/save
func (h *AdminHandler) ForceSave(c *gin.Context) {
	dirty := h.mgr.DirtyCount()
	h.mgr.SaveDirty(c.Request.Context())
	h.logger.Info("admin forced save", zap.Int("dirty", dirty))
	c.JSON(http.StatusOK, gin.H{"saved": dirty})
}

// FlushImages pushes pending image blob writes and deletes to the database.
// POST /api/admin/flush-images
func (h *AdminHandler) FlushImages(c *gin.Context) {
	h.images.Flush()
	c.JSON(http.StatusOK, gin.H{"ok": true})
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

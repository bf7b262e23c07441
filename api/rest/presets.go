package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/audit"
	"github.com/yumetose/wardrobe/imagestore"
	mw "github.com/yumetose/wardrobe/middleware"
	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/outfit"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
)

// PresetHandler handles slot preset REST endpoints.
type PresetHandler struct {
	presets *wardrobe.PresetRegistry
	mgr     *wardrobe.Manager
	images  *imagestore.Store
	audit   *audit.Service
	logger  *zap.Logger
}

// NewPresetHandler creates a new PresetHandler.
func NewPresetHandler(presets *wardrobe.PresetRegistry, mgr *wardrobe.Manager, images *imagestore.Store, auditSvc *audit.Service, logger *zap.Logger) *PresetHandler {
	return &PresetHandler{presets: presets, mgr: mgr, images: images, audit: auditSvc, logger: logger}
}

// List handles GET /api/presets.
// Presets are ordered by most recent use, then by creation time.
func (h *PresetHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": h.presets.AllSorted()})
}

// Recent handles GET /api/presets/recent.
// Returns the tags newest first plus each tag's last-used timestamp.
func (h *PresetHandler) Recent(c *gin.Context) {
	limit := int64(10)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	tags, err := h.presets.RecentTags(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	lastUsed := make(map[string]time.Time, len(tags))
	for _, tag := range tags {
		if ts, ok := h.presets.LastUsed(c.Request.Context(), tag); ok {
			lastUsed[tag] = ts
		}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags, "last_used": lastUsed})
}

type putPresetRequest struct {
	Value    string `json:"value" binding:"required,min=1,max=256"`
	ImageKey string `json:"image_key"`
}

// Put handles PUT /api/presets/:tag.
// When an image key is supplied its dimensions are captured from the blob.
func (h *PresetHandler) Put(c *gin.Context) {
	tag := c.Param("tag")
	var req putPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preset := model.SlotPreset{
		Tag:       tag,
		Value:     req.Value,
		CreatedAt: time.Now(),
	}
	if req.ImageKey != "" {
		blob, found := h.images.Get(req.ImageKey)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": MsgBlobNotFound})
			return
		}
		preset.ImageKey = req.ImageKey
		preset.ImageWidth = blob.Width
		preset.ImageHeight = blob.Height
	}

	h.presets.Put(c.Request.Context(), preset)
	accountID := mw.GetAccountID(c)
	h.audit.Log(audit.AuditEntry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Action:    "preset.put",
		Request:   req,
		IP:        c.ClientIP(),
	})
	c.JSON(http.StatusCreated, gin.H{"tag": tag})
}

// Delete handles DELETE /api/presets/:tag.
func (h *PresetHandler) Delete(c *gin.Context) {
	tag := c.Param("tag")
	if !h.presets.Delete(c.Request.Context(), tag) {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgPresetNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": tag})
}

// Apply handles POST /api/wardrobe/:owner/slots/:id/apply/:tag.
// Wears the preset's value on the slot and attaches its image when present.
func (h *PresetHandler) Apply(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	id := c.Param("id")
	tag := c.Param("tag")

	var res wardrobe.ApplyPresetResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = h.presets.Apply(c.Request.Context(), tag, auto, id, h.images)
	})
	switch res {
	case wardrobe.PresetApplied:
		accountID := mw.GetAccountID(c)
		h.audit.Log(audit.AuditEntry{
			TraceID:   mw.GetTraceID(c),
			AccountID: &accountID,
			Owner:     owner.String(),
			SlotID:    id,
			Action:    "preset.apply",
			Request:   gin.H{"tag": tag},
			IP:        c.ClientIP(),
		})
		h.mgr.NotifyMutation(c.Request.Context(), owner, "preset.apply", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "tag": tag})
	case wardrobe.ApplyPresetNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgPresetNotFound})
	case wardrobe.ApplySlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case wardrobe.ApplyImageMissing:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgBlobNotFound})
	}
}

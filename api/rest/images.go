package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/audit"
	"github.com/yumetose/wardrobe/imagestore"
	mw "github.com/yumetose/wardrobe/middleware"
	"github.com/yumetose/wardrobe/outfit"
	"github.com/yumetose/wardrobe/upload"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
)

// ImageHandler handles image upload and attachment REST endpoints.
type ImageHandler struct {
	mgr    *wardrobe.Manager
	images *imagestore.Store
	proc   *upload.Processor
	audit  *audit.Service
	logger *zap.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(mgr *wardrobe.Manager, images *imagestore.Store, proc *upload.Processor, auditSvc *audit.Service, logger *zap.Logger) *ImageHandler {
	return &ImageHandler{mgr: mgr, images: images, proc: proc, audit: auditSvc, logger: logger}
}

func (h *ImageHandler) record(c *gin.Context, owner, action, slotID string, req interface{}) {
	accountID := mw.GetAccountID(c)
	h.audit.Log(audit.AuditEntry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Owner:     owner,
		SlotID:    slotID,
		Action:    action,
		Request:   req,
		IP:        c.ClientIP(),
	})
}

// Upload handles POST /api/images.
// Accepts a multipart form file under "image", downscales it, and stores it
// content-addressed. Re-uploading identical content returns the same key.
func (h *ImageHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image file"})
		return
	}
	defer f.Close()

	res, err := h.proc.Process(f)
	if errors.Is(err, upload.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": MsgUploadBusy})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := h.images.Add(res.Base64, res.Width, res.Height)
	h.record(c, "", "image.upload", "", gin.H{"key": key})
	c.JSON(http.StatusCreated, gin.H{
		"key":    key,
		"width":  res.Width,
		"height": res.Height,
	})
}

// GetBlob handles GET /api/images/:key.
func (h *ImageHandler) GetBlob(c *gin.Context) {
	blob, found := h.images.Get(c.Param("key"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgBlobNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"base64": blob.Base64,
		"width":  blob.Width,
		"height": blob.Height,
	})
}

// DeleteBlob handles DELETE /api/images/:key.
// Refuses while any slot in any outfit still references the key.
func (h *ImageHandler) DeleteBlob(c *gin.Context) {
	key := c.Param("key")
	if !h.images.TryDelete(key, h.mgr) {
		if h.images.Has(key) {
			c.JSON(http.StatusConflict, gin.H{"error": MsgImageStillInUse})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": MsgBlobNotFound})
		}
		return
	}
	h.record(c, "", "image.delete_blob", "", gin.H{"key": key})
	c.JSON(http.StatusOK, gin.H{"deleted": key})
}

type attachImageRequest struct {
	Tag string `json:"tag" binding:"required,min=1,max=64"`
	Key string `json:"key" binding:"required,len=64"`
}

// Attach handles POST /api/wardrobe/:owner/slots/:id/images.
func (h *ImageHandler) Attach(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req attachImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")

	var st outfit.AttachImageStatus
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		st = auto.AttachImage(id, req.Tag, req.Key, h.images)
	})
	switch st {
	case outfit.ImageAttached:
		h.record(c, owner.String(), "image.attach", id, req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "image.attach", id)
		c.JSON(http.StatusCreated, gin.H{"id": id, "tag": req.Tag, "key": req.Key})
	case outfit.AttachSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.AttachBlobMissing:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgBlobNotFound})
	}
}

// Detach handles DELETE /api/wardrobe/:owner/slots/:id/images/:tag.
// After removing the reference it attempts reference-counted blob cleanup;
// the blob survives if any other slot still points at it.
func (h *ImageHandler) Detach(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	id := c.Param("id")
	tag := c.Param("tag")

	var res outfit.DeleteImageResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.DeleteImage(id, tag)
	})
	switch res.Status {
	case outfit.ImageDeleted:
		blobRemoved := h.images.TryDelete(res.RemovedKey, h.mgr)
		h.record(c, owner.String(), "image.detach", id, gin.H{"tag": tag})
		h.mgr.NotifyMutation(c.Request.Context(), owner, "image.detach", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "tag": tag, "blob_removed": blobRemoved})
	case outfit.DeleteImageSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.DeleteImageTagNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgImageNotFound})
	}
}

// Activate handles POST /api/wardrobe/:owner/slots/:id/images/:tag/activate.
func (h *ImageHandler) Activate(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	id := c.Param("id")
	tag := c.Param("tag")

	var st outfit.SetActiveImageResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		st = auto.SetActiveImage(id, tag)
	})
	switch st {
	case outfit.ActiveImageSet:
		h.record(c, owner.String(), "image.activate", id, gin.H{"tag": tag})
		h.mgr.NotifyMutation(c.Request.Context(), owner, "image.activate", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "active": tag})
	case outfit.ActiveImageAlready:
		c.JSON(http.StatusOK, gin.H{"id": id, "active": tag, "noop": true})
	case outfit.SetActiveSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.SetActiveImageMissing:
		// The tag was still recorded as active. Report the missing record but
		// keep the mutation.
		h.mgr.NotifyMutation(c.Request.Context(), owner, "image.activate", id)
		c.JSON(http.StatusNotFound, gin.H{"error": MsgImageNotFound, "active": tag})
	}
}

type toggleImageRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}

// Toggle handles PUT /api/wardrobe/:owner/slots/:id/images/:tag/hidden.
func (h *ImageHandler) Toggle(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req toggleImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	tag := c.Param("tag")

	var st outfit.ToggleImageResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		st = auto.ToggleImage(id, tag, *req.Hidden)
	})
	switch st {
	case outfit.ImageToggled:
		h.record(c, owner.String(), "image.toggle", id, gin.H{"tag": tag, "hidden": *req.Hidden})
		h.mgr.NotifyMutation(c.Request.Context(), owner, "image.toggle", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "tag": tag, "hidden": *req.Hidden})
	case outfit.ToggleImageAlreadySet:
		c.JSON(http.StatusOK, gin.H{"id": id, "tag": tag, "hidden": *req.Hidden, "noop": true})
	case outfit.ToggleImageSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.ToggleImageTagNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgImageNotFound})
	}
}

type resizeImageRequest struct {
	Width  int `json:"width"  binding:"required,min=1"`
	Height int `json:"height" binding:"required,min=1"`
}

// Resize handles PUT /api/wardrobe/:owner/slots/:id/images/:tag/size.
// Adjusts the recorded display dimensions of one attachment, not the blob.
func (h *ImageHandler) Resize(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req resizeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	tag := c.Param("tag")

	var st outfit.ResizeImageResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		st = auto.ResizeImage(id, tag, req.Width, req.Height)
	})
	switch st {
	case outfit.ImageResized:
		h.record(c, owner.String(), "image.resize", id, req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "image.resize", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "tag": tag, "width": req.Width, "height": req.Height})
	case outfit.ResizeImageNoop:
		c.JSON(http.StatusOK, gin.H{"id": id, "tag": tag, "noop": true})
	case outfit.ResizeImageSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.ResizeImageTagNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgImageNotFound})
	}
}

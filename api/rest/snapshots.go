package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/outfit"
)

// ListSnapshots handles GET /api/wardrobe/:owner/snapshots.
func (h *WardrobeHandler) ListSnapshots(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var namespaces []string
	h.mgr.With(owner, func(view outfit.CollectionView) {
		namespaces = view.Snapshots().Namespaces()
	})
	c.JSON(http.StatusOK, gin.H{"namespaces": namespaces})
}

type writeSnapshotRequest struct {
	Namespace string `json:"namespace" binding:"required,min=1,max=64"`
}

// WriteSnapshot handles POST /api/wardrobe/:owner/snapshots.
// Captures the current slot values of the live outfit under a namespace,
// overwriting any snapshot previously recorded there.
func (h *WardrobeHandler) WriteSnapshot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req writeSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var snap *outfit.CachedSnapshot
	h.mgr.With(owner, func(view outfit.CollectionView) {
		values := view.Auto().Values()
		slots := make(map[string]string, len(values))
		for id, v := range values {
			slots[id] = v.String()
		}
		snap = view.Snapshots().Write(req.Namespace, slots)
	})
	h.record(c, owner, "snapshot.write", "", req)
	h.mgr.MarkDirty(owner)
	c.JSON(http.StatusCreated, gin.H{
		"namespace":  snap.Namespace,
		"slots":      snap.Slots,
		"created_at": snap.CreatedAt,
	})
}

// GetSnapshot handles GET /api/wardrobe/:owner/snapshots/:namespace.
func (h *WardrobeHandler) GetSnapshot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var (
		snap  *outfit.CachedSnapshot
		found bool
	)
	h.mgr.With(owner, func(view outfit.CollectionView) {
		snap, found = view.Snapshots().Get(c.Param("namespace"))
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSnapshotNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"namespace":  snap.Namespace,
		"slots":      snap.Slots,
		"created_at": snap.CreatedAt,
	})
}

// DeleteSnapshot handles DELETE /api/wardrobe/:owner/snapshots/:namespace.
func (h *WardrobeHandler) DeleteSnapshot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	ns := c.Param("namespace")
	var deleted bool
	h.mgr.With(owner, func(view outfit.CollectionView) {
		deleted = view.Snapshots().Delete(ns)
	})
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSnapshotNotFound})
		return
	}
	h.record(c, owner, "snapshot.delete", "", gin.H{"namespace": ns})
	h.mgr.MarkDirty(owner)
	c.JSON(http.StatusOK, gin.H{"deleted": ns})
}

// DiffSnapshots handles GET /api/wardrobe/:owner/snapshots/diff?from=&to=.
// Identical namespaces short-circuit to an empty diff.
func (h *WardrobeHandler) DiffSnapshots(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to namespaces are required"})
		return
	}

	var (
		diff  outfit.SnapshotDiff
		found bool
	)
	h.mgr.With(owner, func(view outfit.CollectionView) {
		diff, found = view.Snapshots().Diff(from, to)
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSnapshotNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"to":      to,
		"added":   diff.Added,
		"removed": diff.Removed,
		"changed": diff.Changed,
	})
}

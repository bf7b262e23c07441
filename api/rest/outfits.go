package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/outfit"
)

// ListOutfits handles GET /api/wardrobe/:owner/outfits.
func (h *WardrobeHandler) ListOutfits(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var names []string
	h.mgr.With(owner, func(view outfit.CollectionView) {
		names = view.SavedNames()
	})
	c.JSON(http.StatusOK, gin.H{"outfits": names})
}

type saveOutfitRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// SaveOutfit handles POST /api/wardrobe/:owner/outfits.
// Stores a copy of the live outfit under the given name, replacing any
// previous outfit saved under it.
func (h *WardrobeHandler) SaveOutfit(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req saveOutfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mgr.With(owner, func(view outfit.CollectionView) {
		view.SaveOutfit(req.Name)
	})
	h.record(c, owner, "outfit.save", "", req)
	h.mgr.MarkDirty(owner)
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

// GetOutfit handles GET /api/wardrobe/:owner/outfits/:name.
func (h *WardrobeHandler) GetOutfit(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	name := c.Param("name")
	var (
		found bool
		out   []slotResponse
	)
	h.mgr.With(owner, func(view outfit.CollectionView) {
		saved, ok := view.GetSavedOutfit(name)
		if !ok {
			return
		}
		found = true
		out = make([]slotResponse, 0, len(saved.Slots))
		for _, s := range saved.Slots {
			out = append(out, slotToResponse(s))
		}
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgOutfitNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "slots": out})
}

// LoadOutfit handles POST /api/wardrobe/:owner/outfits/:name/load.
// Replaces the live outfit unless a structurally equal one is already worn.
func (h *WardrobeHandler) LoadOutfit(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	name := c.Param("name")

	var res outfit.LoadOutfitResult
	h.mgr.With(owner, func(view outfit.CollectionView) {
		res = view.LoadSavedOutfit(name)
	})
	switch res {
	case outfit.OutfitLoaded:
		h.record(c, owner, "outfit.load", "", gin.H{"name": name})
		h.mgr.NotifyMutation(c.Request.Context(), owner, "outfit.load", "")
		c.JSON(http.StatusOK, gin.H{"loaded": name})
	case outfit.OutfitAlreadyWorn:
		c.JSON(http.StatusOK, gin.H{"loaded": name, "message": MsgOutfitAlreadyWorn, "noop": true})
	case outfit.LoadOutfitNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgOutfitNotFound})
	}
}

// DeleteOutfit handles DELETE /api/wardrobe/:owner/outfits/:name.
func (h *WardrobeHandler) DeleteOutfit(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	name := c.Param("name")
	var deleted bool
	h.mgr.With(owner, func(view outfit.CollectionView) {
		deleted = view.DeleteSavedOutfit(name)
	})
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgOutfitNotFound})
		return
	}
	h.record(c, owner, "outfit.delete", "", gin.H{"name": name})
	h.mgr.MarkDirty(owner)
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

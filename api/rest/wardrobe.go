package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/audit"
	mw "github.com/yumetose/wardrobe/middleware"
	"github.com/yumetose/wardrobe/outfit"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
)

// WardrobeHandler handles slot and outfit REST endpoints. All collection
// reads and mutations run inside Manager.With / Manager.Mutate so concurrent
// requests are serialized against the autosave and reference scans.
type WardrobeHandler struct {
	mgr    *wardrobe.Manager
	audit  *audit.Service
	logger *zap.Logger
}

// NewWardrobeHandler creates a new WardrobeHandler.
func NewWardrobeHandler(mgr *wardrobe.Manager, auditSvc *audit.Service, logger *zap.Logger) *WardrobeHandler {
	return &WardrobeHandler{mgr: mgr, audit: auditSvc, logger: logger}
}

// resolveOwner parses the :owner path parameter ("user" or "character:Name").
// Writes a 400 response and returns false when the parameter is malformed.
func resolveOwner(c *gin.Context) (wardrobe.Owner, bool) {
	owner, err := wardrobe.ParseOwner(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return wardrobe.Owner{}, false
	}
	return owner, true
}

func (h *WardrobeHandler) record(c *gin.Context, owner wardrobe.Owner, action, slotID string, req interface{}) {
	accountID := mw.GetAccountID(c)
	h.audit.Log(audit.AuditEntry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Owner:     owner.String(),
		SlotID:    slotID,
		Action:    action,
		Request:   req,
		IP:        c.ClientIP(),
	})
}

type slotResponse struct {
	ID             string                     `json:"id"`
	Kind           string                     `json:"kind"`
	Value          string                     `json:"value"`
	Worn           bool                       `json:"worn"`
	Enabled        bool                       `json:"enabled"`
	Equipped       bool                       `json:"equipped"`
	Images         map[string]outfit.ImageRef `json:"images,omitempty"`
	ActiveImageTag string                     `json:"active_image_tag,omitempty"`
}

// slotToResponse copies the slot, including its image map, so the response
// can be marshalled after the manager lock is released.
func slotToResponse(s *outfit.Slot) slotResponse {
	var images map[string]outfit.ImageRef
	if len(s.Images) > 0 {
		images = make(map[string]outfit.ImageRef, len(s.Images))
		for tag, img := range s.Images {
			images[tag] = img
		}
	}
	return slotResponse{
		ID:             s.ID,
		Kind:           s.Kind,
		Value:          s.Value.String(),
		Worn:           !s.Value.IsEmpty(),
		Enabled:        s.Enabled,
		Equipped:       s.Equipped,
		Images:         images,
		ActiveImageTag: s.ActiveImageTag,
	}
}

// Get handles GET /api/wardrobe/:owner.
// Returns the live outfit with the collection's display filters applied.
func (h *WardrobeHandler) Get(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var (
		hideDisabled, hideEmpty bool
		out                     []slotResponse
	)
	h.mgr.With(owner, func(view outfit.CollectionView) {
		hideDisabled = view.HideDisabled()
		hideEmpty = view.HideEmpty()
		slots := view.Auto().SlotRecords(func(s *outfit.Slot) bool {
			if hideDisabled && !s.Enabled {
				return false
			}
			if hideEmpty && s.Value.IsEmpty() {
				return false
			}
			return true
		})
		out = make([]slotResponse, 0, len(slots))
		for _, s := range slots {
			out = append(out, slotToResponse(s))
		}
	})
	c.JSON(http.StatusOK, gin.H{
		"owner":         owner.String(),
		"slots":         out,
		"hide_disabled": hideDisabled,
		"hide_empty":    hideEmpty,
	})
}

type addSlotRequest struct {
	ID   string `json:"id"   binding:"required,min=1,max=64"`
	Kind string `json:"kind"`
}

// AddSlot handles POST /api/wardrobe/:owner/slots.
func (h *WardrobeHandler) AddSlot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req addSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = outfit.InferKind(req.ID)
	}

	var res outfit.AddSlotResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.AddSlot(req.ID, kind)
	})
	switch res {
	case outfit.SlotAdded:
		h.record(c, owner, "slot.add", req.ID, req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.add", req.ID)
		c.JSON(http.StatusCreated, gin.H{"id": req.ID, "kind": kind})
	case outfit.SlotAlreadyExists:
		c.JSON(http.StatusConflict, gin.H{"error": MsgSlotAlreadyExists})
	}
}

// DeleteSlot handles DELETE /api/wardrobe/:owner/slots/:id.
func (h *WardrobeHandler) DeleteSlot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	id := c.Param("id")
	var deleted bool
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		deleted = auto.DeleteSlot(id)
	})
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
		return
	}
	h.record(c, owner, "slot.delete", id, nil)
	h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.delete", id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type setValueRequest struct {
	Value string `json:"value"`
}

// SetValue handles PUT /api/wardrobe/:owner/slots/:id/value.
// An empty or "None" value marks the slot unworn.
func (h *WardrobeHandler) SetValue(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	var set bool
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		set = auto.SetValue(id, outfit.NewValue(req.Value))
	})
	if !set {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
		return
	}
	h.record(c, owner, "slot.set_value", id, req)
	h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.set_value", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "value": outfit.NewValue(req.Value).String()})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabled handles PUT /api/wardrobe/:owner/slots/:id/enabled.
func (h *WardrobeHandler) SetEnabled(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	var set bool
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		set = auto.SetEnabled(id, *req.Enabled)
	})
	if !set {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
		return
	}
	h.record(c, owner, "slot.set_enabled", id, req)
	h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.set_enabled", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

type setEquippedRequest struct {
	Equipped *bool `json:"equipped" binding:"required"`
}

// SetEquipped handles PUT /api/wardrobe/:owner/slots/:id/equipped.
func (h *WardrobeHandler) SetEquipped(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req setEquippedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	var set bool
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		set = auto.SetEquipped(id, *req.Equipped)
	})
	if !set {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
		return
	}
	h.record(c, owner, "slot.set_equipped", id, req)
	h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.set_equipped", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "equipped": *req.Equipped})
}

// ToggleSlot handles POST /api/wardrobe/:owner/slots/:id/toggle.
func (h *WardrobeHandler) ToggleSlot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	id := c.Param("id")
	var (
		toggled bool
		enabled bool
	)
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		if toggled = auto.ToggleSlot(id); toggled {
			slot, _ := auto.Get(id)
			enabled = slot.Enabled
		}
	})
	if !toggled {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
		return
	}
	h.record(c, owner, "slot.toggle", id, nil)
	h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.toggle", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": enabled})
}

type moveSlotRequest struct {
	Index *int `json:"index" binding:"required"`
}

// MoveSlot handles POST /api/wardrobe/:owner/slots/:id/move.
func (h *WardrobeHandler) MoveSlot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req moveSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")

	var res outfit.MoveResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.MoveSlot(id, *req.Index)
	})
	switch res {
	case outfit.Moved:
		h.record(c, owner, "slot.move", id, req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.move", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "index": *req.Index})
	case outfit.MoveNoop:
		c.JSON(http.StatusOK, gin.H{"id": id, "index": *req.Index, "noop": true})
	case outfit.MoveSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.MoveOutOfBounds:
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgMoveOutOfBounds})
	}
}

type shiftRequest struct {
	Source *int `json:"source" binding:"required"`
	Target *int `json:"target" binding:"required"`
}

// ShiftSlot handles POST /api/wardrobe/:owner/slots/shift.
// Moves a slot by positional index instead of id.
func (h *WardrobeHandler) ShiftSlot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req shiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var res outfit.MoveResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.ShiftSlotByIndex(*req.Source, *req.Target)
	})
	switch res {
	case outfit.Moved:
		h.record(c, owner, "slot.shift", strconv.Itoa(*req.Source), req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.shift", "")
		c.JSON(http.StatusOK, gin.H{"source": *req.Source, "target": *req.Target})
	case outfit.MoveNoop:
		c.JSON(http.StatusOK, gin.H{"source": *req.Source, "target": *req.Target, "noop": true})
	case outfit.MoveSlotNotFound, outfit.MoveOutOfBounds:
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgMoveOutOfBounds})
	}
}

type renameSlotRequest struct {
	NewID string `json:"new_id" binding:"required,min=1,max=64"`
}

// RenameSlot handles POST /api/wardrobe/:owner/slots/:id/rename.
func (h *WardrobeHandler) RenameSlot(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req renameSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")

	var res outfit.RenameResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.RenameSlot(id, req.NewID)
	})
	switch res {
	case outfit.Renamed:
		h.record(c, owner, "slot.rename", id, req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.rename", req.NewID)
		c.JSON(http.StatusOK, gin.H{"id": req.NewID})
	case outfit.RenameSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	case outfit.RenameTargetExists:
		c.JSON(http.StatusConflict, gin.H{"error": MsgSlotAlreadyExists})
	}
}

type moveToKindRequest struct {
	Kind string `json:"kind" binding:"required,min=1,max=64"`
}

// MoveToKind handles POST /api/wardrobe/:owner/slots/:id/kind.
func (h *WardrobeHandler) MoveToKind(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req moveToKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")

	var res outfit.MoveToKindResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.MoveToKind(id, req.Kind)
	})
	switch res {
	case outfit.MovedToKind:
		h.record(c, owner, "slot.move_to_kind", id, req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "slot.move_to_kind", id)
		c.JSON(http.StatusOK, gin.H{"id": id, "kind": req.Kind})
	case outfit.MoveToKindNoop:
		c.JSON(http.StatusOK, gin.H{"id": id, "kind": req.Kind, "noop": true})
	case outfit.MoveToKindSlotNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgSlotNotFound})
	}
}

// SortByKind handles POST /api/wardrobe/:owner/sort.
// Re-orders the live outfit into the configured kind buckets.
func (h *WardrobeHandler) SortByKind(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		auto.SortByKind(h.mgr.KindOrder())
	})
	h.record(c, owner, "outfit.sort", "", nil)
	h.mgr.NotifyMutation(c.Request.Context(), owner, "outfit.sort", "")
	c.JSON(http.StatusOK, gin.H{"sorted": true})
}

// Kinds handles GET /api/wardrobe/:owner/kinds.
func (h *WardrobeHandler) Kinds(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var kinds []string
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		kinds = auto.Kinds()
	})
	c.JSON(http.StatusOK, gin.H{"kinds": kinds})
}

type renameKindRequest struct {
	Old string `json:"old" binding:"required,min=1,max=64"`
	New string `json:"new" binding:"required,min=1,max=64"`
}

// RenameKind handles POST /api/wardrobe/:owner/kinds/rename.
func (h *WardrobeHandler) RenameKind(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req renameKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var res outfit.RenameKindResult
	h.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		res = auto.RenameKind(req.Old, req.New)
	})
	switch res {
	case outfit.KindRenamed:
		h.record(c, owner, "kind.rename", "", req)
		h.mgr.NotifyMutation(c.Request.Context(), owner, "kind.rename", "")
		c.JSON(http.StatusOK, gin.H{"kind": req.New})
	case outfit.RenameKindOldNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": MsgKindNotFound})
	case outfit.RenameKindNewExists:
		c.JSON(http.StatusConflict, gin.H{"error": MsgKindAlreadyExists})
	}
}

type filtersRequest struct {
	HideDisabled *bool `json:"hide_disabled"`
	HideEmpty    *bool `json:"hide_empty"`
}

// SetFilters handles PUT /api/wardrobe/:owner/filters.
func (h *WardrobeHandler) SetFilters(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req filtersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var hideDisabled, hideEmpty bool
	h.mgr.With(owner, func(view outfit.CollectionView) {
		if req.HideDisabled != nil {
			view.SetHideDisabled(*req.HideDisabled)
		}
		if req.HideEmpty != nil {
			view.SetHideEmpty(*req.HideEmpty)
		}
		hideDisabled = view.HideDisabled()
		hideEmpty = view.HideEmpty()
	})
	h.mgr.MarkDirty(owner)
	c.JSON(http.StatusOK, gin.H{
		"hide_disabled": hideDisabled,
		"hide_empty":    hideEmpty,
	})
}

// Summaries handles GET /api/wardrobe/:owner/summaries.
// Returns the cached per-kind text blocks plus the whole-outfit block; with
// ?field= only that block is read.
func (h *WardrobeHandler) Summaries(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	if field := c.Query("field"); field != "" {
		block, err := h.mgr.Summary(c.Request.Context(), owner, field)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": MsgSummaryNotFound})
			return
		}
		c.JSON(http.StatusOK, gin.H{"field": field, "summary": block})
		return
	}
	sums, err := h.mgr.Summaries(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": sums})
}

// Save handles POST /api/wardrobe/:owner/save.
// Forces an immediate persistence of the owner's collection.
func (h *WardrobeHandler) Save(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	if err := h.mgr.Save(c.Request.Context(), owner); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": owner.String()})
}

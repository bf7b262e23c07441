package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yumetose/wardrobe/cache"
	"github.com/yumetose/wardrobe/config"
	"github.com/yumetose/wardrobe/detect"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
)

// DetectHandler handles chat-line ingestion and outfit-change detection.
type DetectHandler struct {
	det    *detect.Detector
	cache  cache.Cache
	cfg    config.DetectConfig
	logger *zap.Logger
}

// NewDetectHandler creates a new DetectHandler.
func NewDetectHandler(det *detect.Detector, c cache.Cache, cfg config.DetectConfig, logger *zap.Logger) *DetectHandler {
	return &DetectHandler{det: det, cache: c, cfg: cfg, logger: logger}
}

func chatKey(owner wardrobe.Owner) string {
	return "chat:" + owner.String()
}

type pushLineRequest struct {
	Line string `json:"line" binding:"required,min=1,max=2048"`
}

// PushLine handles POST /api/chat/:owner/lines.
// Keeps only the most recent history window.
func (h *DetectHandler) PushLine(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	var req pushLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	key := chatKey(owner)
	if err := h.cache.LPush(ctx, key, req.Line); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	_ = h.cache.LTrim(ctx, key, 0, int64(h.cfg.HistoryLines)-1)
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// Lines handles GET /api/chat/:owner/lines.
// Returns the retained window in chronological order.
func (h *DetectHandler) Lines(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	lines, err := h.recentLines(c, owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// recentLines reads the retained chat window oldest-first. LPush stores
// newest-first, so the range is reversed.
func (h *DetectHandler) recentLines(c *gin.Context, owner wardrobe.Owner) ([]string, error) {
	raw, err := h.cache.LRange(c.Request.Context(), chatKey(owner), 0, int64(h.cfg.HistoryLines)-1)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		lines = append(lines, raw[i])
	}
	return lines, nil
}

// Run handles POST /api/wardrobe/:owner/detect.
// Feeds the retained chat lines to the generation collaborator and applies
// any outfit commands found in its reply. A second trigger while one run is
// in flight is rejected.
func (h *DetectHandler) Run(c *gin.Context) {
	owner, ok := resolveOwner(c)
	if !ok {
		return
	}
	lines, err := h.recentLines(c, owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if len(lines) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no chat lines to analyze"})
		return
	}

	res, err := h.det.Run(c.Request.Context(), owner, lines)
	if errors.Is(err, detect.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": MsgDetectBusy})
		return
	}
	if errors.Is(err, detect.ErrDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": MsgDetectDisabled})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Status handles GET /api/detect/status.
func (h *DetectHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"disabled": h.det.Disabled()})
}

// Enable handles POST /api/detect/enable.
// Re-arms detection after it disabled itself.
func (h *DetectHandler) Enable(c *gin.Context) {
	h.det.Enable()
	c.JSON(http.StatusOK, gin.H{"disabled": false})
}

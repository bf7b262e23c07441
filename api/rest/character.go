package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/yumetose/wardrobe/middleware"
	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	db     *gorm.DB
	mgr    *wardrobe.Manager
	logger *zap.Logger
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(db *gorm.DB, mgr *wardrobe.Manager, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{db: db, mgr: mgr, logger: logger}
}

// List handles GET /api/characters.
func (h *CharacterHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var chars []model.Character
	if err := h.db.Where("account_id = ?", accountID).Find(&chars).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

type createCharacterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=64"`
	Portrait string `json:"portrait" binding:"max=128"`
	Notes    string `json:"notes" binding:"max=4096"`
}

// Create handles POST /api/characters.
// Creating a character also materializes its wardrobe with the default slot
// set, so the collection exists before the first slot mutation.
func (h *CharacterHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	char := &model.Character{
		AccountID: accountID,
		Name:      req.Name,
		Portrait:  req.Portrait,
		Notes:     req.Notes,
	}
	if err := h.db.Create(char).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "character name already taken"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	h.mgr.EnsureCharacter(req.Name)
	c.JSON(http.StatusCreated, char)
}

type deleteCharacterRequest struct {
	Password string `json:"password" binding:"required"`
}

// Delete handles DELETE /api/characters/:id.
// The account password must be re-entered. The character's wardrobe rows are
// left in place so a re-created character of the same name recovers them; only
// the owner registry entry is dropped.
func (h *CharacterHandler) Delete(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req deleteCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	var acc model.Account
	if err := h.db.First(&acc, accountID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}

	var char model.Character
	if err := h.db.Where("id = ? AND account_id = ?", charID, accountID).First(&char).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return
	}
	if err := h.db.Delete(&char).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.mgr.UnregisterOwner(c.Request.Context(), wardrobe.CharacterOwner(char.Name))
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yumetose/wardrobe/api/rest"
	"github.com/yumetose/wardrobe/audit"
	"github.com/yumetose/wardrobe/imagestore"
	"github.com/yumetose/wardrobe/testutil"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
)

func newWardrobeRouter(t *testing.T) (*gin.Engine, *wardrobe.Manager) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	images := imagestore.NewStore(db, zap.NewNop())
	mgr := wardrobe.NewManager(db, c, ps, images, testutil.SetupWardrobeConfig(), zap.NewNop())
	require.NoError(t, mgr.Load(t.Context()))

	auditSvc := audit.New(db, zap.NewNop())
	t.Cleanup(func() { auditSvc.Stop(nil) })

	h := rest.NewWardrobeHandler(mgr, auditSvc, zap.NewNop())
	r := gin.New()
	g := r.Group("/api/wardrobe/:owner")
	g.GET("", h.Get)
	g.POST("/slots", h.AddSlot)
	g.POST("/slots/shift", h.ShiftSlot)
	g.DELETE("/slots/:id", h.DeleteSlot)
	g.PUT("/slots/:id/value", h.SetValue)
	g.PUT("/slots/:id/enabled", h.SetEnabled)
	g.PUT("/slots/:id/equipped", h.SetEquipped)
	g.POST("/slots/:id/toggle", h.ToggleSlot)
	g.POST("/slots/:id/move", h.MoveSlot)
	g.POST("/slots/:id/rename", h.RenameSlot)
	g.POST("/slots/:id/kind", h.MoveToKind)
	g.POST("/sort", h.SortByKind)
	g.GET("/kinds", h.Kinds)
	g.POST("/kinds/rename", h.RenameKind)
	g.PUT("/filters", h.SetFilters)
	g.GET("/summaries", h.Summaries)
	return r, mgr
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWardrobeGetDefaultSlots(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodGet, "/api/wardrobe/user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "user", resp["owner"])
	slots := resp["slots"].([]interface{})
	assert.NotEmpty(t, slots)
	first := slots[0].(map[string]interface{})
	assert.Equal(t, "headwear", first["id"])
	assert.Equal(t, "None", first["value"])
	assert.Equal(t, false, first["worn"])
}

func TestWardrobeBadOwner(t *testing.T) {
	r, _ := newWardrobeRouter(t)
	w := doJSON(r, http.MethodGet, "/api/wardrobe/guild:Rin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWardrobeAddSlotInfersKind(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPost, "/api/wardrobe/user/slots", map[string]string{"id": "tail-accessory"})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "Accessory", resp["kind"])

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots", map[string]string{"id": "tail-accessory"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "a slot with that id already exists", decodeBody(t, w)["error"])
}

func TestWardrobeSetValueAndDelete(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/headwear/value", map[string]string{"value": "red beret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "red beret", decodeBody(t, w)["value"])

	// "None" is the unworn wire form.
	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/headwear/value", map[string]string{"value": "None"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "None", decodeBody(t, w)["value"])

	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/nothere/value", map[string]string{"value": "x"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "slot does not exist", decodeBody(t, w)["error"])

	w = doJSON(r, http.MethodDelete, "/api/wardrobe/user/slots/headwear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodDelete, "/api/wardrobe/user/slots/headwear", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWardrobeEnableToggle(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/footwear/enabled", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["enabled"])

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/footwear/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["enabled"])

	// Missing body field is a binding error, not a silent default.
	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/footwear/enabled", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWardrobeSetEquipped(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/footwear/equipped", map[string]bool{"equipped": true})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "footwear", resp["id"])
	assert.Equal(t, true, resp["equipped"])

	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/footwear/equipped", map[string]bool{"equipped": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["equipped"])

	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/nothere/equipped", map[string]bool{"equipped": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/footwear/equipped", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWardrobeMoveAndShift(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	// Remove-then-insert: moving down the list lands one before the
	// requested index, so headwear ends up at position 1.
	w := doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/move", map[string]int{"index": 2})
	require.Equal(t, http.StatusOK, w.Code)

	// Moving to the current position is a noop, not an error.
	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/move", map[string]int{"index": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["noop"])

	// Asking for index 2 again is a real move, not a noop.
	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/move", map[string]int{"index": 2})
	require.Equal(t, http.StatusOK, w.Code)
	_, hasNoop := decodeBody(t, w)["noop"]
	assert.False(t, hasNoop)

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/move", map[string]int{"index": 999})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "target position is out of range", decodeBody(t, w)["error"])

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/shift", map[string]int{"source": 0, "target": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/shift", map[string]int{"source": 0, "target": 999})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWardrobeRenameSlot(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/rename", map[string]string{"new_id": "hat"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hat", decodeBody(t, w)["id"])

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/hat/rename", map[string]string{"new_id": "topwear"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/rename", map[string]string{"new_id": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWardrobeKinds(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodGet, "/api/wardrobe/user/kinds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	kinds := decodeBody(t, w)["kinds"].([]interface{})
	assert.Contains(t, kinds, "Clothing")
	assert.Contains(t, kinds, "Accessory")

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/kinds/rename", map[string]string{"old": "Accessory", "new": "Jewelry"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/kinds/rename", map[string]string{"old": "Accessory", "new": "Trinket"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/kinds/rename", map[string]string{"old": "Jewelry", "new": "Clothing"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWardrobeMoveToKindAndSort(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/kind", map[string]string{"kind": "Accessory"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/slots/headwear/kind", map[string]string{"kind": "Accessory"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["noop"])

	w = doJSON(r, http.MethodPost, "/api/wardrobe/user/sort", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// After sorting, all Clothing slots precede all Accessory slots.
	w = doJSON(r, http.MethodGet, "/api/wardrobe/user", nil)
	slots := decodeBody(t, w)["slots"].([]interface{})
	sawAccessory := false
	for _, raw := range slots {
		s := raw.(map[string]interface{})
		if s["kind"] == "Accessory" {
			sawAccessory = true
		} else if s["kind"] == "Clothing" {
			assert.False(t, sawAccessory, "clothing slot after accessory block")
		}
	}
}

func TestWardrobeFilters(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/headwear/enabled", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPut, "/api/wardrobe/user/filters", map[string]bool{"hide_disabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["hide_disabled"])

	w = doJSON(r, http.MethodGet, "/api/wardrobe/user", nil)
	slots := decodeBody(t, w)["slots"].([]interface{})
	for _, raw := range slots {
		assert.NotEqual(t, "headwear", raw.(map[string]interface{})["id"])
	}
}

func TestWardrobeSummaries(t *testing.T) {
	r, _ := newWardrobeRouter(t)

	w := doJSON(r, http.MethodPut, "/api/wardrobe/user/slots/headwear/value", map[string]string{"value": "red beret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/wardrobe/user/summaries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sums := decodeBody(t, w)["summaries"].(map[string]interface{})
	assert.Contains(t, sums["Clothing"], "<headwear>red beret</headwear>")
	assert.Contains(t, sums["outfit"], "red beret")
}

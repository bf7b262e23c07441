package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWardrobeFlow_SlotLifecycle(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("flowuser"), "pass1234")

	// The user wardrobe starts with the default slot set.
	resp := ts.Get(t, "/api/wardrobe/user", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]interface{}
	ReadJSON(t, resp, &state)
	slots := state["slots"].([]interface{})
	require.NotEmpty(t, slots)

	// Wear something.
	resp = ts.Put(t, "/api/wardrobe/user/slots/headwear/value",
		map[string]string{"value": "straw hat"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Add a custom slot, then collide on the same id.
	resp = ts.PostJSON(t, "/api/wardrobe/user/slots",
		map[string]string{"id": "tail-accessory"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = ts.PostJSON(t, "/api/wardrobe/user/slots",
		map[string]string{"id": "tail-accessory"}, token)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// The inferred kind comes from the id.
	resp = ts.Get(t, "/api/wardrobe/user", token)
	ReadJSON(t, resp, &state)
	var added map[string]interface{}
	for _, raw := range state["slots"].([]interface{}) {
		s := raw.(map[string]interface{})
		if s["id"] == "tail-accessory" {
			added = s
		}
	}
	require.NotNil(t, added)
	assert.Equal(t, "Accessory", added["kind"])

	// Rename, then delete.
	resp = ts.PostJSON(t, "/api/wardrobe/user/slots/tail-accessory/rename",
		map[string]string{"new_id": "tail"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Delete(t, "/api/wardrobe/user/slots/tail", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Unknown slot mutations report a readable failure.
	resp = ts.Put(t, "/api/wardrobe/user/slots/nonexistent/value",
		map[string]string{"value": "x"}, token)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var failure map[string]interface{}
	ReadJSON(t, resp, &failure)
	assert.Equal(t, "slot does not exist", failure["error"])
}

func TestWardrobeFlow_SavedOutfitsAndPersistence(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("outfituser"), "pass1234")
	charName := UniqueID("Rin")
	ts.CreateCharacter(t, token, charName)
	ownerPath := "/api/wardrobe/character:" + charName

	resp := ts.Put(t, ownerPath+"/slots/topwear/value",
		map[string]string{"value": "summer dress"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Save, change, load back.
	resp = ts.PostJSON(t, ownerPath+"/outfits", map[string]string{"name": "summer"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Put(t, ownerPath+"/slots/topwear/value",
		map[string]string{"value": "winter coat"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, ownerPath+"/outfits/summer/load", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Loading again is a no-op because the same outfit is already worn.
	resp = ts.PostJSON(t, ownerPath+"/outfits/summer/load", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loadResp map[string]interface{}
	ReadJSON(t, resp, &loadResp)
	assert.Equal(t, true, loadResp["noop"])

	// Force a save and verify a state row landed in the DB.
	resp = ts.PostJSON(t, ownerPath+"/save", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var count int64
	ts.DB.Table("wardrobe_states").Where("owner_name = ?", charName).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestWardrobeFlow_SnapshotsAndDiff(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("snapuser"), "pass1234")

	set := func(slot, value string) {
		resp := ts.Put(t, fmt.Sprintf("/api/wardrobe/user/slots/%s/value", slot),
			map[string]string{"value": value}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	set("headwear", "beret")
	resp := ts.PostJSON(t, "/api/wardrobe/user/snapshots",
		map[string]string{"namespace": "before"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	set("headwear", "top hat")
	set("footwear", "boots")
	resp = ts.PostJSON(t, "/api/wardrobe/user/snapshots",
		map[string]string{"namespace": "after"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/wardrobe/user/snapshots/diff?from=before&to=after", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var diff map[string]interface{}
	ReadJSON(t, resp, &diff)
	changed := diff["changed"].(map[string]interface{})
	require.Contains(t, changed, "headwear")
	hw := changed["headwear"].(map[string]interface{})
	assert.Equal(t, "beret", hw["from"])
	assert.Equal(t, "top hat", hw["to"])
	require.Contains(t, changed, "footwear")

	// Diffing a namespace against itself short-circuits to empty.
	resp = ts.Get(t, "/api/wardrobe/user/snapshots/diff?from=before&to=before", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &diff)
	assert.Empty(t, diff["changed"])
	assert.Empty(t, diff["added"])
	assert.Empty(t, diff["removed"])
}

func TestWardrobeFlow_PresetsAndSummaries(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("presetuser"), "pass1234")

	resp := ts.Put(t, "/api/presets/favorite-hat",
		map[string]string{"value": "red beret"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, "/api/wardrobe/user/slots/headwear/apply/favorite-hat", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Applying bumps the preset into the recency ranking.
	resp = ts.Get(t, "/api/presets/recent", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent map[string]interface{}
	ReadJSON(t, resp, &recent)
	tags := recent["tags"].([]interface{})
	require.NotEmpty(t, tags)
	assert.Equal(t, "favorite-hat", tags[0])

	// Summaries reflect the mutation.
	resp = ts.Get(t, "/api/wardrobe/user/summaries", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sums map[string]interface{}
	ReadJSON(t, resp, &sums)
	outfitBlock := sums["summaries"].(map[string]interface{})["outfit"].(string)
	assert.Contains(t, outfitBlock, "red beret")
}

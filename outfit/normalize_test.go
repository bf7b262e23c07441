package outfit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode round-trips a value through JSON so the input to normalization
// matches what a persisted payload decodes to.
func decode(t *testing.T, v interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNormalizeOutfit_LegacyFlatMap(t *testing.T) {
	raw := decode(t, map[string]string{
		"headwear":       "Cap",
		"neck-accessory": "Scarf",
	})
	o := NormalizeOutfit(raw)
	require.Len(t, o.Slots, 2)

	byID := map[string]*Slot{}
	for _, s := range o.Slots {
		byID[s.ID] = s
	}
	head := byID["headwear"]
	require.NotNil(t, head)
	assert.Equal(t, KindClothing, head.Kind)
	assert.Equal(t, "Cap", head.Value.Text())
	assert.True(t, head.Enabled)

	neck := byID["neck-accessory"]
	require.NotNil(t, neck)
	assert.Equal(t, KindAccessory, neck.Kind)
	assert.Equal(t, "Scarf", neck.Value.Text())
	assert.True(t, neck.Enabled)
}

func TestNormalizeOutfit_ModernDedupFirstWins(t *testing.T) {
	raw := decode(t, map[string]interface{}{
		"slots": []map[string]interface{}{
			{"id": "hat", "kind": KindClothing, "value": "Beret"},
			{"id": "hat", "kind": KindAccessory, "value": "Cap"},
			{"id": "shirt", "kind": KindClothing, "value": "None"},
		},
	})
	o := NormalizeOutfit(raw)
	require.Len(t, o.Slots, 2)
	assert.Equal(t, "hat", o.Slots[0].ID)
	assert.Equal(t, "Beret", o.Slots[0].Value.Text())
	assert.True(t, o.Slots[1].Value.IsEmpty())
}

func TestNormalizeOutfit_LeftoverLegacyValuesAppended(t *testing.T) {
	raw := decode(t, map[string]interface{}{
		"slots": []map[string]interface{}{
			{"id": "hat", "kind": KindClothing, "value": "Cap"},
		},
		"values": map[string]string{
			"hat":           "Ignored", // covered by a declared slot
			"ear-accessory": "Hoops",
		},
	})
	o := NormalizeOutfit(raw)
	require.Len(t, o.Slots, 2)
	assert.Equal(t, "Cap", o.Slots[0].Value.Text())
	assert.Equal(t, "ear-accessory", o.Slots[1].ID)
	assert.Equal(t, KindAccessory, o.Slots[1].Kind)
	assert.Equal(t, "Hoops", o.Slots[1].Value.Text())
}

func TestNormalizeSlot_MalformedFieldsDefaulted(t *testing.T) {
	raw := decode(t, map[string]interface{}{
		"slots": []interface{}{
			map[string]interface{}{
				"id":      "hat",
				"kind":    42,    // not a string → default kind
				"value":   true,  // not a string → empty value
				"enabled": "yes", // not a bool → default true
				"images": map[string]interface{}{
					"front": map[string]interface{}{"key": "k1", "width": 10, "height": 20},
					"noW":   map[string]interface{}{"key": "k2", "height": 20},
					"noKey": map[string]interface{}{"width": 10, "height": 20},
					"bad":   "nope",
				},
			},
			map[string]interface{}{"kind": KindClothing}, // no id → dropped
			"not-an-object",
		},
	})
	o := NormalizeOutfit(raw)
	require.Len(t, o.Slots, 1)
	s := o.Slots[0]
	assert.Equal(t, KindClothing, s.Kind)
	assert.True(t, s.Value.IsEmpty())
	assert.True(t, s.Enabled)
	// Only the fully-formed image record survives; hidden defaults to false.
	require.Len(t, s.Images, 1)
	assert.Equal(t, ImageRef{Key: "k1", Width: 10, Height: 20}, s.Images["front"])
}

func TestNormalizeCollection_GarbageInput(t *testing.T) {
	for _, raw := range []interface{}{nil, "junk", 42.0, []interface{}{"a"}} {
		c := NormalizeCollection(raw)
		require.NotNil(t, c)
		assert.NotNil(t, c.Auto)
		assert.NotNil(t, c.Saved)
		assert.NotNil(t, c.Snapshots)
		assert.False(t, c.HideDisabled)
		assert.False(t, c.HideEmpty)
	}
}

func TestNormalizeCollection_Idempotent(t *testing.T) {
	raw := decode(t, map[string]interface{}{
		"auto": map[string]string{"headwear": "Cap", "waist-accessory": "Belt"},
		"saved": map[string]interface{}{
			"beach": map[string]interface{}{
				"slots": []map[string]interface{}{
					{"id": "hat", "kind": KindClothing, "value": "Straw Hat", "enabled": false},
				},
			},
		},
		"hide_disabled": true,
		"snapshots": map[string]interface{}{
			"chat-42": map[string]interface{}{
				"slots":      map[string]string{"hat": "Cap"},
				"created_at": "2026-01-02T03:04:05Z",
			},
		},
	})

	once := NormalizeCollection(raw)
	twice := NormalizeCollection(decode(t, once))
	assert.Equal(t, once, twice)
}

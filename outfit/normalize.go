package outfit

// Normalization coerces arbitrary persisted input into the canonical
// collection shape. It never rejects: malformed fields are dropped or
// defaulted, and normalizing an already-normalized tree is a no-op.

import (
	"sort"
	"time"
)

// stableKeys returns the map's keys sorted, so migration of decoded JSON
// objects (whose iteration order is unspecified) is deterministic.
func stableKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// asMap coerces a decoded JSON value to an object, defaulting to empty.
func asMap(v interface{}) map[string]interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return m
}

func asString(v interface{}, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func asBool(v interface{}, def bool) bool {
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// asInt accepts JSON numbers (float64 after decoding) and ints.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// NormalizeCollection coerces raw persisted data into a valid Collection.
func NormalizeCollection(raw interface{}) *Collection {
	m := asMap(raw)
	c := &Collection{
		Auto:         NormalizeOutfit(m["auto"]),
		Saved:        make(map[string]*Outfit),
		HideDisabled: asBool(m["hide_disabled"], false),
		HideEmpty:    asBool(m["hide_empty"], false),
		Snapshots:    make(map[string]*CachedSnapshot),
	}
	for name, rawOutfit := range asMap(m["saved"]) {
		c.Saved[name] = NormalizeOutfit(rawOutfit)
	}
	for ns, rawSnap := range asMap(m["snapshots"]) {
		if snap := normalizeSnapshot(ns, rawSnap); snap != nil {
			c.Snapshots[ns] = snap
		}
	}
	return c
}

// NormalizeOutfit coerces raw data into a valid Outfit. Two shapes are
// accepted: the modern form carrying a "slots" array, and the legacy flat
// slot-id→value map. In the modern form the declared slots are taken first
// (deduplicated by id, first occurrence wins), then any leftover legacy
// "values" entries not already covered by a slot id are appended.
func NormalizeOutfit(raw interface{}) *Outfit {
	m := asMap(raw)
	o := &Outfit{Slots: []*Slot{}}
	seen := make(map[string]bool)

	if _, modern := m["slots"]; !modern {
		// Legacy flat map: every string key→value pair becomes a slot with
		// its kind inferred from the id.
		for _, id := range stableKeys(m) {
			val, ok := m[id].(string)
			if !ok {
				continue
			}
			s := NewSlot(id, InferKind(id))
			s.Value = NewValue(val)
			o.Slots = append(o.Slots, s)
			seen[id] = true
		}
		return o
	}

	if arr, ok := m["slots"].([]interface{}); ok {
		for _, rawSlot := range arr {
			s := normalizeSlot(rawSlot)
			if s == nil || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			o.Slots = append(o.Slots, s)
		}
	}

	// Leftover legacy values that no declared slot covers.
	values := asMap(m["values"])
	for _, id := range stableKeys(values) {
		if seen[id] {
			continue
		}
		val, ok := values[id].(string)
		if !ok {
			continue
		}
		s := NewSlot(id, InferKind(id))
		s.Value = NewValue(val)
		o.Slots = append(o.Slots, s)
		seen[id] = true
	}
	return o
}

func normalizeSlot(raw interface{}) *Slot {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return nil
	}
	s := NewSlot(id, asString(m["kind"], KindClothing))
	s.Value = NewValue(asString(m["value"], ""))
	s.Enabled = asBool(m["enabled"], true)
	s.Equipped = asBool(m["equipped"], false)
	s.ActiveImageTag = asString(m["active_image_tag"], "")
	for tag, rawImg := range asMap(m["images"]) {
		if img, ok := normalizeImage(rawImg); ok {
			s.Images[tag] = img
		}
	}
	return s
}

// normalizeImage keeps an image record only when key, width, and height are
// all present and well-typed. hidden defaults to false.
func normalizeImage(raw interface{}) (ImageRef, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return ImageRef{}, false
	}
	key, ok := m["key"].(string)
	if !ok || key == "" {
		return ImageRef{}, false
	}
	w, ok := asInt(m["width"])
	if !ok {
		return ImageRef{}, false
	}
	h, ok := asInt(m["height"])
	if !ok {
		return ImageRef{}, false
	}
	return ImageRef{Key: key, Width: w, Height: h, Hidden: asBool(m["hidden"], false)}, true
}

func normalizeSnapshot(ns string, raw interface{}) *CachedSnapshot {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	snap := &CachedSnapshot{Namespace: ns, Slots: make(map[string]string)}
	for id, v := range asMap(m["slots"]) {
		if s, ok := v.(string); ok {
			snap.Slots[id] = s
		}
	}
	if ts, ok := m["created_at"].(string); ok {
		snap.CreatedAt = parseTime(ts)
	}
	return snap
}

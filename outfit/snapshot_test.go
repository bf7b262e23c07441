package outfit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotView_WriteOverwrites(t *testing.T) {
	sv := NewSnapshotView(make(map[string]*CachedSnapshot))

	first := sv.Write("chat-1", map[string]string{"hat": "Cap"})
	time.Sleep(time.Millisecond)
	second := sv.Write("chat-1", map[string]string{"hat": "Beret"})

	got, ok := sv.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, "Beret", got.Slots["hat"])
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Len(t, sv.Namespaces(), 1)
}

func TestSnapshotView_WriteCopiesInput(t *testing.T) {
	sv := NewSnapshotView(make(map[string]*CachedSnapshot))
	src := map[string]string{"hat": "Cap"}
	sv.Write("chat-1", src)
	src["hat"] = "Mutated"

	got, _ := sv.Get("chat-1")
	assert.Equal(t, "Cap", got.Slots["hat"])
}

func TestDiffSnapshots_SameNamespaceShortCircuits(t *testing.T) {
	s := &CachedSnapshot{Namespace: "chat-1", Slots: map[string]string{"hat": "Cap"}}
	diff := DiffSnapshots(s, s)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Empty(t, diff.Changed)
}

func TestDiffSnapshots_Buckets(t *testing.T) {
	from := &CachedSnapshot{Namespace: "chat-1", Slots: map[string]string{
		"hat":   "Cap",
		"shirt": "Tee",
		"shoes": "Boots",
	}}
	to := &CachedSnapshot{Namespace: "chat-2", Slots: map[string]string{
		"hat":     "Beret",
		"shirt":   "Tee",
		"earring": "Hoops",
	}}

	diff := DiffSnapshots(from, to)
	assert.Equal(t, map[string]string{"earring": "Hoops"}, diff.Added)
	assert.Equal(t, []string{"shoes"}, diff.Removed)
	assert.Equal(t, map[string]ValueChange{
		"hat": {From: "Cap", To: "Beret"},
	}, diff.Changed)
	// "shirt" is unchanged and appears in no bucket.
	_, inChanged := diff.Changed["shirt"]
	assert.False(t, inChanged)
}

func TestSnapshotView_Diff(t *testing.T) {
	sv := NewSnapshotView(make(map[string]*CachedSnapshot))
	sv.Write("a", map[string]string{"hat": "Cap"})
	sv.Write("b", map[string]string{"hat": "Beret"})

	diff, ok := sv.Diff("a", "b")
	require.True(t, ok)
	assert.Equal(t, ValueChange{From: "Cap", To: "Beret"}, diff.Changed["hat"])

	_, ok = sv.Diff("a", "missing")
	assert.False(t, ok)
}

func TestSnapshotView_Delete(t *testing.T) {
	sv := NewSnapshotView(make(map[string]*CachedSnapshot))
	sv.Write("a", nil)
	assert.True(t, sv.Delete("a"))
	assert.False(t, sv.Delete("a"))
}

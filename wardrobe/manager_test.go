package wardrobe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yumetose/wardrobe/config"
	"github.com/yumetose/wardrobe/imagestore"
	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/outfit"
	"github.com/yumetose/wardrobe/testutil"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	images := imagestore.NewStore(db, zap.NewNop())
	m := NewManager(db, c, ps, images, testutil.SetupWardrobeConfig(), zap.NewNop())
	require.NoError(t, m.Load(context.Background()))
	return m
}

// slotValue reads one slot's value through the serialized entry point.
func slotValue(m *Manager, owner Owner, id string) (string, bool) {
	var (
		val string
		ok  bool
	)
	m.Mutate(owner, func(auto *outfit.MutableView) {
		var s *outfit.Slot
		if s, ok = auto.Get(id); ok {
			val = s.Value.String()
		}
	})
	return val, ok
}

func TestParseOwner(t *testing.T) {
	owner, err := ParseOwner("user")
	require.NoError(t, err)
	assert.Equal(t, UserOwner, owner)

	owner, err = ParseOwner("character:Rin")
	require.NoError(t, err)
	assert.Equal(t, CharacterOwner("Rin"), owner)
	assert.Equal(t, "character:Rin", owner.String())

	_, err = ParseOwner("character:")
	assert.Error(t, err)
	_, err = ParseOwner("guild:Rin")
	assert.Error(t, err)
}

func TestManagerCharacterVivifiesOnce(t *testing.T) {
	m := newTestManager(t)
	assert.Empty(t, m.CharacterNames())

	m.EnsureCharacter("Rin")
	assert.Equal(t, []string{"Rin"}, m.CharacterNames())
	// Creation marks the owner dirty so autosave picks it up.
	assert.Equal(t, 1, m.DirtyCount())

	// A second touch reuses the same collection.
	m.Mutate(CharacterOwner("Rin"), func(auto *outfit.MutableView) {
		auto.SetValue("headwear", outfit.NewValue("beret"))
	})
	val, ok := slotValue(m, CharacterOwner("Rin"), "headwear")
	require.True(t, ok)
	assert.Equal(t, "beret", val)
	assert.Len(t, m.CharacterNames(), 1)
}

func TestManagerSaveRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	images := imagestore.NewStore(db, zap.NewNop())
	cfg := testutil.SetupWardrobeConfig()

	m := NewManager(db, c, ps, images, cfg, zap.NewNop())
	require.NoError(t, m.Load(context.Background()))

	miko := CharacterOwner("Miko")
	m.Mutate(miko, func(auto *outfit.MutableView) {
		auto.SetValue("topwear", outfit.NewValue("kimono"))
	})
	m.With(miko, func(v outfit.CollectionView) { v.SaveOutfit("shrine") })
	require.NoError(t, m.Save(context.Background(), miko))

	// A fresh manager over the same DB sees the persisted tree.
	m2 := NewManager(db, c, ps, images, cfg, zap.NewNop())
	require.NoError(t, m2.Load(context.Background()))

	val, ok := slotValue(m2, miko, "topwear")
	require.True(t, ok)
	assert.Equal(t, "kimono", val)
	var names []string
	m2.With(miko, func(v outfit.CollectionView) { names = v.SavedNames() })
	assert.Equal(t, []string{"shrine"}, names)
}

func TestManagerSaveOverwritesRow(t *testing.T) {
	m := newTestManager(t)

	m.Mutate(UserOwner, func(auto *outfit.MutableView) {
		auto.SetValue("headwear", outfit.NewValue("cap"))
	})
	require.NoError(t, m.Save(context.Background(), UserOwner))
	m.Mutate(UserOwner, func(auto *outfit.MutableView) {
		auto.SetValue("headwear", outfit.NewValue("hood"))
	})
	require.NoError(t, m.Save(context.Background(), UserOwner))

	var rows []model.WardrobeState
	m.db.Find(&rows)
	require.Len(t, rows, 1)
}

func TestManagerSaveDirtyClearsFlags(t *testing.T) {
	m := newTestManager(t)

	m.MarkDirty(UserOwner)
	m.EnsureCharacter("Rin")
	require.Equal(t, 2, m.DirtyCount())

	m.SaveDirty(context.Background())
	assert.Equal(t, 0, m.DirtyCount())

	var count int64
	m.db.Model(&model.WardrobeState{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestManagerSaveUnknownOwner(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Save(context.Background(), CharacterOwner("Nobody")))
}

func TestManagerLoadMalformedPayloadDefaults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	require.NoError(t, db.Create(&model.WardrobeState{
		OwnerKind: model.OwnerCharacter,
		OwnerName: "Broken",
		Payload:   []byte(`{this is not json`),
	}).Error)

	m := NewManager(db, c, ps, imagestore.NewStore(db, zap.NewNop()), testutil.SetupWardrobeConfig(), zap.NewNop())
	require.NoError(t, m.Load(context.Background()))

	// Malformed persisted data is never an error; the owner still resolves
	// with the default slot set.
	assert.Equal(t, []string{"Broken"}, m.CharacterNames())
	_, ok := slotValue(m, CharacterOwner("Broken"), "headwear")
	assert.True(t, ok)
}

func TestManagerImageKeyInUse(t *testing.T) {
	m := newTestManager(t)
	key := m.Images().Add("aGVsbG8=", 10, 10)

	assert.False(t, m.ImageKeyInUse(key))

	rin := CharacterOwner("Rin")
	m.Mutate(rin, func(auto *outfit.MutableView) {
		require.Equal(t, outfit.ImageAttached, auto.AttachImage("headwear", "front", key, m.Images()))
	})
	assert.True(t, m.ImageKeyInUse(key))

	// References inside saved outfits keep the key alive too.
	m.With(rin, func(v outfit.CollectionView) { v.SaveOutfit("with-hat") })
	m.Mutate(rin, func(auto *outfit.MutableView) { auto.DeleteImage("headwear", "front") })
	assert.True(t, m.ImageKeyInUse(key))

	m.With(rin, func(v outfit.CollectionView) { v.DeleteSavedOutfit("with-hat") })
	assert.False(t, m.ImageKeyInUse(key))
}

func TestManagerConcurrentMutateAndScan(t *testing.T) {
	m := newTestManager(t)
	rin := CharacterOwner("Rin")
	m.EnsureCharacter("Rin")

	// Slot mutations and the reference sweep race against each other; both
	// must serialize on the manager lock.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("extra-%d", i)
			m.Mutate(rin, func(auto *outfit.MutableView) {
				auto.AddSlot(id, outfit.KindClothing)
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.ImageKeyInUse("nope")
		}
	}()
	wg.Wait()

	var n int
	m.Mutate(rin, func(auto *outfit.MutableView) { n = len(auto.Slots()) })
	assert.Equal(t, len(config.DefaultSlotIDs)+200, n)
}

func TestManagerOwnerRegistry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	owners, err := m.KnownOwners(ctx)
	require.NoError(t, err)
	assert.Contains(t, owners, "user")

	m.EnsureCharacter("Rin")
	known, err := m.IsKnownOwner(ctx, "character:Rin")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = m.IsKnownOwner(ctx, "character:Ghost")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestManagerUnregisterOwner(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.EnsureCharacter("Rin")
	known, err := m.IsKnownOwner(ctx, "character:Rin")
	require.NoError(t, err)
	require.True(t, known)

	m.UnregisterOwner(ctx, CharacterOwner("Rin"))
	known, err = m.IsKnownOwner(ctx, "character:Rin")
	require.NoError(t, err)
	assert.False(t, known)

	// Only the registry entry goes; the collection itself stays loaded.
	assert.Equal(t, []string{"Rin"}, m.CharacterNames())
}

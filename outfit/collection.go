package outfit

import (
	"sort"
	"strings"
)

// Collection is the persisted wardrobe tree for one identity: the live "auto"
// outfit, every saved outfit by name, the two display filters, and the cached
// snapshots.
type Collection struct {
	Auto         *Outfit                    `json:"auto"`
	Saved        map[string]*Outfit         `json:"saved"`
	HideDisabled bool                       `json:"hide_disabled"`
	HideEmpty    bool                       `json:"hide_empty"`
	Snapshots    map[string]*CachedSnapshot `json:"snapshots"`
}

// InferKind derives a slot kind from its id, the rule used by legacy
// migration and default slot creation: ids containing "accessory"
// (case-insensitive) are accessories, everything else is clothing.
func InferKind(id string) string {
	if strings.Contains(strings.ToLower(id), "accessory") {
		return KindAccessory
	}
	return KindClothing
}

// DefaultOutfit builds an outfit holding one empty enabled slot per id, with
// kinds inferred from the ids.
func DefaultOutfit(slotIDs []string) *Outfit {
	o := &Outfit{Slots: make([]*Slot, 0, len(slotIDs))}
	for _, id := range slotIDs {
		o.Slots = append(o.Slots, NewSlot(id, InferKind(id)))
	}
	return o
}

// NewCollection builds an empty collection whose auto outfit carries the
// default slot set.
func NewCollection(defaultSlotIDs []string) *Collection {
	return &Collection{
		Auto:      DefaultOutfit(defaultSlotIDs),
		Saved:     make(map[string]*Outfit),
		Snapshots: make(map[string]*CachedSnapshot),
	}
}

// LoadOutfitResult is the outcome of CollectionView.LoadSavedOutfit.
type LoadOutfitResult int

const (
	OutfitLoaded LoadOutfitResult = iota
	LoadOutfitNotFound
	OutfitAlreadyWorn
)

// CollectionView is the capability surface over one identity's collection.
// Two variants exist: the user's single fixed collection and a character's
// lazily-created one. Both are structurally identical at every call site.
type CollectionView interface {
	// Auto returns a mutable view of the live outfit, creating it with the
	// default slot set on first touch.
	Auto() *MutableView
	// AutoOutfit returns the live outfit itself.
	AutoOutfit() *Outfit

	// SaveOutfit stores a detached copy of the live outfit under name,
	// overwriting any previous outfit saved under that name.
	SaveOutfit(name string)
	// GetSavedOutfit returns the outfit saved under name.
	GetSavedOutfit(name string) (*Outfit, bool)
	// DeleteSavedOutfit removes the outfit saved under name.
	DeleteSavedOutfit(name string) bool
	// SavedNames returns every saved outfit name, sorted.
	SavedNames() []string
	// LoadSavedOutfit replaces the live outfit with a copy of the named
	// saved one, unless the wearer already has a structurally equal outfit
	// on.
	LoadSavedOutfit(name string) LoadOutfitResult

	HideDisabled() bool
	SetHideDisabled(hide bool)
	HideEmpty() bool
	SetHideEmpty(hide bool)

	// Snapshots returns the snapshot registry of this collection.
	Snapshots() *SnapshotView
}

// viewCore implements CollectionView against a lazily resolved collection.
type viewCore struct {
	resolve      func() *Collection
	defaultSlots []string
}

func (vc *viewCore) AutoOutfit() *Outfit {
	c := vc.resolve()
	if c.Auto == nil {
		c.Auto = DefaultOutfit(vc.defaultSlots)
	}
	return c.Auto
}

func (vc *viewCore) Auto() *MutableView {
	return NewMutableView(vc.AutoOutfit())
}

func (vc *viewCore) SaveOutfit(name string) {
	c := vc.resolve()
	if c.Saved == nil {
		c.Saved = make(map[string]*Outfit)
	}
	c.Saved[name] = NewView(vc.AutoOutfit()).Snapshot()
}

func (vc *viewCore) GetSavedOutfit(name string) (*Outfit, bool) {
	o, ok := vc.resolve().Saved[name]
	return o, ok
}

func (vc *viewCore) DeleteSavedOutfit(name string) bool {
	c := vc.resolve()
	if _, ok := c.Saved[name]; !ok {
		return false
	}
	delete(c.Saved, name)
	return true
}

func (vc *viewCore) SavedNames() []string {
	c := vc.resolve()
	names := make([]string, 0, len(c.Saved))
	for name := range c.Saved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (vc *viewCore) LoadSavedOutfit(name string) LoadOutfitResult {
	c := vc.resolve()
	saved, ok := c.Saved[name]
	if !ok {
		return LoadOutfitNotFound
	}
	if SnapshotsEqual(vc.AutoOutfit(), saved) {
		return OutfitAlreadyWorn
	}
	c.Auto = saved.Clone()
	return OutfitLoaded
}

func (vc *viewCore) HideDisabled() bool        { return vc.resolve().HideDisabled }
func (vc *viewCore) SetHideDisabled(hide bool) { vc.resolve().HideDisabled = hide }
func (vc *viewCore) HideEmpty() bool           { return vc.resolve().HideEmpty }
func (vc *viewCore) SetHideEmpty(hide bool)    { vc.resolve().HideEmpty = hide }

func (vc *viewCore) Snapshots() *SnapshotView {
	c := vc.resolve()
	if c.Snapshots == nil {
		c.Snapshots = make(map[string]*CachedSnapshot)
	}
	return NewSnapshotView(c.Snapshots)
}

// UserCollectionView is the view over the single fixed user collection.
type UserCollectionView struct {
	viewCore
}

// NewUserCollectionView wraps an existing user collection.
func NewUserCollectionView(c *Collection, defaultSlots []string) *UserCollectionView {
	return &UserCollectionView{viewCore{
		resolve:      func() *Collection { return c },
		defaultSlots: defaultSlots,
	}}
}

// CharacterCollectionView is the view over one character's collection. The
// collection is created with the default slot set on first touch and stored
// into the parent map; onCreate fires once when that happens so the owner can
// mark the new collection for persistence.
type CharacterCollectionView struct {
	viewCore
	name string
}

// NewCharacterCollectionView builds a view over parent[name], vivifying it on
// first access.
func NewCharacterCollectionView(parent map[string]*Collection, name string, defaultSlots []string, onCreate func(name string)) *CharacterCollectionView {
	v := &CharacterCollectionView{name: name}
	v.defaultSlots = defaultSlots
	v.resolve = func() *Collection {
		c, ok := parent[name]
		if !ok {
			c = NewCollection(defaultSlots)
			parent[name] = c
			if onCreate != nil {
				onCreate(name)
			}
		}
		return c
	}
	return v
}

// Name returns the character this view belongs to.
func (v *CharacterCollectionView) Name() string { return v.name }

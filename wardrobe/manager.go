package wardrobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yumetose/wardrobe/cache"
	"github.com/yumetose/wardrobe/config"
	"github.com/yumetose/wardrobe/imagestore"
	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/outfit"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Owner identifies one collection: the user, or a named character.
type Owner struct {
	Kind string // model.OwnerUser | model.OwnerCharacter
	Name string
}

// UserOwner is the single user identity.
var UserOwner = Owner{Kind: model.OwnerUser, Name: "user"}

// CharacterOwner builds the owner key for a character.
func CharacterOwner(name string) Owner {
	return Owner{Kind: model.OwnerCharacter, Name: name}
}

// String renders the owner as a stable key, e.g. "user" or "character:Rin".
func (o Owner) String() string {
	if o.Kind == model.OwnerUser {
		return model.OwnerUser
	}
	return o.Kind + ":" + o.Name
}

// ParseOwner parses the wire form produced by String.
func ParseOwner(s string) (Owner, error) {
	if s == model.OwnerUser {
		return UserOwner, nil
	}
	if name, ok := strings.CutPrefix(s, model.OwnerCharacter+":"); ok && name != "" {
		return CharacterOwner(name), nil
	}
	return Owner{}, fmt.Errorf("wardrobe: bad owner %q", s)
}

const ownersSetKey = "wardrobe:owners"

// Manager owns the in-memory collection trees for every identity and is the
// only component that persists them. Mutation and persistence are deliberately
// decoupled: callers mutate through the views, then mark the owner dirty; the
// autosave tick or an explicit save writes the tree back.
type Manager struct {
	mu         sync.Mutex
	user       *outfit.Collection
	characters map[string]*outfit.Collection
	dirty      map[Owner]bool

	images *imagestore.Store
	db     *gorm.DB // nil = no persistence (tests)
	cache  cache.Cache
	pubsub cache.PubSub
	cfg    config.WardrobeConfig
	logger *zap.Logger
}

// NewManager creates a Manager. Load must be called before the first view
// access when persisted state exists.
func NewManager(db *gorm.DB, c cache.Cache, ps cache.PubSub, images *imagestore.Store, cfg config.WardrobeConfig, logger *zap.Logger) *Manager {
	if len(cfg.DefaultSlots) == 0 {
		cfg.DefaultSlots = config.DefaultSlotIDs
	}
	return &Manager{
		user:       outfit.NewCollection(cfg.DefaultSlots),
		characters: make(map[string]*outfit.Collection),
		dirty:      make(map[Owner]bool),
		images:     images,
		db:         db,
		cache:      c,
		pubsub:     ps,
		cfg:        cfg,
		logger:     logger,
	}
}

// Images returns the image store this manager guards references for.
func (m *Manager) Images() *imagestore.Store { return m.images }

// KindOrder returns the configured kind bucket order for sorting.
func (m *Manager) KindOrder() []string { return m.cfg.KindOrder }

// Load reads and normalizes every persisted wardrobe state row. Malformed
// payloads degrade to valid defaults; Load only fails on database errors.
func (m *Manager) Load(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	var rows []model.WardrobeState
	if err := m.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		var raw interface{}
		if err := json.Unmarshal(row.Payload, &raw); err != nil {
			m.logger.Warn("wardrobe payload does not decode, using defaults",
				zap.String("owner", row.OwnerKind+":"+row.OwnerName))
			raw = nil
		}
		col := outfit.NormalizeCollection(raw)
		switch row.OwnerKind {
		case model.OwnerUser:
			m.user = col
		case model.OwnerCharacter:
			m.characters[row.OwnerName] = col
			m.registerOwner(CharacterOwner(row.OwnerName))
		default:
			m.logger.Warn("unknown wardrobe owner kind, skipping",
				zap.String("kind", row.OwnerKind))
		}
	}
	m.registerOwner(UserOwner)
	m.logger.Info("wardrobe collections loaded", zap.Int("count", len(rows)))
	return nil
}

// userView builds the view over the user's fixed collection. Caller holds
// m.mu.
func (m *Manager) userView() outfit.CollectionView {
	return outfit.NewUserCollectionView(m.user, m.cfg.DefaultSlots)
}

// characterView builds the view over a character's collection, creating it
// with the default slot set on first touch. Caller holds m.mu.
func (m *Manager) characterView(name string) outfit.CollectionView {
	return outfit.NewCharacterCollectionView(m.characters, name, m.cfg.DefaultSlots, func(created string) {
		owner := CharacterOwner(created)
		m.dirty[owner] = true
		m.registerOwner(owner)
	})
}

// view resolves an owner to its collection view. Caller holds m.mu.
func (m *Manager) view(owner Owner) outfit.CollectionView {
	if owner.Kind == model.OwnerUser {
		return m.userView()
	}
	return m.characterView(owner.Name)
}

// With runs fn against the owner's collection view while holding the manager
// lock. Every read and mutation of a collection tree goes through here or
// Mutate; the view must not be retained past fn, and fn must not call back
// into manager methods that take the lock.
func (m *Manager) With(owner Owner, fn func(outfit.CollectionView)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.view(owner))
}

// Mutate is With narrowed to the owner's live outfit.
func (m *Manager) Mutate(owner Owner, fn func(*outfit.MutableView)) {
	m.With(owner, func(v outfit.CollectionView) { fn(v.Auto()) })
}

// EnsureCharacter materializes a character's collection with the default slot
// set if it does not exist yet.
func (m *Manager) EnsureCharacter(name string) {
	m.Mutate(CharacterOwner(name), func(*outfit.MutableView) {})
}

// CharacterNames returns every character with a loaded collection.
func (m *Manager) CharacterNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.characters))
	for name := range m.characters {
		names = append(names, name)
	}
	return names
}

// MarkDirty flags an owner's tree for the next save.
func (m *Manager) MarkDirty(owner Owner) {
	m.mu.Lock()
	m.dirty[owner] = true
	m.mu.Unlock()
}

func (m *Manager) collection(owner Owner) (*outfit.Collection, bool) {
	if owner.Kind == model.OwnerUser {
		return m.user, true
	}
	c, ok := m.characters[owner.Name]
	return c, ok
}

// Save persists one owner's tree now, regardless of its dirty flag.
func (m *Manager) Save(ctx context.Context, owner Owner) error {
	if m.db == nil {
		return nil
	}
	m.mu.Lock()
	col, ok := m.collection(owner)
	if !ok {
		m.mu.Unlock()
		return errors.New("wardrobe: unknown owner")
	}
	payload, err := json.Marshal(col)
	delete(m.dirty, owner)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	row := &model.WardrobeState{
		OwnerKind: owner.Kind,
		OwnerName: owner.Name,
		Payload:   datatypes.JSON(payload),
		UpdatedAt: time.Now(),
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_kind"}, {Name: "owner_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(row).Error
}

// SaveDirty persists every owner marked dirty. Called by the autosave tick
// and at shutdown.
func (m *Manager) SaveDirty(ctx context.Context) {
	m.mu.Lock()
	owners := make([]Owner, 0, len(m.dirty))
	for owner := range m.dirty {
		owners = append(owners, owner)
	}
	m.mu.Unlock()

	for _, owner := range owners {
		if err := m.Save(ctx, owner); err != nil {
			m.logger.Error("wardrobe autosave failed",
				zap.String("owner", owner.String()), zap.Error(err))
		}
	}
}

// DirtyCount returns the number of owners with unsaved changes.
func (m *Manager) DirtyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty)
}

// ImageKeyInUse implements imagestore.ReferenceScanner: a full sweep over the
// auto outfit and every saved outfit of the user and every character.
func (m *Manager) ImageKeyInUse(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	inOutfit := func(o *outfit.Outfit) bool {
		if o == nil {
			return false
		}
		for _, s := range o.Slots {
			for _, img := range s.Images {
				if img.Key == key {
					return true
				}
			}
		}
		return false
	}
	inCollection := func(c *outfit.Collection) bool {
		if c == nil {
			return false
		}
		if inOutfit(c.Auto) {
			return true
		}
		for _, o := range c.Saved {
			if inOutfit(o) {
				return true
			}
		}
		return false
	}

	if inCollection(m.user) {
		return true
	}
	for _, c := range m.characters {
		if inCollection(c) {
			return true
		}
	}
	return false
}

// registerOwner records the owner in the cache set backing admin listings.
// Caller holds m.mu.
func (m *Manager) registerOwner(owner Owner) {
	if m.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.cache.SAdd(ctx, ownersSetKey, owner.String()); err != nil {
		m.logger.Warn("owner registry update failed", zap.Error(err))
	}
}

// UnregisterOwner drops the owner key from the registry set. The in-memory
// collection and its persisted rows stay, so a re-created owner of the same
// name recovers its wardrobe.
func (m *Manager) UnregisterOwner(ctx context.Context, owner Owner) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SRem(ctx, ownersSetKey, owner.String()); err != nil {
		m.logger.Warn("owner registry update failed", zap.Error(err))
	}
}

// KnownOwners lists every owner ever registered, from the cache set.
func (m *Manager) KnownOwners(ctx context.Context) ([]string, error) {
	if m.cache == nil {
		return nil, nil
	}
	return m.cache.SMembers(ctx, ownersSetKey)
}

// IsKnownOwner reports whether the owner key is in the registry.
func (m *Manager) IsKnownOwner(ctx context.Context, key string) (bool, error) {
	if m.cache == nil {
		return false, nil
	}
	return m.cache.SIsMember(ctx, ownersSetKey, key)
}

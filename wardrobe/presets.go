package wardrobe

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yumetose/wardrobe/cache"
	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/outfit"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const presetRecencyKey = "presets:recent"

// PresetRegistry holds the reusable slot presets: a value plus an optional
// image, keyed by a user-chosen tag. Loaded into memory at startup and
// written through to the database on mutation.
type PresetRegistry struct {
	mu      sync.Mutex
	presets map[string]*model.SlotPreset
	db      *gorm.DB // nil = no persistence (tests)
	cache   cache.Cache
	logger  *zap.Logger
}

// NewPresetRegistry creates an empty registry.
func NewPresetRegistry(db *gorm.DB, c cache.Cache, logger *zap.Logger) *PresetRegistry {
	return &PresetRegistry{
		presets: make(map[string]*model.SlotPreset),
		db:      db,
		cache:   c,
		logger:  logger,
	}
}

// Load populates the registry from the database.
func (r *PresetRegistry) Load(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	var rows []model.SlotPreset
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range rows {
		row := rows[i]
		r.presets[row.Tag] = &row
	}
	return nil
}

// Get returns the preset stored under tag.
func (r *PresetRegistry) Get(tag string) (model.SlotPreset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presets[tag]
	if !ok {
		return model.SlotPreset{}, false
	}
	return *p, true
}

// Put inserts or overwrites the preset stored under tag.
func (r *PresetRegistry) Put(ctx context.Context, p model.SlotPreset) {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastUsedAt.IsZero() {
		p.LastUsedAt = now
	}
	r.mu.Lock()
	r.presets[p.Tag] = &p
	r.mu.Unlock()

	r.persist(ctx, p)
	r.indexRecency(ctx, p)
}

// Delete removes the preset stored under tag.
func (r *PresetRegistry) Delete(ctx context.Context, tag string) bool {
	r.mu.Lock()
	_, ok := r.presets[tag]
	delete(r.presets, tag)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if r.db != nil {
		if err := r.db.WithContext(ctx).Delete(&model.SlotPreset{}, "tag = ?", tag).Error; err != nil {
			r.logger.Error("preset delete failed", zap.String("tag", tag), zap.Error(err))
		}
	}
	return true
}

// Touch bumps a preset's last-used time, keeping the recency sort fresh.
func (r *PresetRegistry) Touch(ctx context.Context, tag string) bool {
	r.mu.Lock()
	p, ok := r.presets[tag]
	if !ok {
		r.mu.Unlock()
		return false
	}
	p.LastUsedAt = time.Now()
	cp := *p
	r.mu.Unlock()

	r.persist(ctx, cp)
	r.indexRecency(ctx, cp)
	return true
}

// AllSorted returns every preset ordered by last use, newest first; ties in
// recency fall back to creation time, newest first.
func (r *PresetRegistry) AllSorted() []model.SlotPreset {
	r.mu.Lock()
	out := make([]model.SlotPreset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, *p)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// RecentTags reads the cached recency index, newest first.
func (r *PresetRegistry) RecentTags(ctx context.Context, limit int64) ([]string, error) {
	if r.cache == nil {
		return nil, nil
	}
	return r.cache.ZRevRange(ctx, presetRecencyKey, 0, limit-1)
}

// LastUsed reads one tag's recency timestamp from the index. Returns false
// when the tag was never indexed.
func (r *PresetRegistry) LastUsed(ctx context.Context, tag string) (time.Time, bool) {
	if r.cache == nil {
		return time.Time{}, false
	}
	score, err := r.cache.ZScore(ctx, presetRecencyKey, tag)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(score)), true
}

// ApplyPresetResult is the outcome of PresetRegistry.Apply.
type ApplyPresetResult int

const (
	PresetApplied ApplyPresetResult = iota
	ApplyPresetNotFound
	ApplySlotNotFound
	ApplyImageMissing
)

// Apply copies a preset's value onto a slot and attaches its image when one
// is recorded. The attach tag is the preset tag. A missing image blob still
// leaves the value applied.
func (r *PresetRegistry) Apply(ctx context.Context, tag string, view *outfit.MutableView, slotID string, blobs outfit.BlobResolver) ApplyPresetResult {
	p, ok := r.Get(tag)
	if !ok {
		return ApplyPresetNotFound
	}
	if !view.SetValue(slotID, outfit.NewValue(p.Value)) {
		return ApplySlotNotFound
	}
	r.Touch(ctx, tag)
	if p.ImageKey != "" {
		switch st := view.AttachImage(slotID, tag, p.ImageKey, blobs); st {
		case outfit.ImageAttached:
		case outfit.AttachBlobMissing:
			return ApplyImageMissing
		case outfit.AttachSlotNotFound:
			return ApplySlotNotFound
		}
	}
	return PresetApplied
}

func (r *PresetRegistry) persist(ctx context.Context, p model.SlotPreset) {
	if r.db == nil {
		return
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tag"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "image_key", "image_width", "image_height", "last_used_at"}),
	}).Create(&p).Error
	if err != nil {
		r.logger.Error("preset write failed", zap.String("tag", p.Tag), zap.Error(err))
	}
}

func (r *PresetRegistry) indexRecency(ctx context.Context, p model.SlotPreset) {
	if r.cache == nil {
		return
	}
	score := float64(p.LastUsedAt.UnixMilli())
	if err := r.cache.ZAdd(ctx, presetRecencyKey, score, p.Tag); err != nil {
		r.logger.Warn("preset recency index update failed", zap.Error(err))
	}
}

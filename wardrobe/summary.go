package wardrobe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yumetose/wardrobe/outfit"
	"go.uber.org/zap"
)

// The derived summaries are a pure projection of the live outfit into the
// external key-value store: one XML-like block per kind plus a whole-outfit
// block, written as hash fields under "summary:<owner>". Nothing reads them
// back into the model.

const wholeOutfitField = "outfit"

func summarizeSlots(slots []*outfit.Slot) string {
	var b strings.Builder
	for _, s := range slots {
		fmt.Fprintf(&b, "<%s>%s</%s>\n", s.ID, s.Value.String(), s.ID)
	}
	return b.String()
}

// BuildSummaries renders the per-kind and whole-outfit blocks for one live
// outfit. Disabled slots are excluded even when non-empty.
func BuildSummaries(o *outfit.Outfit) map[string]string {
	view := outfit.NewView(o)
	enabled := func(s *outfit.Slot) bool { return s.Enabled }

	fields := make(map[string]string)
	var whole strings.Builder
	for _, kind := range view.Kinds() {
		slots := view.SlotRecords(func(s *outfit.Slot) bool { return enabled(s) && s.Kind == kind })
		if len(slots) == 0 {
			continue
		}
		block := fmt.Sprintf("<%s>\n%s</%s>", kind, summarizeSlots(slots), kind)
		fields[kind] = block
		whole.WriteString(block)
		whole.WriteString("\n")
	}
	fields[wholeOutfitField] = strings.TrimRight(whole.String(), "\n")
	return fields
}

// UpdateSummaries recomputes and writes an owner's summary variables.
func (m *Manager) UpdateSummaries(ctx context.Context, owner Owner) {
	if m.cache == nil {
		return
	}
	var fields map[string]string
	m.With(owner, func(v outfit.CollectionView) {
		fields = BuildSummaries(v.AutoOutfit())
	})

	key := m.summaryKey(owner)
	// Drop stale kind fields from a previous projection before rewriting.
	if old, err := m.cache.HGetAll(ctx, key); err == nil {
		for field := range old {
			if _, still := fields[field]; !still {
				_ = m.cache.HDel(ctx, key, field)
			}
		}
	}
	for field, block := range fields {
		if err := m.cache.HSet(ctx, key, field, block); err != nil {
			m.logger.Warn("summary write failed",
				zap.String("owner", owner.String()), zap.String("field", field), zap.Error(err))
			return
		}
	}
}

// Summaries reads an owner's projected summary blocks.
func (m *Manager) Summaries(ctx context.Context, owner Owner) (map[string]string, error) {
	if m.cache == nil {
		return map[string]string{}, nil
	}
	return m.cache.HGetAll(ctx, m.summaryKey(owner))
}

// Summary reads a single projected block, e.g. one kind's. Returns the
// backend's not-found error when no block exists under the field.
func (m *Manager) Summary(ctx context.Context, owner Owner, field string) (string, error) {
	if m.cache == nil {
		return "", nil
	}
	return m.cache.HGet(ctx, m.summaryKey(owner), field)
}

func (m *Manager) summaryKey(owner Owner) string {
	prefix := m.cfg.SummaryPrefix
	if prefix == "" {
		prefix = "summary"
	}
	return prefix + ":" + owner.String()
}

// ---- change events ----

const eventsChannel = "wardrobe:events"

// ChangeEvent is published on every wardrobe mutation so SSE clients can
// refresh.
type ChangeEvent struct {
	Owner  string `json:"owner"`
	Action string `json:"action"`
	SlotID string `json:"slot_id,omitempty"`
}

// EventsChannel returns the pub/sub channel change events go out on.
func EventsChannel() string { return eventsChannel }

// PublishChange emits a change event; failures are logged, never surfaced.
func (m *Manager) PublishChange(ctx context.Context, owner Owner, action, slotID string) {
	if m.pubsub == nil {
		return
	}
	payload := fmt.Sprintf(`{"owner":%q,"action":%q,"slot_id":%q}`, owner.String(), action, slotID)
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.pubsub.Publish(pubCtx, eventsChannel, payload); err != nil {
		m.logger.Warn("change event publish failed", zap.Error(err))
	}
}

// NotifyMutation is the one call handlers make after a successful mutation:
// marks the owner dirty, refreshes summaries, and publishes the change event.
func (m *Manager) NotifyMutation(ctx context.Context, owner Owner, action, slotID string) {
	m.MarkDirty(owner)
	m.UpdateSummaries(ctx, owner)
	m.PublishChange(ctx, owner, action, slotID)
}

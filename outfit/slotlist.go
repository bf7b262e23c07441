package outfit

import "fmt"

// BlobInfo is the subset of an image blob the slot layer records at attach
// time.
type BlobInfo struct {
	Width  int
	Height int
}

// BlobResolver answers whether a content key exists in the image store.
// Implemented by imagestore.Store.
type BlobResolver interface {
	LookupBlob(key string) (BlobInfo, bool)
}

// SlotList is the ordered, uniquely-indexed slot sequence for one outfit and
// the mutation engine every higher layer drives. The backing store is a dense
// ordered slice; the id→index map is a derived cache, rebuilt wholesale after
// any operation that reorders more than the tail and patched incrementally for
// appends and renames.
//
// Not safe for concurrent use: the host mutation model is single-writer.
type SlotList struct {
	slots []*Slot
	index map[string]int
}

// NewSlotList wraps an existing slot sequence. A duplicate slot id is a fatal
// programming error and panics.
func NewSlotList(slots []*Slot) *SlotList {
	l := &SlotList{slots: slots}
	l.rebuildIndex()
	return l
}

func (l *SlotList) rebuildIndex() {
	l.index = make(map[string]int, len(l.slots))
	for i, s := range l.slots {
		if _, dup := l.index[s.ID]; dup {
			panic(fmt.Sprintf("outfit: duplicate slot id %q", s.ID))
		}
		l.index[s.ID] = i
	}
}

// Len returns the number of slots.
func (l *SlotList) Len() int { return len(l.slots) }

// Slots returns the backing slice. Callers must not reorder it.
func (l *SlotList) Slots() []*Slot { return l.slots }

// Get returns the slot with the given id.
func (l *SlotList) Get(id string) (*Slot, bool) {
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.slots[i], true
}

// Has reports whether a slot with the given id exists.
func (l *SlotList) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

// SetValue replaces the value of the slot with the given id.
// Returns false if the id is unknown.
func (l *SlotList) SetValue(id string, v Value) bool {
	s, ok := l.Get(id)
	if !ok {
		return false
	}
	s.Value = v
	return true
}

// SetEnabled flips the enabled flag of the slot with the given id.
// Returns false if the id is unknown.
func (l *SlotList) SetEnabled(id string, enabled bool) bool {
	s, ok := l.Get(id)
	if !ok {
		return false
	}
	s.Enabled = enabled
	return true
}

// SetEquipped flips the equipped flag of the slot with the given id.
// Returns false if the id is unknown.
func (l *SlotList) SetEquipped(id string, equipped bool) bool {
	s, ok := l.Get(id)
	if !ok {
		return false
	}
	s.Equipped = equipped
	return true
}

// Add appends a new empty enabled slot. Appending does not disturb existing
// indices, so the index map is patched instead of rebuilt.
func (l *SlotList) Add(id, kind string) AddSlotResult {
	if l.Has(id) {
		return SlotAlreadyExists
	}
	l.slots = append(l.slots, NewSlot(id, kind))
	l.index[id] = len(l.slots) - 1
	return SlotAdded
}

// Delete splices the slot out. Every index after the removed position shifts,
// so the whole index map is rebuilt. Returns false if the id is unknown.
func (l *SlotList) Delete(id string) bool {
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.slots = append(l.slots[:i], l.slots[i+1:]...)
	l.rebuildIndex()
	return true
}

// MoveIndex removes the slot at source and reinserts it before the element
// currently at target; target == Len() appends at the end. When source <
// target the effective landing position is target-1 because the removal
// shifts everything after source left — callers computing target from a
// desired neighbor account for this.
func (l *SlotList) MoveIndex(source, target int) MoveResult {
	if source < 0 || source >= len(l.slots) {
		return MoveSlotNotFound
	}
	if target < 0 || target > len(l.slots) {
		return MoveOutOfBounds
	}
	if source == target {
		return MoveNoop
	}
	s := l.slots[source]
	l.slots = append(l.slots[:source], l.slots[source+1:]...)
	if target > source {
		target--
	}
	l.slots = append(l.slots[:target], append([]*Slot{s}, l.slots[target:]...)...)
	l.rebuildIndex()
	return Moved
}

// Move relocates the slot with the given id to targetIndex.
func (l *SlotList) Move(id string, targetIndex int) MoveResult {
	i, ok := l.index[id]
	if !ok {
		return MoveSlotNotFound
	}
	return l.MoveIndex(i, targetIndex)
}

// Rename changes a slot's id in place. Position is preserved, so the index
// map is patched, not rebuilt.
func (l *SlotList) Rename(oldID, newID string) RenameResult {
	i, ok := l.index[oldID]
	if !ok {
		return RenameSlotNotFound
	}
	if l.Has(newID) {
		return RenameTargetExists
	}
	l.slots[i].ID = newID
	delete(l.index, oldID)
	l.index[newID] = i
	return Renamed
}

// MoveToKind retags a slot with a new kind and relocates it to the end of the
// sequence so a following SortByKind re-groups it. A MoveIndex outcome other
// than Moved or MoveNoop here means the engine's own bookkeeping broke.
func (l *SlotList) MoveToKind(id, kind string) MoveToKindResult {
	i, ok := l.index[id]
	if !ok {
		return MoveToKindSlotNotFound
	}
	if l.slots[i].Kind == kind {
		return MoveToKindNoop
	}
	l.slots[i].Kind = kind
	switch r := l.MoveIndex(i, len(l.slots)); r {
	case Moved, MoveNoop:
	default:
		unreachable(r)
	}
	return MovedToKind
}

// SortByKind stably partitions the slots into per-kind buckets (original
// relative order preserved within each bucket) and concatenates the buckets
// in kindOrder. Kinds not listed keep their natural encounter order, appended
// after all explicitly-ordered kinds.
func (l *SlotList) SortByKind(kindOrder []string) {
	buckets := make(map[string][]*Slot)
	var encounter []string
	for _, s := range l.slots {
		if _, seen := buckets[s.Kind]; !seen {
			encounter = append(encounter, s.Kind)
		}
		buckets[s.Kind] = append(buckets[s.Kind], s)
	}

	sorted := make([]*Slot, 0, len(l.slots))
	taken := make(map[string]bool)
	for _, kind := range kindOrder {
		if taken[kind] {
			continue
		}
		taken[kind] = true
		sorted = append(sorted, buckets[kind]...)
	}
	for _, kind := range encounter {
		if taken[kind] {
			continue
		}
		sorted = append(sorted, buckets[kind]...)
	}
	l.slots = sorted
	l.rebuildIndex()
}

// RenameKind bulk-retags every slot of oldKind. Rejected when newKind already
// names an existing kind: kinds stay disjoint.
func (l *SlotList) RenameKind(oldKind, newKind string) RenameKindResult {
	oldFound := false
	for _, s := range l.slots {
		switch s.Kind {
		case oldKind:
			oldFound = true
		case newKind:
			return RenameKindNewExists
		}
	}
	if !oldFound {
		return RenameKindOldNotFound
	}
	for _, s := range l.slots {
		if s.Kind == oldKind {
			s.Kind = newKind
		}
	}
	return KindRenamed
}

// Kinds returns the distinct kinds in encounter order.
func (l *SlotList) Kinds() []string {
	var kinds []string
	seen := make(map[string]bool)
	for _, s := range l.slots {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

// AttachImage records an image reference on a slot after validating the blob
// exists. Width and height come from the blob; a re-attach under an existing
// tag overwrites it.
func (l *SlotList) AttachImage(id, tag, blobKey string, blobs BlobResolver) AttachImageStatus {
	s, ok := l.Get(id)
	if !ok {
		return AttachSlotNotFound
	}
	info, ok := blobs.LookupBlob(blobKey)
	if !ok {
		return AttachBlobMissing
	}
	s.Images[tag] = ImageRef{Key: blobKey, Width: info.Width, Height: info.Height}
	return ImageAttached
}

// DeleteImage removes an image reference and reports the blob key that was
// removed. If the deleted tag was active, the active tag is cleared.
func (l *SlotList) DeleteImage(id, tag string) DeleteImageResult {
	s, ok := l.Get(id)
	if !ok {
		return DeleteImageResult{Status: DeleteImageSlotNotFound}
	}
	img, ok := s.Images[tag]
	if !ok {
		return DeleteImageResult{Status: DeleteImageTagNotFound}
	}
	delete(s.Images, tag)
	if s.ActiveImageTag == tag {
		s.ActiveImageTag = ""
	}
	return DeleteImageResult{Status: ImageDeleted, RemovedKey: img.Key}
}

// SetActiveImage makes tag the displayed image. The tag is assigned before
// the existence check: a missing image record still updates the active tag
// and reports SetActiveImageMissing. UI code depends on this ordering.
func (l *SlotList) SetActiveImage(id, tag string) SetActiveImageResult {
	s, ok := l.Get(id)
	if !ok {
		return SetActiveSlotNotFound
	}
	if s.ActiveImageTag == tag {
		return ActiveImageAlready
	}
	s.ActiveImageTag = tag
	if _, exists := s.Images[tag]; !exists {
		return SetActiveImageMissing
	}
	return ActiveImageSet
}

// ToggleImage sets the hidden flag on an image record. Idempotent: setting
// the flag to its current state is reported, not re-applied.
func (l *SlotList) ToggleImage(id, tag string, hidden bool) ToggleImageResult {
	s, ok := l.Get(id)
	if !ok {
		return ToggleImageSlotNotFound
	}
	img, ok := s.Images[tag]
	if !ok {
		return ToggleImageTagNotFound
	}
	if img.Hidden == hidden {
		return ToggleImageAlreadySet
	}
	img.Hidden = hidden
	s.Images[tag] = img
	return ImageToggled
}

// ResizeImage updates the recorded dimensions of an image record. A resize to
// the current dimensions is a no-op.
func (l *SlotList) ResizeImage(id, tag string, width, height int) ResizeImageResult {
	s, ok := l.Get(id)
	if !ok {
		return ResizeImageSlotNotFound
	}
	img, ok := s.Images[tag]
	if !ok {
		return ResizeImageTagNotFound
	}
	if img.Width == width && img.Height == height {
		return ResizeImageNoop
	}
	img.Width = width
	img.Height = height
	s.Images[tag] = img
	return ImageResized
}

package outfit

// View is the read-only façade over one outfit's slot list.
type View struct {
	list *SlotList
}

// NewView wraps an outfit in a read-only view.
func NewView(o *Outfit) *View {
	return &View{list: NewSlotList(o.Slots)}
}

// Slots returns the slots in display order.
func (v *View) Slots() []*Slot { return v.list.Slots() }

// Len returns the number of slots.
func (v *View) Len() int { return v.list.Len() }

// Has reports whether a slot with the given id exists.
func (v *View) Has(id string) bool { return v.list.Has(id) }

// Get returns the slot with the given id.
func (v *View) Get(id string) (*Slot, bool) { return v.list.Get(id) }

// Values returns an id→value map of every slot.
func (v *View) Values() map[string]Value {
	values := make(map[string]Value, v.list.Len())
	for _, s := range v.list.Slots() {
		values[s.ID] = s.Value
	}
	return values
}

// SlotRecords returns the slots matching the predicate, in display order.
func (v *View) SlotRecords(pred func(*Slot) bool) []*Slot {
	var out []*Slot
	for _, s := range v.list.Slots() {
		if pred == nil || pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// Kinds returns the distinct slot kinds in encounter order.
func (v *View) Kinds() []string { return v.list.Kinds() }

// ByKind partitions the slots into per-kind groups, display order preserved
// within each group.
func (v *View) ByKind() map[string][]*Slot {
	groups := make(map[string][]*Slot)
	for _, s := range v.list.Slots() {
		groups[s.Kind] = append(groups[s.Kind], s)
	}
	return groups
}

// Snapshot captures a deep, detached copy of the outfit: safe to store or
// compare after the live outfit mutates.
func (v *View) Snapshot() *Outfit {
	cp := &Outfit{Slots: make([]*Slot, v.list.Len())}
	for i, s := range v.list.Slots() {
		cp.Slots[i] = s.Clone()
	}
	return cp
}

// SnapshotsEqual reports structural equality of two outfit snapshots: same
// slot count, identical (id, kind) pairs in order, and identical value sets
// regardless of which slot holds which value. Used to short-circuit loading a
// preset the wearer already has on.
func SnapshotsEqual(a, b *Outfit) bool {
	if len(a.Slots) != len(b.Slots) {
		return false
	}
	for i := range a.Slots {
		if a.Slots[i].ID != b.Slots[i].ID || a.Slots[i].Kind != b.Slots[i].Kind {
			return false
		}
	}
	counts := make(map[string]int, len(a.Slots))
	for _, s := range a.Slots {
		counts[s.Value.String()]++
	}
	for _, s := range b.Slots {
		counts[s.Value.String()]--
		if counts[s.Value.String()] < 0 {
			return false
		}
	}
	return true
}

// MutableView adds the structural mutation entry points on top of View. All
// mutation contracts are those of SlotList. Structural mutations are written
// back into the wrapped outfit so collections holding the *Outfit observe
// them.
type MutableView struct {
	View
	outfit *Outfit
}

// NewMutableView wraps an outfit in a mutable view.
func NewMutableView(o *Outfit) *MutableView {
	return &MutableView{View: View{list: NewSlotList(o.Slots)}, outfit: o}
}

// sync writes the (possibly reallocated) backing slice back to the outfit.
func (v *MutableView) sync() { v.outfit.Slots = v.list.Slots() }

// SetValue replaces a slot's value; false if the id is unknown.
func (v *MutableView) SetValue(id string, val Value) bool { return v.list.SetValue(id, val) }

// SetEnabled flips a slot's enabled flag; false if the id is unknown.
func (v *MutableView) SetEnabled(id string, enabled bool) bool {
	return v.list.SetEnabled(id, enabled)
}

// ToggleSlot flips a slot's enabled flag; false if the id is unknown.
func (v *MutableView) ToggleSlot(id string) bool {
	s, ok := v.list.Get(id)
	if !ok {
		return false
	}
	s.Enabled = !s.Enabled
	return true
}

// SetEquipped flips a slot's equipped flag; false if the id is unknown.
func (v *MutableView) SetEquipped(id string, equipped bool) bool {
	return v.list.SetEquipped(id, equipped)
}

// AddSlot appends a new empty slot.
func (v *MutableView) AddSlot(id, kind string) AddSlotResult {
	r := v.list.Add(id, kind)
	v.sync()
	return r
}

// DeleteSlot removes a slot; false if the id is unknown.
func (v *MutableView) DeleteSlot(id string) bool {
	ok := v.list.Delete(id)
	v.sync()
	return ok
}

// ShiftSlotByIndex reorders by index, for drag/move UIs.
func (v *MutableView) ShiftSlotByIndex(source, target int) MoveResult {
	r := v.list.MoveIndex(source, target)
	v.sync()
	return r
}

// MoveSlot relocates the slot with the given id to targetIndex.
func (v *MutableView) MoveSlot(id string, targetIndex int) MoveResult {
	r := v.list.Move(id, targetIndex)
	v.sync()
	return r
}

// RenameSlot changes a slot's id, preserving its position.
func (v *MutableView) RenameSlot(oldID, newID string) RenameResult {
	return v.list.Rename(oldID, newID)
}

// MoveToKind retags a slot and relocates it to the end of the sequence.
func (v *MutableView) MoveToKind(id, kind string) MoveToKindResult {
	r := v.list.MoveToKind(id, kind)
	v.sync()
	return r
}

// SortByKind groups the slots into kind buckets in the given order.
func (v *MutableView) SortByKind(kindOrder []string) {
	v.list.SortByKind(kindOrder)
	v.sync()
}

// RenameKind bulk-retags every slot of oldKind.
func (v *MutableView) RenameKind(oldKind, newKind string) RenameKindResult {
	return v.list.RenameKind(oldKind, newKind)
}

// AttachImage records an image reference on a slot.
func (v *MutableView) AttachImage(id, tag, blobKey string, blobs BlobResolver) AttachImageStatus {
	return v.list.AttachImage(id, tag, blobKey, blobs)
}

// DeleteImage removes an image reference.
func (v *MutableView) DeleteImage(id, tag string) DeleteImageResult {
	return v.list.DeleteImage(id, tag)
}

// SetActiveImage makes tag the displayed image for a slot.
func (v *MutableView) SetActiveImage(id, tag string) SetActiveImageResult {
	return v.list.SetActiveImage(id, tag)
}

// ToggleImage sets the hidden flag on an image record.
func (v *MutableView) ToggleImage(id, tag string, hidden bool) ToggleImageResult {
	return v.list.ToggleImage(id, tag, hidden)
}

// ResizeImage updates an image record's recorded dimensions.
func (v *MutableView) ResizeImage(id, tag string, width, height int) ResizeImageResult {
	return v.list.ResizeImage(id, tag, width, height)
}

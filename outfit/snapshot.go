package outfit

import "time"

// CachedSnapshot is a lightweight slot-id→value capture taken under a
// namespace key, kept for later diffing independent of the live outfit's
// structure.
type CachedSnapshot struct {
	Namespace string            `json:"namespace"`
	Slots     map[string]string `json:"slots"`
	CreatedAt time.Time         `json:"created_at"`
}

// SnapshotDiff is the structural difference between two cached snapshots.
// A slot present in both with the same value appears in no bucket.
type SnapshotDiff struct {
	Added   map[string]string      `json:"added"`
	Removed []string               `json:"removed"`
	Changed map[string]ValueChange `json:"changed"`
}

// ValueChange is one changed slot value in a diff.
type ValueChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func emptyDiff() SnapshotDiff {
	return SnapshotDiff{
		Added:   make(map[string]string),
		Removed: []string{},
		Changed: make(map[string]ValueChange),
	}
}

// DiffSnapshots computes removed (keys only in from), added (keys only in
// to), and changed (keys in both with different values). Identical namespaces
// short-circuit to an empty diff.
func DiffSnapshots(from, to *CachedSnapshot) SnapshotDiff {
	diff := emptyDiff()
	if from.Namespace == to.Namespace {
		return diff
	}
	for id, val := range from.Slots {
		other, ok := to.Slots[id]
		switch {
		case !ok:
			diff.Removed = append(diff.Removed, id)
		case other != val:
			diff.Changed[id] = ValueChange{From: val, To: other}
		}
	}
	for id, val := range to.Slots {
		if _, ok := from.Slots[id]; !ok {
			diff.Added[id] = val
		}
	}
	return diff
}

// SnapshotView manages the namespace→snapshot map of one collection.
type SnapshotView struct {
	snapshots map[string]*CachedSnapshot
}

// NewSnapshotView wraps a collection's snapshot map.
func NewSnapshotView(snapshots map[string]*CachedSnapshot) *SnapshotView {
	return &SnapshotView{snapshots: snapshots}
}

// Write stores a fresh capture under namespace, overwriting any prior entry.
func (sv *SnapshotView) Write(namespace string, slots map[string]string) *CachedSnapshot {
	cp := make(map[string]string, len(slots))
	for id, val := range slots {
		cp[id] = val
	}
	snap := &CachedSnapshot{Namespace: namespace, Slots: cp, CreatedAt: time.Now()}
	sv.snapshots[namespace] = snap
	return snap
}

// Get returns the snapshot stored under namespace.
func (sv *SnapshotView) Get(namespace string) (*CachedSnapshot, bool) {
	s, ok := sv.snapshots[namespace]
	return s, ok
}

// Delete removes the snapshot stored under namespace.
func (sv *SnapshotView) Delete(namespace string) bool {
	if _, ok := sv.snapshots[namespace]; !ok {
		return false
	}
	delete(sv.snapshots, namespace)
	return true
}

// Namespaces returns every stored namespace key.
func (sv *SnapshotView) Namespaces() []string {
	out := make([]string, 0, len(sv.snapshots))
	for ns := range sv.snapshots {
		out = append(out, ns)
	}
	return out
}

// Diff diffs two stored namespaces. The second return is false when either
// namespace has no stored snapshot.
func (sv *SnapshotView) Diff(fromNS, toNS string) (SnapshotDiff, bool) {
	from, ok := sv.snapshots[fromNS]
	if !ok {
		return emptyDiff(), false
	}
	to, ok := sv.snapshots[toNS]
	if !ok {
		return emptyDiff(), false
	}
	return DiffSnapshots(from, to), true
}

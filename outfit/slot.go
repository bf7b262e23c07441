package outfit

// Default kinds assigned during legacy migration and slot creation.
const (
	KindClothing  = "Clothing"
	KindAccessory = "Accessory"
)

// ImageRef is one image attached to a slot. Key points into the image store;
// width and height are captured from the blob at attach time.
type ImageRef struct {
	Key    string `json:"key"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Hidden bool   `json:"hidden"`
}

// Slot is one trackable clothing or accessory item.
type Slot struct {
	ID             string              `json:"id"`
	Kind           string              `json:"kind"`
	Value          Value               `json:"value"`
	Enabled        bool                `json:"enabled"`
	Equipped       bool                `json:"equipped"`
	Images         map[string]ImageRef `json:"images"`
	ActiveImageTag string              `json:"active_image_tag,omitempty"`
}

// NewSlot creates an empty enabled slot of the given kind.
func NewSlot(id, kind string) *Slot {
	return &Slot{
		ID:      id,
		Kind:    kind,
		Enabled: true,
		Images:  make(map[string]ImageRef),
	}
}

// Clone returns a deep copy of the slot.
func (s *Slot) Clone() *Slot {
	cp := *s
	cp.Images = make(map[string]ImageRef, len(s.Images))
	for tag, img := range s.Images {
		cp.Images[tag] = img
	}
	return &cp
}

// Outfit is one ordered sequence of slots: a full worn or saved look.
type Outfit struct {
	Slots []*Slot `json:"slots"`
}

// Clone returns a deep copy of the outfit.
func (o *Outfit) Clone() *Outfit {
	cp := &Outfit{Slots: make([]*Slot, len(o.Slots))}
	for i, s := range o.Slots {
		cp.Slots[i] = s.Clone()
	}
	return cp
}

package outfit

import "fmt"

// Mutation outcomes are returned as typed results, never as errors: callers
// switch on every variant and map them to user-facing messages. A result value
// outside the declared set indicates a bug in this package and panics via
// unreachable().

// AddSlotResult is the outcome of SlotList.Add.
type AddSlotResult int

const (
	SlotAdded AddSlotResult = iota
	SlotAlreadyExists
)

// MoveResult is the outcome of SlotList.MoveIndex / Move.
type MoveResult int

const (
	Moved MoveResult = iota
	MoveSlotNotFound
	MoveOutOfBounds
	MoveNoop
)

// RenameResult is the outcome of SlotList.Rename.
type RenameResult int

const (
	Renamed RenameResult = iota
	RenameSlotNotFound
	RenameTargetExists
)

// MoveToKindResult is the outcome of SlotList.MoveToKind.
type MoveToKindResult int

const (
	MovedToKind MoveToKindResult = iota
	MoveToKindSlotNotFound
	MoveToKindNoop
)

// RenameKindResult is the outcome of SlotList.RenameKind.
type RenameKindResult int

const (
	KindRenamed RenameKindResult = iota
	RenameKindOldNotFound
	RenameKindNewExists
)

// AttachImageStatus is the outcome of SlotList.AttachImage.
type AttachImageStatus int

const (
	ImageAttached AttachImageStatus = iota
	AttachSlotNotFound
	AttachBlobMissing
)

// DeleteImageStatus tags a DeleteImageResult.
type DeleteImageStatus int

const (
	ImageDeleted DeleteImageStatus = iota
	DeleteImageSlotNotFound
	DeleteImageTagNotFound
)

// DeleteImageResult carries the removed blob key so the caller can attempt
// reference-counted cleanup in the image store.
type DeleteImageResult struct {
	Status     DeleteImageStatus
	RemovedKey string
}

// SetActiveImageResult is the outcome of SlotList.SetActiveImage.
type SetActiveImageResult int

const (
	ActiveImageSet SetActiveImageResult = iota
	SetActiveSlotNotFound
	SetActiveImageMissing
	ActiveImageAlready
)

// ToggleImageResult is the outcome of SlotList.ToggleImage.
type ToggleImageResult int

const (
	ImageToggled ToggleImageResult = iota
	ToggleImageSlotNotFound
	ToggleImageTagNotFound
	ToggleImageAlreadySet
)

// ResizeImageResult is the outcome of SlotList.ResizeImage.
type ResizeImageResult int

const (
	ImageResized ResizeImageResult = iota
	ResizeImageSlotNotFound
	ResizeImageTagNotFound
	ResizeImageNoop
)

// unreachable panics on a result variant that the declared set does not
// contain. Reaching it means a bug in this package, not bad input.
func unreachable(v interface{}) {
	panic(fmt.Sprintf("outfit: unreachable result variant %v", v))
}

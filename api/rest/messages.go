package rest

// Human-readable failure strings returned to clients. Typed results from the
// outfit core are mapped here at the API boundary.
const (
	MsgSlotNotFound      = "slot does not exist"
	MsgSlotAlreadyExists = "a slot with that id already exists"
	MsgMoveOutOfBounds   = "target position is out of range"
	MsgKindNotFound      = "no slots carry that kind"
	MsgKindAlreadyExists = "a kind with that name already exists"

	MsgOutfitNotFound    = "no saved outfit with that name"
	MsgOutfitAlreadyWorn = "that outfit is already being worn"

	MsgImageNotFound     = "no image attached under that tag"
	MsgBlobNotFound      = "image data does not exist"
	MsgImageStillInUse   = "image is still referenced by an outfit"
	MsgImageAlreadySet   = "image is already in that state"

	MsgPresetNotFound = "no preset saved under that tag"

	MsgSummaryNotFound = "no summary block under that field"

	MsgSnapshotNotFound = "no snapshot recorded under that namespace"

	MsgDetectBusy     = "a detection run is already in progress"
	MsgDetectDisabled = "automatic detection is disabled after repeated failures"
	MsgUploadBusy     = "an image is already being processed"
)

package model

import "time"

// Roles used in the transcript. The API only accepts these two for
// conversation content; system text travels separately.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ImageData is one encoded image payload.
type ImageData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ImageAttachment pairs the full-resolution image with a heavily
// compressed copy. Only the compressed copy is ever replayed in history
// or handed to memory meta-tasks; the original is sent once, on the turn
// that attached it.
type ImageAttachment struct {
	Original   *ImageData `json:"original,omitempty"`
	Compressed *ImageData `json:"compressed,omitempty"`
}

// ForHistory returns the smallest payload suitable for replay.
func (a *ImageAttachment) ForHistory() *ImageData {
	if a == nil {
		return nil
	}
	if a.Compressed != nil {
		return a.Compressed
	}
	return a.Original
}

// Message is one transcript entry. Entries are append-only; ID is
// assigned by the store.
type Message struct {
	ID        int64
	Role      string
	Text      string
	Image     *ImageAttachment
	Timestamp time.Time
}

// Memory is one short persisted fact about the user, independent of any
// single conversation.
type Memory struct {
	ID        int64
	Text      string
	Timestamp time.Time
}

// Citation is one grounding source attached to a model reply.
type Citation struct {
	URI   string
	Title string
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-generated message ids that have not been
// confirmed by the backend yet.
const TempIDPrefix = "temp-"

// Message represents a single chat message in a room. A message exists in one
// of two forms: a temp message created locally on send (IsTemp true, ID carries
// the TempIDPrefix) or a confirmed message with a server-assigned id. The temp
// form is replaced in place once the confirmation arrives.
type Message struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`

	// Text and MediaURL are optional but not mutually exclusive: a message
	// may carry a caption alongside an attachment.
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	FileName string `json:"file_name,omitempty"`

	// ReplyToID is a weak reference to another message in the same room.
	// The target may have been tombstoned or not be loaded locally.
	ReplyToID string `json:"reply_to_id,omitempty"`

	// TempID is the client-generated id echoed back by the server on the
	// confirming new-message event. Empty on historical messages.
	TempID string `json:"temp_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// SeenBy holds the ids of users who acknowledged the message, in
	// acknowledgement order. Entries are unique and never removed.
	SeenBy []string `json:"seen_by,omitempty"`

	// Deleted messages are tombstoned, never removed, so ordering and
	// reply references stay stable.
	Deleted bool `json:"deleted,omitempty"`

	IsTemp bool `json:"is_temp,omitempty"`
}

// NewTempID generates a fresh client-side message id.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id was generated by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// SeenByUser reports whether userID has acknowledged the message.
func (m *Message) SeenByUser(userID string) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkSeenBy appends userID to SeenBy if absent. Returns true if the set grew.
func (m *Message) MarkSeenBy(userID string) bool {
	if m.SeenByUser(userID) {
		return false
	}
	m.SeenBy = append(m.SeenBy, userID)
	return true
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried over the realtime channel, both directions.
const (
	// Inbound (server -> client).
	EventNewMessage     = "new_message"
	EventSeen           = "seen"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventMessageDeleted = "message_deleted"
	EventSendError      = "send_error"
	EventRoomUpdate     = "room_update"

	// Outbound (client -> server).
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "send_message"
	EventMarkSeen    = "mark_seen"
)

// Event is the envelope for every frame on the realtime channel. Payload
// shape depends on Type.
type Event struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an envelope, marshalling payload. A nil payload produces
// an envelope with no payload field (join/leave/typing intents).
func NewEvent(eventType, roomID string, payload any) (Event, error) {
	ev := Event{Type: eventType, RoomID: roomID}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev.Payload = raw
	return ev, nil
}

// OutgoingMessage is the send-message payload. Confirmation arrives
// asynchronously as a new_message event echoing TempID.
type OutgoingMessage struct {
	SenderID  string `json:"sender_id"`
	RoomID    string `json:"room_id"`
	Text      string `json:"text,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	TempID    string `json:"temp_id"`
}

// SeenPayload is carried by both the outbound mark_seen intent and the
// inbound seen broadcast.
type SeenPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// TypingPayload identifies who is typing.
type TypingPayload struct {
	UserID string `json:"user_id"`
}

// DeletedPayload identifies a tombstoned message.
type DeletedPayload struct {
	MessageID string `json:"message_id"`
}

// SendErrorPayload reports a failed optimistic send, keyed by the client
// temp id so the matching bubble can be rolled back.
type SendErrorPayload struct {
	TempID string `json:"temp_id"`
	Reason string `json:"reason,omitempty"`
}

// RoomUpdate refreshes a room-list entry. Zero-value fields other than
// RoomID are merged, not overwritten.
type RoomUpdate struct {
	RoomID        string         `json:"room_id"`
	Participants  []User         `json:"participants,omitempty"`
	Job           *Job           `json:"job,omitempty"`
	LastMessage   string         `json:"last_message,omitempty"`
	LastMessageAt time.Time      `json:"last_message_at,omitempty"`
	UnreadCounts  map[string]int `json:"unread_counts,omitempty"`
}

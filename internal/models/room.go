package models

import "time"

// User identifies a chat participant.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Job is the task a room is scoped to. Read-only from the chat's perspective.
type Job struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Room is a persistent two-party conversation between a poster and a tasker
// around one job. Rooms are created lazily on first contact and never deleted
// by the client.
type Room struct {
	ID           string `json:"id"`
	Participants []User `json:"participants"`
	Job          Job    `json:"job"`

	// LastMessage and LastMessageAt are a denormalized preview, refreshed
	// whenever a message event touches the room.
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`

	// UnreadCounts maps user id to that user's unread count for the room.
	UnreadCounts map[string]int `json:"unread_counts,omitempty"`
}

// OtherParticipant returns the participant that is not selfID. For a
// two-party room there is exactly one.
func (r *Room) OtherParticipant(selfID string) User {
	for _, p := range r.Participants {
		if p.ID != selfID {
			return p
		}
	}
	return User{}
}

// UnreadFor returns the unread count recorded for userID.
func (r *Room) UnreadFor(userID string) int {
	if r.UnreadCounts == nil {
		return 0
	}
	return r.UnreadCounts[userID]
}

// RoomInfo is the room metadata payload returned by the backend.
type RoomInfo struct {
	Participants []User `json:"participants"`
	Job          Job    `json:"job"`
}

// HistoryPage is one backward page of a room's message history. Messages are
// ordered oldest first within the page. A null/empty cursor on the request
// means "most recent page".
type HistoryPage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// AttachmentIntent is the response of the attachment-intent endpoint: a
// short-lived direct upload target plus the URL the attachment will be
// served from once uploaded.
type AttachmentIntent struct {
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
}

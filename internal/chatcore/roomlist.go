package chatcore

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"

	"gigchat/client/internal/models"
)

// RoomList aggregates the user's rooms with last-message previews and
// per-user unread counters, fed by the realtime stream independent of which
// room is currently open. Ordering by recency is explicit: the list is
// re-sorted after every upsert rather than relying on insert-to-head, since
// room updates can arrive out of order.
type RoomList struct {
	selfID string

	mu    sync.Mutex
	rooms []models.Room
}

// NewRoomList creates an aggregator for selfID.
func NewRoomList(selfID string) *RoomList {
	return &RoomList{selfID: selfID}
}

// Replace swaps in the full room set from a REST fetch or the offline cache.
func (l *RoomList) Replace(rooms []models.Room) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rooms = make([]models.Room, len(rooms))
	copy(l.rooms, rooms)
	l.sortLocked()
}

// Upsert merges a room update into the existing entry, or inserts a new room
// when the id is unknown.
func (l *RoomList) Upsert(u models.RoomUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(u.RoomID)
	if i < 0 {
		l.rooms = append(l.rooms, models.Room{ID: u.RoomID})
		i = len(l.rooms) - 1
	}
	room := &l.rooms[i]

	if len(u.Participants) > 0 {
		room.Participants = u.Participants
	}
	if u.Job != nil {
		room.Job = *u.Job
	}
	if u.LastMessage != "" {
		room.LastMessage = u.LastMessage
	}
	if !u.LastMessageAt.IsZero() {
		room.LastMessageAt = u.LastMessageAt
	}
	for userID, count := range u.UnreadCounts {
		if room.UnreadCounts == nil {
			room.UnreadCounts = make(map[string]int)
		}
		room.UnreadCounts[userID] = count
	}
	l.sortLocked()
}

// ClearUnreadForSelf zeroes the current user's unread counter for roomID,
// applied on a self-originated seen event.
func (l *RoomList) ClearUnreadForSelf(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexLocked(roomID); i >= 0 && l.rooms[i].UnreadCounts != nil {
		l.rooms[i].UnreadCounts[l.selfID] = 0
	}
}

// Rooms returns a snapshot ordered by most recent activity first.
func (l *RoomList) Rooms() []models.Room {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Room, len(l.rooms))
	copy(out, l.rooms)
	return out
}

// Filter returns the rooms whose other participant's name or job title
// contains query, case-insensitive. An empty query returns everything.
func (l *RoomList) Filter(query string) []models.Room {
	query = strings.ToLower(strings.TrimSpace(query))
	rooms := l.Rooms()
	if query == "" {
		return rooms
	}
	out := rooms[:0]
	for _, r := range rooms {
		other := r.OtherParticipant(l.selfID)
		if strings.Contains(strings.ToLower(other.Name), query) ||
			strings.Contains(strings.ToLower(r.Job.Title), query) {
			out = append(out, r)
		}
	}
	return out
}

// UnreadTotal sums the current user's unread counters across all rooms.
func (l *RoomList) UnreadTotal() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, r := range l.rooms {
		total += r.UnreadFor(l.selfID)
	}
	return total
}

// Bind subscribes the aggregator to the channel's room_update and seen
// events. Returns the subscription teardown.
func (l *RoomList) Bind(channel Channel) (cancel func()) {
	return channel.Subscribe(func(ev models.Event) {
		switch ev.Type {
		case models.EventRoomUpdate:
			var u models.RoomUpdate
			if err := json.Unmarshal(ev.Payload, &u); err != nil {
				log.Printf("roomlist: bad room_update payload: %v", err)
				return
			}
			if u.RoomID == "" {
				u.RoomID = ev.RoomID
			}
			l.Upsert(u)
		case models.EventSeen:
			var p models.SeenPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return
			}
			if p.UserID == l.selfID {
				l.ClearUnreadForSelf(ev.RoomID)
			}
		}
	})
}

func (l *RoomList) indexLocked(roomID string) int {
	for i := range l.rooms {
		if l.rooms[i].ID == roomID {
			return i
		}
	}
	return -1
}

func (l *RoomList) sortLocked() {
	sort.SliceStable(l.rooms, func(i, j int) bool {
		return l.rooms[i].LastMessageAt.After(l.rooms[j].LastMessageAt)
	})
}

// Package stubserver is a self-contained chat backend used for local
// development and end-to-end tests. It keeps its world in memory, speaks the
// same REST and websocket contract as the production service, and can fan
// events out through Redis when several instances run side by side.
package stubserver

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gigchat/client/internal/config"
	"gigchat/client/internal/models"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound   = errors.New("stubserver: room not found")
	ErrNotParticipant = errors.New("stubserver: sender is not a room participant")
)

type roomState struct {
	room     models.Room
	messages []models.Message // ascending by creation
}

// World holds all rooms and messages. Every mutation returns the data the
// caller needs to broadcast, so the hub never reaches back in under its own
// lock.
type World struct {
	mu    sync.Mutex
	rooms map[string]*roomState
}

func NewWorld() *World {
	return &World{rooms: make(map[string]*roomState)}
}

// AddRoom registers a room with its backlog. Test and demo seeding only.
func (w *World) AddRoom(room models.Room, backlog []models.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := &roomState{room: room}
	state.messages = append(state.messages, backlog...)
	if n := len(state.messages); n > 0 {
		state.room.LastMessage = previewText(state.messages[n-1])
		state.room.LastMessageAt = state.messages[n-1].CreatedAt
	}
	if state.room.UnreadCounts == nil {
		state.room.UnreadCounts = make(map[string]int)
	}
	w.rooms[room.ID] = state
}

// RoomsFor returns every room userID participates in.
func (w *World) RoomsFor(userID string) []models.Room {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Room
	for _, state := range w.rooms {
		if state.participant(userID) != nil {
			out = append(out, cloneRoom(state.room))
		}
	}
	return out
}

// Room returns a room's metadata.
func (w *World) Room(roomID string) (models.RoomInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.rooms[roomID]
	if !ok {
		return models.RoomInfo{}, ErrRoomNotFound
	}
	return models.RoomInfo{
		Participants: append([]models.User(nil), state.room.Participants...),
		Job:          state.room.Job,
	}, nil
}

// History returns one backward page. The cursor is the index of the oldest
// message already delivered; empty means "newest page".
func (w *World) History(roomID, cursor string) (models.HistoryPage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.rooms[roomID]
	if !ok {
		return models.HistoryPage{}, ErrRoomNotFound
	}

	end := len(state.messages)
	if cursor != "" {
		idx, err := strconv.Atoi(cursor)
		if err != nil || idx < 0 || idx > end {
			return models.HistoryPage{}, fmt.Errorf("stubserver: bad cursor %q", cursor)
		}
		end = idx
	}
	start := end - config.HistoryPageSize
	if start < 0 {
		start = 0
	}

	page := models.HistoryPage{
		Messages: append([]models.Message(nil), state.messages[start:end]...),
		HasMore:  start > 0,
	}
	if page.HasMore {
		page.NextCursor = strconv.Itoa(start)
	}
	return page, nil
}

// Append stores a message sent by senderID and returns the confirmed message
// plus the refreshed room-list entry.
func (w *World) Append(senderID string, out models.OutgoingMessage) (models.Message, models.RoomUpdate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.rooms[out.RoomID]
	if !ok {
		return models.Message{}, models.RoomUpdate{}, ErrRoomNotFound
	}
	sender := state.participant(senderID)
	if sender == nil {
		return models.Message{}, models.RoomUpdate{}, ErrNotParticipant
	}

	msg := models.Message{
		ID:         uuid.New().String(),
		RoomID:     out.RoomID,
		SenderID:   senderID,
		SenderName: sender.Name,
		Text:       out.Text,
		MediaURL:   out.MediaURL,
		FileName:   out.FileName,
		ReplyToID:  out.ReplyToID,
		TempID:     out.TempID,
		CreatedAt:  time.Now().UTC(),
		SeenBy:     []string{senderID},
	}
	state.messages = append(state.messages, msg)

	state.room.LastMessage = previewText(msg)
	state.room.LastMessageAt = msg.CreatedAt
	for _, p := range state.room.Participants {
		if p.ID != senderID {
			state.room.UnreadCounts[p.ID]++
		}
	}
	return msg, state.update(), nil
}

// MarkSeen records that userID has read messageID and everything before it,
// and zeroes their unread count.
func (w *World) MarkSeen(roomID, messageID, userID string) (models.RoomUpdate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.rooms[roomID]
	if !ok {
		return models.RoomUpdate{}, ErrRoomNotFound
	}
	for i := range state.messages {
		state.messages[i].MarkSeenBy(userID)
		if state.messages[i].ID == messageID {
			break
		}
	}
	state.room.UnreadCounts[userID] = 0
	return state.update(), nil
}

// Delete tombstones a message. Only the sender may delete.
func (w *World) Delete(roomID, messageID, userID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for i := range state.messages {
		if state.messages[i].ID == messageID {
			if state.messages[i].SenderID != userID {
				return fmt.Errorf("stubserver: message %s not sent by %s", messageID, userID)
			}
			state.messages[i].Deleted = true
			return nil
		}
	}
	return fmt.Errorf("stubserver: message %s not found", messageID)
}

// Participants returns the ids of a room's participants.
func (w *World) Participants(roomID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(state.room.Participants))
	for _, p := range state.room.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s *roomState) participant(userID string) *models.User {
	for i := range s.room.Participants {
		if s.room.Participants[i].ID == userID {
			return &s.room.Participants[i]
		}
	}
	return nil
}

func (s *roomState) update() models.RoomUpdate {
	job := s.room.Job
	unread := make(map[string]int, len(s.room.UnreadCounts))
	for k, v := range s.room.UnreadCounts {
		unread[k] = v
	}
	return models.RoomUpdate{
		RoomID:        s.room.ID,
		Participants:  append([]models.User(nil), s.room.Participants...),
		Job:           &job,
		LastMessage:   s.room.LastMessage,
		LastMessageAt: s.room.LastMessageAt,
		UnreadCounts:  unread,
	}
}

func cloneRoom(r models.Room) models.Room {
	out := r
	out.Participants = append([]models.User(nil), r.Participants...)
	out.UnreadCounts = make(map[string]int, len(r.UnreadCounts))
	for k, v := range r.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return out
}

func previewText(m models.Message) string {
	if m.Text != "" {
		return m.Text
	}
	if m.FileName != "" {
		return m.FileName
	}
	return "attachment"
}

// SeedDemo fills the world with two conversations for local development.
func (w *World) SeedDemo() {
	alex := models.User{ID: "user-alex", Name: "Alex Poster"}
	dana := models.User{ID: "user-dana", Name: "Dana Fixit"}
	sam := models.User{ID: "user-sam", Name: "Sam Mover"}

	now := time.Now().UTC()
	w.AddRoom(models.Room{
		ID:           "room-wardrobe",
		Participants: []models.User{alex, dana},
		Job:          models.Job{ID: "job-1", Title: "Assemble wardrobe"},
	}, []models.Message{
		{ID: uuid.New().String(), RoomID: "room-wardrobe", SenderID: dana.ID, SenderName: dana.Name,
			Text: "Hi! I can be there Saturday morning.", CreatedAt: now.Add(-2 * time.Hour), SeenBy: []string{dana.ID, alex.ID}},
		{ID: uuid.New().String(), RoomID: "room-wardrobe", SenderID: alex.ID, SenderName: alex.Name,
			Text: "Saturday works, 10am?", CreatedAt: now.Add(-90 * time.Minute), SeenBy: []string{alex.ID, dana.ID}},
	})
	w.AddRoom(models.Room{
		ID:           "room-couch",
		Participants: []models.User{alex, sam},
		Job:          models.Job{ID: "job-2", Title: "Move a couch"},
	}, []models.Message{
		{ID: uuid.New().String(), RoomID: "room-couch", SenderID: sam.ID, SenderName: sam.Name,
			Text: "Does it fit in a regular van?", CreatedAt: now.Add(-time.Hour), SeenBy: []string{sam.ID}},
	})
}

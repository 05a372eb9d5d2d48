// Package chatcore implements the client-side synchronization core for
// marketplace chat: a per-room message store merged from paginated history
// and live socket events, cursor pagination, read-receipt tracking, room-
// scoped event routing, and the room list aggregator.
package chatcore

import (
	"sync"

	"gigchat/client/internal/models"
)

// Store holds one room's messages in a deduplicated, time-ordered sequence.
// History pages prepend, live events append, and every mutation is idempotent
// under replay: socket delivery is at-least-once in practice, and a history
// fetch can race a live new-message for the same id.
//
// A Store is owned by a single room session and must not be shared across
// rooms.
type Store struct {
	mu       sync.Mutex
	roomID   string
	messages []models.Message
	ids      map[string]struct{}
}

// NewStore creates an empty store for roomID.
func NewStore(roomID string) *Store {
	return &Store{
		roomID: roomID,
		ids:    make(map[string]struct{}),
	}
}

// RoomID returns the owning room.
func (s *Store) RoomID() string { return s.roomID }

// LoadNewest replaces the store wholesale with the first history page.
// Duplicate ids within the batch are collapsed, keeping the first occurrence.
func (s *Store) LoadNewest(batch []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = s.messages[:0]
	s.ids = make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if _, ok := s.ids[m.ID]; ok {
			continue
		}
		s.ids[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
}

// LoadOlder prepends the messages of an older history page whose ids are not
// already present, preserving the batch's relative order. Returns true if at
// least one message was inserted.
func (s *Store) LoadOlder(batch []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]models.Message, 0, len(batch))
	for _, m := range batch {
		if _, ok := s.ids[m.ID]; ok {
			continue
		}
		s.ids[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return false
	}
	s.messages = append(fresh, s.messages...)
	return true
}

// ApplyIncoming applies a live new-message event. If the id is already known
// this is a no-op. If the message confirms an optimistic send, the temp entry
// is replaced in place so the sender's bubble keeps its position. Otherwise
// the message is appended at the tail (arrival order is trusted for live
// events; createdAt ordering applies only to historical merges).
//
// A message that is itself temp is a fresh local echo, never a confirmation:
// it always lands at the tail, even when an earlier temp carries the same
// sender and text.
func (s *Store) ApplyIncoming(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[msg.ID]; ok {
		return
	}
	if !msg.IsTemp {
		if i := s.findOptimisticMatch(msg); i >= 0 {
			delete(s.ids, s.messages[i].ID)
			s.messages[i] = msg
			s.ids[msg.ID] = struct{}{}
			return
		}
	}
	s.ids[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
}

// findOptimisticMatch locates the temp message a confirmation should replace.
// The echoed temp id is authoritative; the sender+text heuristic is kept as a
// fallback for backends that do not echo it. Caller holds the lock.
func (s *Store) findOptimisticMatch(msg models.Message) int {
	if msg.TempID != "" {
		for i, m := range s.messages {
			if m.IsTemp && m.ID == msg.TempID {
				return i
			}
		}
		return -1
	}
	for i, m := range s.messages {
		if m.IsTemp && m.SenderID == msg.SenderID && m.Text == msg.Text {
			return i
		}
	}
	return -1
}

// MarkSeen adds userID to the message's seenBy set. A missing message id is a
// silent no-op: the message may legitimately not be loaded locally yet.
// Returns true if the set grew.
func (s *Store) MarkSeen(messageID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return s.messages[i].MarkSeenBy(userID)
		}
	}
	return false
}

// MarkDeleted tombstones a message, keeping it in the sequence. No-op if the
// id is unknown.
func (s *Store) MarkDeleted(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == messageID {
			if s.messages[i].Deleted {
				return false
			}
			s.messages[i].Deleted = true
			return true
		}
	}
	return false
}

// RemoveTemp rolls back an optimistic send, structurally removing the temp
// entry. This is the only operation that removes a message from the store.
func (s *Store) RemoveTemp(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == tempID && s.messages[i].IsTemp {
			delete(s.ids, tempID)
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns a snapshot copy of the sequence.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get returns the message with the given id.
func (s *Store) Get(messageID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return models.Message{}, false
}

// Last returns the tail message, if any.
func (s *Store) Last() (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Len returns the number of messages, tombstones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

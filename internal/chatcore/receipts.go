package chatcore

import (
	"log"
	"sync"

	"gigchat/client/internal/models"
)

// ReceiptTracker computes what the current user has and hasn't seen in one
// room, and emits seen-acknowledgements according to the viewport policy:
// messages arriving while the viewport is at the bottom are acknowledged
// immediately; otherwise they accumulate as unread until the user jumps to
// the latest message.
//
// Acknowledged messages are cleared from the local unread set optimistically.
// The authoritative seenBy state still arrives as a seen event, which the
// store applies idempotently.
type ReceiptTracker struct {
	selfID   string
	roomID   string
	notifier SeenNotifier

	mu      sync.Mutex
	pending []string // unread message ids, arrival order
	seen    map[string]struct{}
}

// NewReceiptTracker creates a tracker for selfID in roomID.
func NewReceiptTracker(selfID, roomID string, notifier SeenNotifier) *ReceiptTracker {
	return &ReceiptTracker{
		selfID:   selfID,
		roomID:   roomID,
		notifier: notifier,
		seen:     make(map[string]struct{}),
	}
}

// LastRead scans from the newest message backward and returns the id of the
// first message authored by someone else that the current user has already
// seen. Used once on initial load to pick the scroll anchor. Empty when
// nothing qualifies.
func (t *ReceiptTracker) LastRead(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.SenderID == t.selfID {
			continue
		}
		if m.SeenByUser(t.selfID) {
			return m.ID
		}
	}
	return ""
}

// Unread returns the messages authored by someone else whose seenBy does not
// yet contain the current user.
func (t *ReceiptTracker) Unread(messages []models.Message) []models.Message {
	var out []models.Message
	for _, m := range messages {
		if m.SenderID == t.selfID {
			continue
		}
		if !m.SeenByUser(t.selfID) {
			out = append(out, m)
		}
	}
	return out
}

// Init seeds the pending set from the initial page. Own messages are never
// added to the unread set.
func (t *ReceiptTracker) Init(messages []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = t.pending[:0]
	t.seen = make(map[string]struct{})
	for _, m := range t.Unread(messages) {
		t.addLocked(m.ID)
	}
}

// OnNewMessage applies the acknowledgement policy to a live message. When the
// viewport is at the bottom the message is acknowledged right away; otherwise
// it joins the pending unread set and the caller should surface a
// jump-to-latest affordance instead of auto-scrolling.
func (t *ReceiptTracker) OnNewMessage(msg models.Message, atBottom bool) {
	if msg.SenderID == t.selfID {
		return
	}
	if atBottom {
		t.ack(msg.ID)
		return
	}
	t.mu.Lock()
	t.addLocked(msg.ID)
	t.mu.Unlock()
}

// AckAll flushes every pending acknowledgement, in arrival order, and clears
// the unread set. Invoked on explicit jump-to-latest. Returns the number of
// acks emitted.
func (t *ReceiptTracker) AckAll() int {
	t.mu.Lock()
	ids := t.pending
	t.pending = nil
	t.seen = make(map[string]struct{})
	t.mu.Unlock()

	for _, id := range ids {
		t.emit(id)
	}
	return len(ids)
}

// PendingCount returns the size of the unread set.
func (t *ReceiptTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Pending returns a snapshot of the unread message ids, arrival order.
func (t *ReceiptTracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.pending))
	copy(out, t.pending)
	return out
}

func (t *ReceiptTracker) addLocked(messageID string) {
	if _, ok := t.seen[messageID]; ok {
		return
	}
	t.seen[messageID] = struct{}{}
	t.pending = append(t.pending, messageID)
}

func (t *ReceiptTracker) ack(messageID string) {
	t.mu.Lock()
	if _, ok := t.seen[messageID]; ok {
		delete(t.seen, messageID)
		for i, id := range t.pending {
			if id == messageID {
				t.pending = append(t.pending[:i], t.pending[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()
	t.emit(messageID)
}

func (t *ReceiptTracker) emit(messageID string) {
	if err := t.notifier.NotifySeen(t.roomID, messageID, t.selfID); err != nil {
		// The local clear stands; the next session open recomputes unread
		// from the authoritative history.
		log.Printf("receipts: seen ack for %s failed: %v", messageID, err)
	}
}

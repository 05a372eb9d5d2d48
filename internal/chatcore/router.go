package chatcore

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"gigchat/client/internal/config"
	"gigchat/client/internal/models"
)

// SubscriptionState tracks a room subscription's lifecycle.
type SubscriptionState int

const (
	StateUnsubscribed SubscriptionState = iota
	StateJoining
	StateActive
)

// RouterCallbacks are the hooks a UI layer registers with the router. All of
// them are optional.
type RouterCallbacks struct {
	// OnTyping fires when the other party's typing indicator toggles.
	OnTyping func(active bool)
	// OnError surfaces a transient, user-visible failure (e.g. a rejected
	// optimistic send). Never fatal to the screen.
	OnError func(reason string)
	// ScrollToTail asks the view to scroll to the newest message.
	ScrollToTail func()
	// OnUnread reports the pending unread count when a message arrives
	// while the viewport is scrolled up (jump-to-latest affordance).
	OnUnread func(count int)
}

// Router bridges one room's realtime event stream to the message store and
// receipt tracker. It owns the subscription lifecycle
// (Unsubscribed -> Joining -> Active -> Unsubscribed): join is fire-and-
// forget, and all listeners are torn down before a new attachment so events
// never leak across rooms.
type Router struct {
	selfID   string
	roomID   string
	channel  Channel
	store    *Store
	receipts *ReceiptTracker
	view     Viewport
	cb       RouterCallbacks

	// typingExpiry bounds a typing_start with no matching stop.
	typingExpiry time.Duration

	mu          sync.Mutex
	state       SubscriptionState
	cancel      func()
	typing      bool
	typingTimer *time.Timer
}

// NewRouter wires a router for one room. view may be nil.
func NewRouter(selfID, roomID string, channel Channel, store *Store, receipts *ReceiptTracker, view Viewport, cb RouterCallbacks) *Router {
	return &Router{
		selfID:       selfID,
		roomID:       roomID,
		channel:      channel,
		store:        store,
		receipts:     receipts,
		view:         view,
		cb:           cb,
		typingExpiry: config.TypingExpiry,
	}
}

// SetTypingExpiry overrides the typing auto-expiry, which defaults to
// config.TypingExpiry. Must be called before Attach.
func (r *Router) SetTypingExpiry(d time.Duration) {
	r.typingExpiry = d
}

// Attach emits the join intent and starts routing the room's events. The
// router goes Active immediately; the UI does not block on a join ack. Any
// previous attachment is torn down first.
func (r *Router) Attach() {
	r.Detach()

	r.mu.Lock()
	r.state = StateJoining
	r.mu.Unlock()

	if err := r.channel.Join(r.roomID); err != nil {
		// Join is an intent, not a gate: keep going, the channel retries
		// delivery on its own.
		log.Printf("router: join %s: %v", r.roomID, err)
	}
	cancel := r.channel.Subscribe(r.handle)

	r.mu.Lock()
	r.cancel = cancel
	r.state = StateActive
	r.mu.Unlock()
}

// Detach emits the leave intent and discards the room's listeners. Safe to
// call when not attached.
func (r *Router) Detach() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	active := r.state != StateUnsubscribed
	r.state = StateUnsubscribed
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.typing = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active {
		if err := r.channel.Leave(r.roomID); err != nil {
			log.Printf("router: leave %s: %v", r.roomID, err)
		}
	}
}

// State returns the current subscription state.
func (r *Router) State() SubscriptionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Typing reports whether the other party's typing indicator is on.
func (r *Router) Typing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing
}

// handle applies one inbound event. A panic inside a handler must not stop
// subsequent events from being processed, so each dispatch recovers locally.
func (r *Router) handle(ev models.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("router: recovered handling %s for room %s: %v", ev.Type, ev.RoomID, rec)
		}
	}()

	if ev.RoomID != r.roomID {
		return
	}

	switch ev.Type {
	case models.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			log.Printf("router: bad new_message payload: %v", err)
			return
		}
		r.handleNewMessage(msg)

	case models.EventSeen:
		var p models.SeenPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			log.Printf("router: bad seen payload: %v", err)
			return
		}
		r.store.MarkSeen(p.MessageID, p.UserID)

	case models.EventTypingStart:
		var p models.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.UserID == r.selfID {
			return
		}
		r.setTyping(true)

	case models.EventTypingStop:
		var p models.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.UserID == r.selfID {
			return
		}
		r.setTyping(false)

	case models.EventMessageDeleted:
		var p models.DeletedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			log.Printf("router: bad message_deleted payload: %v", err)
			return
		}
		r.store.MarkDeleted(p.MessageID)

	case models.EventSendError:
		var p models.SendErrorPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			log.Printf("router: bad send_error payload: %v", err)
			return
		}
		r.store.RemoveTemp(p.TempID)
		if r.cb.OnError != nil {
			reason := p.Reason
			if reason == "" {
				reason = "message could not be delivered"
			}
			r.cb.OnError(reason)
		}
	}
}

func (r *Router) handleNewMessage(msg models.Message) {
	r.store.ApplyIncoming(msg)

	atBottom := r.view != nil && r.view.AtBottom()
	if msg.SenderID == r.selfID {
		// Own echo (or confirmation of an optimistic send): follow it.
		if r.cb.ScrollToTail != nil {
			r.cb.ScrollToTail()
		}
		return
	}

	r.receipts.OnNewMessage(msg, atBottom)
	if atBottom {
		if r.cb.ScrollToTail != nil {
			r.cb.ScrollToTail()
		}
		return
	}
	if r.cb.OnUnread != nil {
		r.cb.OnUnread(r.receipts.PendingCount())
	}
}

// setTyping toggles the indicator. Every typing_start resets the expiry
// timer so a long burst of starts does not flicker.
func (r *Router) setTyping(active bool) {
	r.mu.Lock()
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	changed := r.typing != active
	r.typing = active
	if active {
		r.typingTimer = time.AfterFunc(r.typingExpiry, r.expireTyping)
	}
	r.mu.Unlock()

	if changed && r.cb.OnTyping != nil {
		r.cb.OnTyping(active)
	}
}

func (r *Router) expireTyping() {
	r.mu.Lock()
	changed := r.typing
	r.typing = false
	r.typingTimer = nil
	r.mu.Unlock()

	if changed && r.cb.OnTyping != nil {
		r.cb.OnTyping(false)
	}
}

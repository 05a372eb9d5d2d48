package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"gigchat/client/internal/models"

	"github.com/redis/go-redis/v9"
)

const fanoutChannel = "gigchat:events"

// Delivery scopes for broadcast frames.
const (
	scopeRoom         = "room"         // clients joined to the room
	scopeParticipants = "participants" // every connected participant, joined or not
)

type inboundEvent struct {
	client *wsClient
	event  models.Event
}

// broadcastFrame is what travels through Redis when fanout is enabled, and
// through the local channel otherwise. ExceptUserID suppresses echo for
// typing relays.
type broadcastFrame struct {
	Scope        string       `json:"scope"`
	RoomID       string       `json:"room_id"`
	ExceptUserID string       `json:"except_user_id,omitempty"`
	Event        models.Event `json:"event"`
}

// Hub owns all websocket sessions. All session state lives in the run loop;
// the only entry points are the channels.
type Hub struct {
	world *World

	register   chan *wsClient
	unregister chan *wsClient
	incoming   chan inboundEvent
	fanout     chan broadcastFrame

	rdb *redis.Client

	clients map[*wsClient]struct{}
}

// NewHub creates a hub over world. rdb may be nil; with it set, broadcasts
// travel through Redis so several stub instances share one event stream.
func NewHub(world *World, rdb *redis.Client) *Hub {
	return &Hub{
		world:      world,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		incoming:   make(chan inboundEvent),
		fanout:     make(chan broadcastFrame, 64),
		rdb:        rdb,
		clients:    make(map[*wsClient]struct{}),
	}
}

// Run drives the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeFanout(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			log.Printf("stubserver: %s connected (%d online)", c.userID, len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				log.Printf("stubserver: %s disconnected (%d online)", c.userID, len(h.clients))
			}

		case in := <-h.incoming:
			h.handle(in.client, in.event)

		case frame := <-h.fanout:
			h.deliver(frame)
		}
	}
}

func (h *Hub) handle(c *wsClient, ev models.Event) {
	switch ev.Type {
	case models.EventJoin:
		c.joined[ev.RoomID] = true

	case models.EventLeave:
		delete(c.joined, ev.RoomID)

	case models.EventSendMessage:
		h.handleSend(c, ev)

	case models.EventMarkSeen:
		h.handleMarkSeen(c, ev)

	case models.EventMessageDeleted:
		h.handleDelete(c, ev)

	case models.EventTypingStart, models.EventTypingStop:
		h.relay(broadcastFrame{
			Scope:        scopeRoom,
			RoomID:       ev.RoomID,
			ExceptUserID: c.userID,
			Event:        mustEvent(ev.Type, ev.RoomID, models.TypingPayload{UserID: c.userID}),
		})

	default:
		log.Printf("stubserver: %s sent unknown event %q", c.userID, ev.Type)
	}
}

func (h *Hub) handleSend(c *wsClient, ev models.Event) {
	var out models.OutgoingMessage
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		log.Printf("stubserver: bad send_message from %s: %v", c.userID, err)
		return
	}
	out.RoomID = ev.RoomID

	msg, update, err := h.world.Append(c.userID, out)
	if err != nil {
		h.trySend(c, mustEvent(models.EventSendError, ev.RoomID, models.SendErrorPayload{
			TempID: out.TempID,
			Reason: err.Error(),
		}))
		return
	}

	h.relay(broadcastFrame{
		Scope:  scopeRoom,
		RoomID: ev.RoomID,
		Event:  mustEvent(models.EventNewMessage, ev.RoomID, msg),
	})
	h.relay(broadcastFrame{
		Scope:  scopeParticipants,
		RoomID: ev.RoomID,
		Event:  mustEvent(models.EventRoomUpdate, ev.RoomID, update),
	})
}

func (h *Hub) handleDelete(c *wsClient, ev models.Event) {
	var del models.DeletedPayload
	if err := json.Unmarshal(ev.Payload, &del); err != nil {
		log.Printf("stubserver: bad message_deleted from %s: %v", c.userID, err)
		return
	}

	if err := h.world.Delete(ev.RoomID, del.MessageID, c.userID); err != nil {
		log.Printf("stubserver: delete from %s: %v", c.userID, err)
		return
	}

	h.relay(broadcastFrame{
		Scope:  scopeRoom,
		RoomID: ev.RoomID,
		Event:  mustEvent(models.EventMessageDeleted, ev.RoomID, del),
	})
}

func (h *Hub) handleMarkSeen(c *wsClient, ev models.Event) {
	var seen models.SeenPayload
	if err := json.Unmarshal(ev.Payload, &seen); err != nil {
		log.Printf("stubserver: bad mark_seen from %s: %v", c.userID, err)
		return
	}
	seen.UserID = c.userID

	update, err := h.world.MarkSeen(ev.RoomID, seen.MessageID, c.userID)
	if err != nil {
		log.Printf("stubserver: mark_seen from %s: %v", c.userID, err)
		return
	}

	h.relay(broadcastFrame{
		Scope:  scopeRoom,
		RoomID: ev.RoomID,
		Event:  mustEvent(models.EventSeen, ev.RoomID, seen),
	})
	h.relay(broadcastFrame{
		Scope:  scopeParticipants,
		RoomID: ev.RoomID,
		Event:  mustEvent(models.EventRoomUpdate, ev.RoomID, update),
	})
}

// relay routes a frame to everyone it concerns. With Redis configured the
// frame goes through the shared channel and comes back via subscribeFanout,
// which keeps multi-instance delivery identical to single-instance.
func (h *Hub) relay(frame broadcastFrame) {
	if h.rdb == nil {
		h.deliver(frame)
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("stubserver: encode fanout frame: %v", err)
		return
	}
	if err := h.rdb.Publish(context.Background(), fanoutChannel, data).Err(); err != nil {
		log.Printf("stubserver: publish fanout frame: %v", err)
		h.deliver(frame) // degrade to local delivery
	}
}

func (h *Hub) deliver(frame broadcastFrame) {
	var participants map[string]bool
	if frame.Scope == scopeParticipants {
		participants = make(map[string]bool)
		for _, id := range h.world.Participants(frame.RoomID) {
			participants[id] = true
		}
	}

	for c := range h.clients {
		if frame.ExceptUserID != "" && c.userID == frame.ExceptUserID {
			continue
		}
		switch frame.Scope {
		case scopeRoom:
			if !c.joined[frame.RoomID] {
				continue
			}
		case scopeParticipants:
			if !participants[c.userID] {
				continue
			}
		default:
			continue
		}
		h.trySend(c, frame.Event)
	}
}

func (h *Hub) trySend(c *wsClient, ev models.Event) {
	select {
	case c.send <- ev:
	default:
		log.Printf("stubserver: %s send buffer full, dropping %s", c.userID, ev.Type)
	}
}

func (h *Hub) subscribeFanout(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, fanoutChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("stubserver: fanout receive: %v", err)
			return
		}
		var frame broadcastFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			log.Printf("stubserver: bad fanout frame: %v", err)
			continue
		}
		select {
		case h.fanout <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// mustEvent builds an envelope from a payload the hub constructed itself.
func mustEvent(eventType, roomID string, payload any) models.Event {
	ev, err := models.NewEvent(eventType, roomID, payload)
	if err != nil {
		log.Printf("stubserver: encode %s event: %v", eventType, err)
		return models.Event{Type: eventType, RoomID: roomID}
	}
	return ev
}

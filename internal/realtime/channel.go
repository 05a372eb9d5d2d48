// Package realtime implements the room-scoped bidirectional event stream on
// top of a websocket connection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"gigchat/client/internal/config"
	"gigchat/client/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned by send operations after Close.
var ErrClosed = errors.New("realtime: channel closed")

// Channel is a live connection to the chat backend. Outbound events go
// through a buffered queue drained by the write pump; inbound events are
// decoded by the read pump and fanned out to subscribers. Both pumps follow
// the usual gorilla read/write split with ping/pong keepalive.
//
// Channel implements chatcore.Channel.
type Channel struct {
	conn      *websocket.Conn
	send      chan models.Event
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	handlers map[int]func(models.Event)
	nextID   int
}

// Dial connects to the realtime endpoint, authenticating with the session
// token, and starts the pumps.
func Dial(ctx context.Context, socketURL, token string) (*Channel, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, socketURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", socketURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", socketURL, err)
	}

	c := &Channel{
		conn:     conn,
		send:     make(chan models.Event, config.OutboundBufferSize),
		done:     make(chan struct{}),
		handlers: make(map[int]func(models.Event)),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Subscribe registers an inbound event handler and returns its teardown.
// Handlers run on the read pump goroutine and must not block.
func (c *Channel) Subscribe(fn func(models.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Join emits the join intent for roomID. Fire-and-forget: the server starts
// fanning the room's events to this connection, no ack is awaited.
func (c *Channel) Join(roomID string) error {
	return c.emit(models.EventJoin, roomID, nil)
}

// Leave emits the leave intent for roomID.
func (c *Channel) Leave(roomID string) error {
	return c.emit(models.EventLeave, roomID, nil)
}

// SendMessage emits an outbound chat message. Confirmation arrives
// asynchronously as a new_message event echoing the temp id.
func (c *Channel) SendMessage(out models.OutgoingMessage) error {
	return c.emit(models.EventSendMessage, out.RoomID, out)
}

// NotifySeen emits a seen-acknowledgement for one message.
func (c *Channel) NotifySeen(roomID, messageID, userID string) error {
	return c.emit(models.EventMarkSeen, roomID, models.SeenPayload{MessageID: messageID, UserID: userID})
}

// DeleteMessage asks the backend to tombstone one of the user's own messages.
// The result comes back as a message_deleted broadcast.
func (c *Channel) DeleteMessage(roomID, messageID string) error {
	return c.emit(models.EventMessageDeleted, roomID, models.DeletedPayload{MessageID: messageID})
}

// NotifyTyping emits the local typing indicator.
func (c *Channel) NotifyTyping(roomID string, active bool) error {
	eventType := models.EventTypingStart
	if !active {
		eventType = models.EventTypingStop
	}
	return c.emit(eventType, roomID, nil)
}

// Done is closed once the connection is gone, whether by Close or by a read
// failure.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Idempotent.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Channel) emit(eventType, roomID string, payload any) error {
	ev, err := models.NewEvent(eventType, roomID, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return fmt.Errorf("realtime: outbound buffer full, dropping %s", eventType)
	}
}

func (c *Channel) dispatch(ev models.Event) {
	c.mu.Lock()
	handlers := make([]func(models.Event), 0, len(c.handlers))
	for _, fn := range c.handlers {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (c *Channel) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read: %v", err)
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("realtime: dropping undecodable frame: %v", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("realtime: encode %s: %v", ev.Type, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

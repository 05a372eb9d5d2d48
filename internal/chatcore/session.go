package chatcore

import (
	"context"
	"fmt"
	"time"

	"gigchat/client/internal/models"
)

// SessionConfig wires a room session. History and Info are usually both the
// REST client; Channel is the realtime connection. View and Callbacks are
// optional.
type SessionConfig struct {
	SelfID    string
	SelfName  string
	RoomID    string
	History   HistoryFetcher
	Info      RoomInfoFetcher
	Channel   Channel
	View      Viewport
	Callbacks RouterCallbacks
}

// Session owns one open room: the message store, pagination controller,
// receipt tracker and event router, composed in the order a chat screen
// mounts them. A session is single-room; switching rooms means closing this
// session and opening a new one.
type Session struct {
	selfID   string
	selfName string
	roomID   string
	channel  Channel
	view     Viewport
	cb       RouterCallbacks

	store       *Store
	paginator   *Paginator
	receipts    *ReceiptTracker
	router      *Router
	infoFetcher RoomInfoFetcher

	info   models.RoomInfo
	anchor string
}

// NewSession builds the per-room components without touching the network.
func NewSession(cfg SessionConfig) *Session {
	store := NewStore(cfg.RoomID)
	receipts := NewReceiptTracker(cfg.SelfID, cfg.RoomID, cfg.Channel)
	s := &Session{
		selfID:    cfg.SelfID,
		selfName:  cfg.SelfName,
		roomID:    cfg.RoomID,
		channel:   cfg.Channel,
		view:      cfg.View,
		cb:        cfg.Callbacks,
		store:     store,
		paginator: NewPaginator(cfg.History, store, cfg.View),
		receipts:  receipts,
	}
	s.router = NewRouter(cfg.SelfID, cfg.RoomID, cfg.Channel, store, receipts, cfg.View, cfg.Callbacks)
	s.infoFetcher = cfg.Info
	return s
}

// Open runs the mount sequence: fetch room metadata, load the newest history
// page, compute the initial read state, then attach the realtime router.
// On error the session is left closed and consistent; Open can be retried.
func (s *Session) Open(ctx context.Context) error {
	if s.infoFetcher != nil {
		info, err := s.infoFetcher.RoomInfo(ctx, s.roomID)
		if err != nil {
			return fmt.Errorf("fetch room info for %s: %w", s.roomID, err)
		}
		s.info = info
	}

	if _, err := s.paginator.FetchPage(ctx, true); err != nil {
		return err
	}

	snapshot := s.store.Messages()
	s.anchor = s.receipts.LastRead(snapshot)
	s.receipts.Init(snapshot)

	s.router.Attach()
	return nil
}

// Close detaches the router, tearing down the room's listeners.
func (s *Session) Close() {
	s.router.Detach()
}

// SendText sends a text message with optimistic local echo: a temp message is
// appended immediately and replaced in place when the confirmation event
// arrives. A local send failure rolls the temp message back; the user must
// resend explicitly.
func (s *Session) SendText(text, replyToID string) (models.Message, error) {
	return s.send(models.Message{
		Text:      text,
		ReplyToID: replyToID,
	})
}

// SendAttachment sends a message carrying an uploaded attachment, with an
// optional caption.
func (s *Session) SendAttachment(mediaURL, fileName, caption string) (models.Message, error) {
	return s.send(models.Message{
		Text:     caption,
		MediaURL: mediaURL,
		FileName: fileName,
	})
}

func (s *Session) send(msg models.Message) (models.Message, error) {
	msg.ID = models.NewTempID()
	msg.RoomID = s.roomID
	msg.SenderID = s.selfID
	msg.SenderName = s.selfName
	msg.CreatedAt = time.Now()
	msg.IsTemp = true

	s.store.ApplyIncoming(msg)

	out := models.OutgoingMessage{
		SenderID:  msg.SenderID,
		RoomID:    msg.RoomID,
		Text:      msg.Text,
		MediaURL:  msg.MediaURL,
		FileName:  msg.FileName,
		ReplyToID: msg.ReplyToID,
		TempID:    msg.ID,
	}
	if err := s.channel.SendMessage(out); err != nil {
		s.store.RemoveTemp(msg.ID)
		return models.Message{}, fmt.Errorf("send message to room %s: %w", s.roomID, err)
	}
	return msg, nil
}

// SetTyping emits the local user's typing indicator.
func (s *Session) SetTyping(active bool) {
	if err := s.channel.NotifyTyping(s.roomID, active); err != nil {
		// Typing is best-effort; a lost indicator is harmless.
		return
	}
}

// JumpToLatest flushes all pending seen-acknowledgements and scrolls the
// view to the tail. Returns the number of acks emitted.
func (s *Session) JumpToLatest() int {
	n := s.receipts.AckAll()
	if s.cb.ScrollToTail != nil {
		s.cb.ScrollToTail()
	}
	return n
}

// OnScroll feeds a scroll position to the pagination trigger policy, fetching
// the next older page when the offset from the top crosses the threshold.
func (s *Session) OnScroll(ctx context.Context, offsetFromTop float64) (bool, error) {
	if !s.paginator.ShouldFetchMore(offsetFromTop) {
		return false, nil
	}
	return s.paginator.FetchPage(ctx, false)
}

// LoadOlder fetches one older history page unconditionally (modulo the
// in-flight lock and exhausted history).
func (s *Session) LoadOlder(ctx context.Context) (bool, error) {
	return s.paginator.FetchPage(ctx, false)
}

// Store exposes the room's message store.
func (s *Session) Store() *Store { return s.store }

// Receipts exposes the room's receipt tracker.
func (s *Session) Receipts() *ReceiptTracker { return s.receipts }

// Paginator exposes the room's pagination controller.
func (s *Session) Paginator() *Paginator { return s.paginator }

// Router exposes the room's event router.
func (s *Session) Router() *Router { return s.router }

// Info returns the room metadata fetched on Open.
func (s *Session) Info() models.RoomInfo { return s.info }

// LastReadAnchor returns the id of the message the conversation should open
// at: the newest other-party message the user had already seen. Empty means
// open at the tail.
func (s *Session) LastReadAnchor() string { return s.anchor }

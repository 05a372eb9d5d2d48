package chatcore

import (
	"context"

	"gigchat/client/internal/models"
)

// HistoryFetcher fetches one backward page of a room's message history.
// An empty cursor means "most recent page".
type HistoryFetcher interface {
	History(ctx context.Context, roomID, cursor string) (models.HistoryPage, error)
}

// RoomInfoFetcher fetches room metadata.
type RoomInfoFetcher interface {
	RoomInfo(ctx context.Context, roomID string) (models.RoomInfo, error)
}

// Channel is the room-scoped realtime event stream the core talks to. Join
// and Leave are fire-and-forget intents; Subscribe registers an inbound
// handler and returns its teardown.
type Channel interface {
	Join(roomID string) error
	Leave(roomID string) error
	Subscribe(fn func(models.Event)) (cancel func())
	SendMessage(out models.OutgoingMessage) error
	NotifySeen(roomID, messageID, userID string) error
	NotifyTyping(roomID string, active bool) error
}

// SeenNotifier is the subset of Channel the receipt tracker needs.
type SeenNotifier interface {
	NotifySeen(roomID, messageID, userID string) error
}

// Viewport is the contract the rendering layer implements so the core never
// measures view internals itself. ContentHeight and ScrollOffset report the
// current list geometry; AdjustScroll shifts the reading position by the
// height a prepend added; AtBottom reports whether the viewport is within
// the bottom threshold of the content end.
type Viewport interface {
	ContentHeight() float64
	ScrollOffset() float64
	AdjustScroll(delta float64)
	AtBottom() bool
}

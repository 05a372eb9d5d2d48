package chatcore_test

import (
	"context"
	"sync"

	"gigchat/client/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeChannel is a test double for the chatcore.Channel interface. It records
// every outbound intent and lets tests inject inbound events via Emit.
type fakeChannel struct {
	mu       sync.Mutex
	joined   []string
	left     []string
	sent     []models.OutgoingMessage
	seenAcks []models.SeenPayload
	typing   []bool
	handlers map[int]func(models.Event)
	nextID   int

	sendErr error
	seenErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[int]func(models.Event))}
}

func (c *fakeChannel) Join(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, roomID)
	return nil
}

func (c *fakeChannel) Leave(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, roomID)
	return nil
}

func (c *fakeChannel) Subscribe(fn func(models.Event)) func() {
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

func (c *fakeChannel) SendMessage(out models.OutgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, out)
	return nil
}

func (c *fakeChannel) NotifySeen(roomID, messageID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seenErr != nil {
		return c.seenErr
	}
	c.seenAcks = append(c.seenAcks, models.SeenPayload{MessageID: messageID, UserID: userID})
	return nil
}

func (c *fakeChannel) NotifyTyping(roomID string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing = append(c.typing, active)
	return nil
}

// Emit dispatches an inbound event to every registered handler, like the
// realtime channel's read pump would.
func (c *fakeChannel) Emit(ev models.Event) {
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

func (c *fakeChannel) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *fakeChannel) SeenAcks() []models.SeenPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.SeenPayload, len(c.seenAcks))
	copy(out, c.seenAcks)
	return out
}

// MockHistory is a testify mock of the chatcore.HistoryFetcher interface.
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) History(ctx context.Context, roomID, cursor string) (models.HistoryPage, error) {
	args := m.Called(ctx, roomID, cursor)
	return args.Get(0).(models.HistoryPage), args.Error(1)
}

// MockRoomInfo is a testify mock of the chatcore.RoomInfoFetcher interface.
type MockRoomInfo struct {
	mock.Mock
}

func (m *MockRoomInfo) RoomInfo(ctx context.Context, roomID string) (models.RoomInfo, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(models.RoomInfo), args.Error(1)
}

// blockingHistory parks History calls until released, for exercising the
// in-flight lock.
type blockingHistory struct {
	started chan struct{}
	release chan struct{}
	page    models.HistoryPage
	err     error
}

func newBlockingHistory(page models.HistoryPage) *blockingHistory {
	return &blockingHistory{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		page:    page,
	}
}

func (b *blockingHistory) History(ctx context.Context, roomID, cursor string) (models.HistoryPage, error) {
	b.started <- struct{}{}
	<-b.release
	return b.page, b.err
}

// fakeViewport is a settable stand-in for the rendering layer. When heightFn
// is set, ContentHeight derives from it (e.g. from store length), which
// mimics a list re-rendering after a prepend.
type fakeViewport struct {
	mu       sync.Mutex
	height   float64
	heightFn func() float64
	offset   float64
	atBottom bool
	adjusted []float64
}

func (v *fakeViewport) ContentHeight() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.heightFn != nil {
		return v.heightFn()
	}
	return v.height
}

func (v *fakeViewport) ScrollOffset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

func (v *fakeViewport) AdjustScroll(delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset += delta
	v.adjusted = append(v.adjusted, delta)
}

func (v *fakeViewport) AtBottom() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.atBottom
}

func (v *fakeViewport) setHeight(h float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.height = h
}

func (v *fakeViewport) setAtBottom(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.atBottom = b
}

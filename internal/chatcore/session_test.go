package chatcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigchat/client/internal/chatcore"
	"gigchat/client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, channel *fakeChannel) (*chatcore.Session, *MockHistory, *MockRoomInfo) {
	t.Helper()
	history := new(MockHistory)
	info := new(MockRoomInfo)
	session := chatcore.NewSession(chatcore.SessionConfig{
		SelfID:   "me",
		SelfName: "Me",
		RoomID:   "room-1",
		History:  history,
		Info:     info,
		Channel:  channel,
	})
	return session, history, info
}

func TestSession_OpenRunsMountSequence(t *testing.T) {
	channel := newFakeChannel()
	session, history, info := newTestSession(t, channel)

	info.On("RoomInfo", mock.Anything, "room-1").Return(models.RoomInfo{
		Participants: []models.User{{ID: "me"}, {ID: "other", Name: "Dana"}},
		Job:          models.Job{ID: "job-1", Title: "Assemble wardrobe"},
	}, nil)
	history.On("History", mock.Anything, "room-1", "").Return(models.HistoryPage{
		Messages: initialPage(),
		HasMore:  false,
	}, nil)

	require.NoError(t, session.Open(context.Background()))
	defer session.Close()

	assert.Equal(t, 3, session.Store().Len())
	assert.Equal(t, "m2", session.LastReadAnchor(), "open at the last reading position")
	assert.Equal(t, []string{"m3"}, session.Receipts().Pending())
	assert.Equal(t, chatcore.StateActive, session.Router().State())
	assert.Equal(t, []string{"room-1"}, channel.joined)
	assert.Equal(t, "Dana", session.Info().Participants[1].Name)
}

func TestSession_OpenFailureIsRetryable(t *testing.T) {
	channel := newFakeChannel()
	session, history, info := newTestSession(t, channel)

	info.On("RoomInfo", mock.Anything, "room-1").Return(models.RoomInfo{}, nil)
	history.On("History", mock.Anything, "room-1", "").
		Return(models.HistoryPage{}, errors.New("timeout")).Once()
	history.On("History", mock.Anything, "room-1", "").Return(models.HistoryPage{
		Messages: []models.Message{msg("m1", "other", "hi", 0)},
		HasMore:  false,
	}, nil).Once()

	err := session.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, chatcore.StateUnsubscribed, session.Router().State(), "failed open leaves the session closed")
	assert.Empty(t, channel.joined)

	require.NoError(t, session.Open(context.Background()))
	defer session.Close()
	assert.Equal(t, 1, session.Store().Len())
}

func TestSession_SendTextOptimisticEcho(t *testing.T) {
	channel := newFakeChannel()
	session, _, _ := newTestSession(t, channel)

	sent, err := session.SendText("be there in 10", "")
	require.NoError(t, err)

	assert.True(t, sent.IsTemp)
	assert.True(t, models.IsTempID(sent.ID))
	assert.Equal(t, 1, session.Store().Len(), "temp bubble appears immediately")

	require.Len(t, channel.sent, 1)
	assert.Equal(t, sent.ID, channel.sent[0].TempID, "temp id travels with the send")

	// Confirmation replaces the bubble in place.
	confirmed := msg("srv-1", "me", "be there in 10", 0)
	confirmed.TempID = sent.ID
	session.Store().ApplyIncoming(confirmed)
	assert.Equal(t, 1, session.Store().Len())
	_, found := session.Store().Get(sent.ID)
	assert.False(t, found)
}

func TestSession_RepeatedIdenticalSendsKeepBothBubbles(t *testing.T) {
	channel := newFakeChannel()
	session, _, _ := newTestSession(t, channel)

	firstSent, err := session.SendText("ok", "")
	require.NoError(t, err)
	secondSent, err := session.SendText("ok", "")
	require.NoError(t, err)

	require.Equal(t, 2, session.Store().Len(), "both temp bubbles should be in the store")
	_, found := session.Store().Get(firstSent.ID)
	assert.True(t, found, "first temp bubble must survive a second identical send")

	// Rolling back the second send must not touch the first bubble.
	session.Store().RemoveTemp(secondSent.ID)
	require.Equal(t, 1, session.Store().Len())
	_, found = session.Store().Get(firstSent.ID)
	assert.True(t, found)

	// Each confirmation resolves its own bubble by echoed temp id.
	confirmed := msg("srv-1", "me", "ok", 0)
	confirmed.TempID = firstSent.ID
	session.Store().ApplyIncoming(confirmed)
	assert.Equal(t, 1, session.Store().Len())
	_, found = session.Store().Get("srv-1")
	assert.True(t, found)
}

func TestSession_SendTextLocalFailureRollsBack(t *testing.T) {
	channel := newFakeChannel()
	channel.sendErr = errors.New("socket closed")
	session, _, _ := newTestSession(t, channel)

	_, err := session.SendText("never leaves", "")
	require.Error(t, err)
	assert.Equal(t, 0, session.Store().Len(), "failed send leaves no orphan bubble")
}

func TestSession_SendAttachment(t *testing.T) {
	channel := newFakeChannel()
	session, _, _ := newTestSession(t, channel)

	sent, err := session.SendAttachment("https://cdn.example/f.jpg", "f.jpg", "the broken hinge")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/f.jpg", sent.MediaURL)
	assert.Equal(t, "the broken hinge", sent.Text)
	require.Len(t, channel.sent, 1)
	assert.Equal(t, "f.jpg", channel.sent[0].FileName)
}

func TestSession_JumpToLatest(t *testing.T) {
	channel := newFakeChannel()
	var scrolled bool
	history := new(MockHistory)
	session := chatcore.NewSession(chatcore.SessionConfig{
		SelfID:  "me",
		RoomID:  "room-1",
		History: history,
		Channel: channel,
		View:    &fakeViewport{atBottom: false},
		Callbacks: chatcore.RouterCallbacks{
			ScrollToTail: func() { scrolled = true },
		},
	})
	session.Receipts().OnNewMessage(msg("m1", "other", "hi", 0), false)
	session.Receipts().OnNewMessage(msg("m2", "other", "there?", time.Minute), false)

	n := session.JumpToLatest()

	assert.Equal(t, 2, n)
	assert.Len(t, channel.SeenAcks(), 2)
	assert.Equal(t, 0, session.Receipts().PendingCount())
	assert.True(t, scrolled)
}

func TestSession_OnScrollTriggersFetch(t *testing.T) {
	channel := newFakeChannel()
	session, history, info := newTestSession(t, channel)

	info.On("RoomInfo", mock.Anything, "room-1").Return(models.RoomInfo{}, nil)
	history.On("History", mock.Anything, "room-1", "").Return(models.HistoryPage{
		Messages:   []models.Message{msg("m5", "other", "e", 5*time.Minute)},
		NextCursor: "cur-1",
		HasMore:    true,
	}, nil).Once()
	history.On("History", mock.Anything, "room-1", "cur-1").Return(models.HistoryPage{
		Messages: []models.Message{msg("m4", "other", "d", 4*time.Minute)},
		HasMore:  false,
	}, nil).Once()

	require.NoError(t, session.Open(context.Background()))
	defer session.Close()

	fetched, err := session.OnScroll(context.Background(), 5000)
	require.NoError(t, err)
	assert.False(t, fetched, "far from the top: no fetch")

	fetched, err = session.OnScroll(context.Background(), 20)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, 2, session.Store().Len())
	history.AssertExpectations(t)
}

package chatcore_test

import (
	"testing"
	"time"

	"gigchat/client/internal/chatcore"
	"gigchat/client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRooms() []models.Room {
	return []models.Room{
		{
			ID:            "room-1",
			Participants:  []models.User{{ID: "me"}, {ID: "u2", Name: "Dana Fixit"}},
			Job:           models.Job{ID: "job-1", Title: "Assemble wardrobe"},
			LastMessage:   "see you at 5",
			LastMessageAt: baseTime.Add(2 * time.Hour),
			UnreadCounts:  map[string]int{"me": 1},
		},
		{
			ID:            "room-2",
			Participants:  []models.User{{ID: "me"}, {ID: "u3", Name: "Sam Mover"}},
			Job:           models.Job{ID: "job-2", Title: "Move a couch"},
			LastMessage:   "thanks!",
			LastMessageAt: baseTime.Add(time.Hour),
			UnreadCounts:  map[string]int{"me": 2},
		},
	}
}

func TestRoomList_ReplaceSortsByRecency(t *testing.T) {
	list := chatcore.NewRoomList("me")
	rooms := sampleRooms()
	// Feed in reverse recency order.
	list.Replace([]models.Room{rooms[1], rooms[0]})

	got := list.Rooms()
	require.Len(t, got, 2)
	assert.Equal(t, "room-1", got[0].ID, "most recent activity first")
}

func TestRoomList_UpsertMergesExisting(t *testing.T) {
	list := chatcore.NewRoomList("me")
	list.Replace(sampleRooms())

	list.Upsert(models.RoomUpdate{
		RoomID:        "room-2",
		LastMessage:   "one more thing",
		LastMessageAt: baseTime.Add(3 * time.Hour),
		UnreadCounts:  map[string]int{"me": 3},
	})

	got := list.Rooms()
	assert.Equal(t, "room-2", got[0].ID, "updated room re-sorts to the top")
	assert.Equal(t, "one more thing", got[0].LastMessage)
	assert.Equal(t, 3, got[0].UnreadFor("me"))
	assert.Equal(t, "Sam Mover", got[0].OtherParticipant("me").Name, "merge keeps existing fields")
}

func TestRoomList_UpsertUnknownRoomInserts(t *testing.T) {
	list := chatcore.NewRoomList("me")
	list.Replace(sampleRooms())

	list.Upsert(models.RoomUpdate{
		RoomID:        "room-9",
		Participants:  []models.User{{ID: "me"}, {ID: "u9", Name: "New Tasker"}},
		Job:           &models.Job{ID: "job-9", Title: "Paint fence"},
		LastMessage:   "hi, I applied",
		LastMessageAt: baseTime.Add(4 * time.Hour),
	})

	got := list.Rooms()
	require.Len(t, got, 3)
	assert.Equal(t, "room-9", got[0].ID)
	assert.Equal(t, "Paint fence", got[0].Job.Title)
}

func TestRoomList_OutOfOrderUpdatesStaySorted(t *testing.T) {
	list := chatcore.NewRoomList("me")
	list.Replace(sampleRooms())

	// An older update for the top room must not keep it on top.
	list.Upsert(models.RoomUpdate{
		RoomID:        "room-2",
		LastMessageAt: baseTime.Add(5 * time.Hour),
	})
	list.Upsert(models.RoomUpdate{
		RoomID:        "room-1",
		LastMessageAt: baseTime.Add(3 * time.Hour),
	})

	got := list.Rooms()
	assert.Equal(t, []string{"room-2", "room-1"}, []string{got[0].ID, got[1].ID})
}

func TestRoomList_ClearUnreadForSelf(t *testing.T) {
	list := chatcore.NewRoomList("me")
	list.Replace(sampleRooms())

	list.ClearUnreadForSelf("room-2")

	for _, r := range list.Rooms() {
		if r.ID == "room-2" {
			assert.Equal(t, 0, r.UnreadFor("me"))
		}
	}
	assert.Equal(t, 1, list.UnreadTotal())
}

func TestRoomList_Filter(t *testing.T) {
	list := chatcore.NewRoomList("me")
	list.Replace(sampleRooms())

	byName := list.Filter("dana")
	require.Len(t, byName, 1)
	assert.Equal(t, "room-1", byName[0].ID)

	byJob := list.Filter("COUCH")
	require.Len(t, byJob, 1)
	assert.Equal(t, "room-2", byJob[0].ID)

	assert.Len(t, list.Filter(""), 2)
	assert.Empty(t, list.Filter("plumbing"))
}

func TestRoomList_BindRoutesEvents(t *testing.T) {
	channel := newFakeChannel()
	list := chatcore.NewRoomList("me")
	list.Replace(sampleRooms())
	cancel := list.Bind(channel)
	defer cancel()

	channel.Emit(event(t, models.EventRoomUpdate, "room-1", models.RoomUpdate{
		RoomID:        "room-1",
		LastMessage:   "running late",
		LastMessageAt: baseTime.Add(6 * time.Hour),
		UnreadCounts:  map[string]int{"me": 2},
	}))
	got := list.Rooms()
	assert.Equal(t, "running late", got[0].LastMessage)
	assert.Equal(t, 2, got[0].UnreadFor("me"))

	// A self-originated seen event zeroes the room's own counter.
	channel.Emit(event(t, models.EventSeen, "room-1", models.SeenPayload{MessageID: "m1", UserID: "me"}))
	got = list.Rooms()
	assert.Equal(t, 0, got[0].UnreadFor("me"))

	// Another user's receipt does not.
	channel.Emit(event(t, models.EventSeen, "room-2", models.SeenPayload{MessageID: "m2", UserID: "u3"}))
	assert.Equal(t, 2, list.Rooms()[1].UnreadFor("me"))
}

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gigchat/client/internal/api"
	"gigchat/client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/room-1/messages", r.URL.Path)
		assert.Equal(t, "cur-1", r.URL.Query().Get("cursor"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(models.HistoryPage{
			Messages: []models.Message{{
				ID:        "m1",
				RoomID:    "room-1",
				SenderID:  "u1",
				Text:      "hello",
				CreatedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			}},
			NextCursor: "cur-2",
			HasMore:    true,
		})
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok")
	page, err := client.History(context.Background(), "room-1", "cur-1")

	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.Equal(t, "cur-2", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestClient_HistoryOmitsEmptyCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["cursor"]
		assert.False(t, present, "empty cursor means newest page, no param")
		json.NewEncoder(w).Encode(models.HistoryPage{})
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, "tok").History(context.Background(), "room-1", "")
	require.NoError(t, err)
}

func TestClient_RoomsAndInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rooms":
			json.NewEncoder(w).Encode([]models.Room{{ID: "room-1"}, {ID: "room-2"}})
		case "/rooms/room-1":
			json.NewEncoder(w).Encode(models.RoomInfo{
				Participants: []models.User{{ID: "u1", Name: "Dana"}},
				Job:          models.Job{ID: "job-1", Title: "Assemble wardrobe"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok")

	rooms, err := client.Rooms(context.Background())
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	info, err := client.RoomInfo(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "Assemble wardrobe", info.Job.Title)
}

func TestClient_AttachmentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/attachments/intent", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hinge.jpg", body["filename"])
		assert.Equal(t, "image/jpeg", body["content_type"])
		json.NewEncoder(w).Encode(models.AttachmentIntent{
			UploadURL: "https://up.example/u/1",
			PublicURL: "https://cdn.example/f/1",
		})
	}))
	defer srv.Close()

	intent, err := api.New(srv.URL, "tok").AttachmentIntent(context.Background(), "hinge.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/f/1", intent.PublicURL)
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, "tok").Rooms(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsTransient(err))
}

func TestClient_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, "tok").Rooms(context.Background())
	require.Error(t, err)
	assert.False(t, api.IsTransient(err))
}

func TestClient_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := api.New(srv.URL, "tok").Rooms(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsTransient(err))
}

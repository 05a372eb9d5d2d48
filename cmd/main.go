package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"gigchat/client/internal/api"
	"gigchat/client/internal/auth"
	"gigchat/client/internal/cache"
	"gigchat/client/internal/chatcore"
	"gigchat/client/internal/config"
	"gigchat/client/internal/models"
	"gigchat/client/internal/realtime"

	"github.com/joho/godotenv"
)

// terminalViewport satisfies the viewport contract for a scrollback terminal:
// output always appends at the tail, so the reader is always at the bottom
// and prepends need no compensation.
type terminalViewport struct{}

func (terminalViewport) ContentHeight() float64 { return 0 }
func (terminalViewport) ScrollOffset() float64  { return 0 }
func (terminalViewport) AdjustScroll(float64)   {}
func (terminalViewport) AtBottom() bool         { return true }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment as-is")
	}
	cfg := config.Load()

	token := cfg.Token
	if token == "" {
		userID := os.Getenv("CHAT_USER_ID")
		if userID == "" {
			userID = "user-alex"
		}
		var err error
		token, err = fetchDevToken(cfg.APIBaseURL, userID)
		if err != nil {
			log.Fatalf("no CHAT_TOKEN set and token fetch failed: %v", err)
		}
	}
	selfID, err := auth.UserID(token)
	if err != nil {
		log.Fatalf("cannot read identity from token: %v", err)
	}

	client := api.New(cfg.APIBaseURL, token)

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("open offline cache: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	list := chatcore.NewRoomList(selfID)
	if cached, err := store.LoadRooms(); err == nil && len(cached) > 0 {
		list.Replace(cached)
		log.Printf("room list restored from cache (%d rooms)", len(cached))
	}
	if rooms, err := client.Rooms(ctx); err != nil {
		log.Printf("room list fetch failed, showing cached state: %v", err)
	} else {
		list.Replace(rooms)
		if err := store.SaveRooms(rooms); err != nil {
			log.Printf("cache rooms: %v", err)
		}
	}

	channel, err := realtime.Dial(ctx, cfg.SocketURL, token)
	if err != nil {
		log.Fatalf("connect realtime channel: %v", err)
	}
	defer channel.Close()
	unbind := list.Bind(channel)
	defer unbind()

	printRooms(list, selfID)
	runPrompt(ctx, promptDeps{
		selfID:  selfID,
		client:  client,
		store:   store,
		channel: channel,
		list:    list,
	})
}

func fetchDevToken(base, userID string) (string, error) {
	resp, err := http.Get(base + "/token?user_id=" + userID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Token, nil
}

type promptDeps struct {
	selfID  string
	client  *api.Client
	store   *cache.Cache
	channel *realtime.Channel
	list    *chatcore.RoomList
}

func runPrompt(ctx context.Context, deps promptDeps) {
	var session *chatcore.Session

	closeSession := func() {
		if session == nil {
			return
		}
		if err := deps.store.SaveMessages(session.Store().RoomID(), session.Store().Messages()); err != nil {
			log.Printf("cache messages: %v", err)
		}
		session.Close()
		session = nil
	}
	defer closeSession()

	fmt.Println("commands: /rooms, /open <room-id>, /older, /find <text>, /quit; anything else sends")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":

		case line == "/quit":
			return

		case line == "/rooms":
			printRooms(deps.list, deps.selfID)

		case strings.HasPrefix(line, "/find "):
			for _, r := range deps.list.Filter(strings.TrimPrefix(line, "/find ")) {
				printRoomLine(r, deps.selfID)
			}

		case strings.HasPrefix(line, "/open "):
			closeSession()
			roomID := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			s, err := openRoom(ctx, deps, roomID)
			if err != nil {
				log.Printf("open %s: %v", roomID, err)
				continue
			}
			session = s

		case line == "/older":
			if session == nil {
				fmt.Println("no room open")
				continue
			}
			grew, err := session.LoadOlder(ctx)
			if err != nil {
				log.Printf("load older: %v", err)
			} else if !grew {
				fmt.Println("(beginning of conversation)")
			} else {
				printTranscript(session)
			}

		default:
			if session == nil {
				fmt.Println("no room open, /open one first")
				continue
			}
			if _, err := session.SendText(line, ""); err != nil {
				log.Printf("send: %v", err)
			}
		}
	}
}

func openRoom(ctx context.Context, deps promptDeps, roomID string) (*chatcore.Session, error) {
	if cached, err := deps.store.RecentMessages(roomID, config.HistoryPageSize); err == nil && len(cached) > 0 {
		fmt.Println("(cached copy while loading)")
		for _, m := range cached {
			printMessage(m)
		}
	}

	session := chatcore.NewSession(chatcore.SessionConfig{
		SelfID:  deps.selfID,
		RoomID:  roomID,
		History: deps.client,
		Info:    deps.client,
		Channel: deps.channel,
		View:    terminalViewport{},
		Callbacks: chatcore.RouterCallbacks{
			OnTyping: func(active bool) {
				if active {
					fmt.Println("(typing...)")
				}
			},
			OnError: func(reason string) { log.Printf("send failed: %s", reason) },
		},
	})
	if err := session.Open(ctx); err != nil {
		return nil, err
	}

	info := session.Info()
	fmt.Printf("-- %s --\n", info.Job.Title)
	printTranscript(session)
	return session, nil
}

func printTranscript(s *chatcore.Session) {
	for _, m := range s.Store().Messages() {
		printMessage(m)
	}
}

func printMessage(m models.Message) {
	switch {
	case m.Deleted:
		fmt.Printf("[%s] %s: (message deleted)\n", m.CreatedAt.Format("15:04"), m.SenderName)
	case m.MediaURL != "":
		fmt.Printf("[%s] %s: <%s> %s\n", m.CreatedAt.Format("15:04"), m.SenderName, m.FileName, m.Text)
	default:
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.SenderName, m.Text)
	}
}

func printRooms(list *chatcore.RoomList, selfID string) {
	rooms := list.Rooms()
	if len(rooms) == 0 {
		fmt.Println("no conversations yet")
		return
	}
	for _, r := range rooms {
		printRoomLine(r, selfID)
	}
}

func printRoomLine(r models.Room, selfID string) {
	marker := ""
	if n := r.UnreadFor(selfID); n > 0 {
		marker = fmt.Sprintf(" (%d unread)", n)
	}
	fmt.Printf("%s  %s / %s: %s%s\n",
		r.ID, r.OtherParticipant(selfID).Name, r.Job.Title, r.LastMessage, marker)
}

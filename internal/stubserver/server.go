package stubserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gigchat/client/internal/auth"
	"gigchat/client/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const tokenTTL = 24 * time.Hour

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the development chat backend: REST endpoints, a websocket hub and
// an in-memory blob store standing in for the CDN.
type Server struct {
	world  *World
	hub    *Hub
	secret []byte

	blobMu sync.Mutex
	blobs  map[string][]byte
}

// New wires a server over world. rdb may be nil to disable Redis fanout.
func New(world *World, secret []byte, rdb *redis.Client) *Server {
	return &Server{
		world:  world,
		hub:    NewHub(world, rdb),
		secret: secret,
		blobs:  make(map[string][]byte),
	}
}

// Start launches the hub loop.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/token", s.issueToken)
	r.PUT("/uploads/:id", s.receiveUpload)
	r.GET("/files/:id", s.serveFile)

	authed := r.Group("/", s.requireAuth)
	authed.GET("/rooms", s.listRooms)
	authed.GET("/rooms/:id", s.roomInfo)
	authed.GET("/rooms/:id/messages", s.roomMessages)
	authed.POST("/attachments/intent", s.attachmentIntent)
	authed.GET("/ws", s.serveWebSocket)

	return r
}

// issueToken hands out a signed session token. Development convenience; the
// production service authenticates through the marketplace login.
func (s *Server) issueToken(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	token, err := auth.Issue(s.secret, userID, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	userID, err := auth.Verify(s.secret, strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set("user_id", userID)
	c.Next()
}

func (s *Server) listRooms(c *gin.Context) {
	rooms := s.world.RoomsFor(c.GetString("user_id"))
	if rooms == nil {
		rooms = []models.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

func (s *Server) roomInfo(c *gin.Context) {
	info, err := s.world.Room(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) roomMessages(c *gin.Context) {
	page, err := s.world.History(c.Param("id"), c.Query("cursor"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) attachmentIntent(c *gin.Context) {
	var req struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.New().String()
	base := "http://" + c.Request.Host
	c.JSON(http.StatusOK, models.AttachmentIntent{
		UploadURL: fmt.Sprintf("%s/uploads/%s", base, id),
		PublicURL: fmt.Sprintf("%s/files/%s", base, id),
	})
}

func (s *Server) receiveUpload(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.blobMu.Lock()
	s.blobs[c.Param("id")] = data
	s.blobMu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) serveFile(c *gin.Context) {
	s.blobMu.Lock()
	data, ok := s.blobs[c.Param("id")]
	s.blobMu.Unlock()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) serveWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := newWSClient(s.hub, c.GetString("user_id"), conn)
	s.hub.register <- client
	client.run()
}

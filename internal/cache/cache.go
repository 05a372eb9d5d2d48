// Package cache persists rooms and recent messages to a local sqlite file so
// the room list and a just-opened conversation can render before the network
// answers. It is a write-behind mirror, never the source of truth: the REST
// fetch and realtime stream overwrite it.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gigchat/client/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// CachedRoom is the room-list row. Participants and unread counts are stored
// serialized; the cache is read back wholesale, never queried by field.
type CachedRoom struct {
	ID               string `gorm:"primaryKey"`
	JobID            string
	JobTitle         string
	ParticipantsJSON string `gorm:"type:text"`
	UnreadJSON       string `gorm:"type:text"`
	LastMessage      string
	LastMessageAt    time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

// CachedMessage is one confirmed message row. Temp messages are never
// persisted.
type CachedMessage struct {
	ID         string `gorm:"primaryKey"`
	RoomID     string `gorm:"index:idx_room_created"`
	SenderID   string
	SenderName string
	Text       string `gorm:"type:text"`
	MediaURL   string
	FileName   string
	ReplyToID  string
	SeenByJSON string    `gorm:"type:text"`
	Deleted    bool
	CreatedAt  time.Time `gorm:"index:idx_room_created"`
}

// Cache wraps the sqlite store.
type Cache struct {
	db *gorm.DB
}

// Open opens (creating if needed) the cache at path and runs migrations.
// Use ":memory:" for an ephemeral cache.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open chat cache %s: %w", path, err)
	}
	// Single connection: avoids sqlite write-lock contention and keeps
	// ":memory:" databases from splitting across pool connections.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open chat cache %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&CachedRoom{}, &CachedMessage{}); err != nil {
		return nil, fmt.Errorf("migrate chat cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// SaveRooms upserts the given rooms.
func (c *Cache) SaveRooms(rooms []models.Room) error {
	if len(rooms) == 0 {
		return nil
	}
	rows := make([]CachedRoom, 0, len(rooms))
	for _, r := range rooms {
		participants, err := json.Marshal(r.Participants)
		if err != nil {
			return fmt.Errorf("encode participants for room %s: %w", r.ID, err)
		}
		unread, err := json.Marshal(r.UnreadCounts)
		if err != nil {
			return fmt.Errorf("encode unread counts for room %s: %w", r.ID, err)
		}
		rows = append(rows, CachedRoom{
			ID:               r.ID,
			JobID:            r.Job.ID,
			JobTitle:         r.Job.Title,
			ParticipantsJSON: string(participants),
			UnreadJSON:       string(unread),
			LastMessage:      r.LastMessage,
			LastMessageAt:    r.LastMessageAt,
		})
	}
	return c.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// LoadRooms returns every cached room, most recent activity first.
func (c *Cache) LoadRooms() ([]models.Room, error) {
	var rows []CachedRoom
	if err := c.db.Order("last_message_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load cached rooms: %w", err)
	}
	rooms := make([]models.Room, 0, len(rows))
	for _, row := range rows {
		room := models.Room{
			ID:            row.ID,
			Job:           models.Job{ID: row.JobID, Title: row.JobTitle},
			LastMessage:   row.LastMessage,
			LastMessageAt: row.LastMessageAt,
		}
		if row.ParticipantsJSON != "" {
			if err := json.Unmarshal([]byte(row.ParticipantsJSON), &room.Participants); err != nil {
				return nil, fmt.Errorf("decode participants for room %s: %w", row.ID, err)
			}
		}
		if row.UnreadJSON != "" && row.UnreadJSON != "null" {
			if err := json.Unmarshal([]byte(row.UnreadJSON), &room.UnreadCounts); err != nil {
				return nil, fmt.Errorf("decode unread counts for room %s: %w", row.ID, err)
			}
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// SaveMessages upserts confirmed messages for a room; temp messages are
// skipped.
func (c *Cache) SaveMessages(roomID string, messages []models.Message) error {
	rows := make([]CachedMessage, 0, len(messages))
	for _, m := range messages {
		if m.IsTemp {
			continue
		}
		seenBy, err := json.Marshal(m.SeenBy)
		if err != nil {
			return fmt.Errorf("encode seen_by for message %s: %w", m.ID, err)
		}
		rows = append(rows, CachedMessage{
			ID:         m.ID,
			RoomID:     roomID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Text:       m.Text,
			MediaURL:   m.MediaURL,
			FileName:   m.FileName,
			ReplyToID:  m.ReplyToID,
			SeenByJSON: string(seenBy),
			Deleted:    m.Deleted,
			CreatedAt:  m.CreatedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return c.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// RecentMessages returns up to limit of the room's newest cached messages,
// oldest first, shaped like the newest history page.
func (c *Cache) RecentMessages(roomID string, limit int) ([]models.Message, error) {
	var rows []CachedMessage
	err := c.db.Where("room_id = ?", roomID).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load cached messages for room %s: %w", roomID, err)
	}

	// Reverse to chronological order.
	messages := make([]models.Message, len(rows))
	for i, row := range rows {
		m := models.Message{
			ID:         row.ID,
			RoomID:     row.RoomID,
			SenderID:   row.SenderID,
			SenderName: row.SenderName,
			Text:       row.Text,
			MediaURL:   row.MediaURL,
			FileName:   row.FileName,
			ReplyToID:  row.ReplyToID,
			Deleted:    row.Deleted,
			CreatedAt:  row.CreatedAt,
		}
		if row.SeenByJSON != "" && row.SeenByJSON != "null" {
			if err := json.Unmarshal([]byte(row.SeenByJSON), &m.SeenBy); err != nil {
				return nil, fmt.Errorf("decode seen_by for message %s: %w", row.ID, err)
			}
		}
		messages[len(rows)-1-i] = m
	}
	return messages, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Package api wraps the marketplace chat REST endpoints the sync core
// depends on: history pages, the room list, room metadata and attachment
// intents.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gigchat/client/internal/models"
)

// TransientError marks a failure worth retrying: network trouble or a 5xx
// from the backend. State on the caller's side is left consistent, so retry
// is just calling the same operation again.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Client talks to the chat REST API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a client against baseURL, authenticating with the session
// token.
func New(baseURL, token string) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// History fetches one backward page of a room's messages. An empty cursor
// means the most recent page.
func (c *Client) History(ctx context.Context, roomID, cursor string) (models.HistoryPage, error) {
	path := fmt.Sprintf("/rooms/%s/messages", url.PathEscape(roomID))
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var page models.HistoryPage
	if err := c.get(ctx, path, &page); err != nil {
		return models.HistoryPage{}, err
	}
	return page, nil
}

// Rooms fetches the user's room list.
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.get(ctx, "/rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// RoomInfo fetches a room's participants and job.
func (c *Client) RoomInfo(ctx context.Context, roomID string) (models.RoomInfo, error) {
	var info models.RoomInfo
	if err := c.get(ctx, "/rooms/"+url.PathEscape(roomID), &info); err != nil {
		return models.RoomInfo{}, err
	}
	return info, nil
}

// AttachmentIntent requests an upload target for a new attachment. The
// actual bytes go straight to the returned upload URL, not through this API.
func (c *Client) AttachmentIntent(ctx context.Context, filename, contentType string) (models.AttachmentIntent, error) {
	body := map[string]string{
		"filename":     filename,
		"content_type": contentType,
	}
	var intent models.AttachmentIntent
	if err := c.do(ctx, http.MethodPost, "/attachments/intent", body, &intent); err != nil {
		return models.AttachmentIntent{}, err
	}
	return intent, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := fmt.Sprintf("%s %s", method, path)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return &TransientError{Op: op, Err: fmt.Errorf("server returned %s", resp.Status)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

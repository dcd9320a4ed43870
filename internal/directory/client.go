// Package directory fetches authoritative room snapshots over REST.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/config"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/identity"
	"github.com/vovakirdan/bookchat/internal/proto"
)

const maxBodyBytes = 4 << 20

// ErrMalformed is returned when a response lacks the fields a record needs.
var ErrMalformed = errors.New("malformed response")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("directory: http %d", e.StatusCode)
	}
	return fmt.Sprintf("directory: http %d: %s", e.StatusCode, e.Message)
}

// IdentityResolver supplies the credential attached to each request.
type IdentityResolver interface {
	Resolve(ctx context.Context) (identity.Identity, error)
}

// Config holds configuration for a Client.
type Config struct {
	BaseURL    string
	Role       config.Role
	Timeout    time.Duration
	HTTPClient *http.Client
	Identity   IdentityResolver
	Logger     *zerolog.Logger
}

// Client is the room directory REST client.
type Client struct {
	baseURL    string
	role       config.Role
	httpClient *http.Client
	identity   IdentityResolver
	log        *zerolog.Logger
}

// NewClient creates a directory client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	role := cfg.Role
	if !role.Valid() {
		role = config.RoleCustomer
	}
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		role:       role,
		httpClient: httpClient,
		identity:   cfg.Identity,
		log:        logger,
	}
}

// ListPath returns the room list endpoint for role.
func ListPath(role config.Role) string {
	switch role {
	case config.RoleOwner:
		return "/api/owner/chat/rooms"
	case config.RoleCoach:
		return "/api/coach/chat/rooms"
	default:
		return "/api/chat/rooms"
	}
}

// ListRooms fetches every room visible to the current actor. A response
// without rooms yields an empty list; records without an id are skipped.
func (c *Client) ListRooms(ctx context.Context) ([]core.Room, error) {
	raw, err := c.do(ctx, http.MethodGet, ListPath(c.role), nil)
	if err != nil {
		return nil, err
	}

	rooms := []core.Room{}
	data := unwrap(raw)
	if isNull(data) {
		return rooms, nil
	}

	var payloads []json.RawMessage
	if err := json.Unmarshal(data, &payloads); err != nil {
		// Some deployments nest the list one level further under "rooms".
		var nested struct {
			Rooms []json.RawMessage `json:"rooms"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("%w: room list: %v", ErrMalformed, err)
		}
		payloads = nested.Rooms
	}

	for _, item := range payloads {
		var p proto.RoomPayload
		if err := json.Unmarshal(item, &p); err != nil {
			c.log.Warn().Err(err).Msg("skipping undecodable room")
			continue
		}
		room, ok := p.ToRoom()
		if !ok {
			c.log.Warn().Msg("skipping room without id")
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// GetRoom fetches one room including its message history.
func (c *Client) GetRoom(ctx context.Context, roomID string) (core.Room, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/chat/rooms/"+url.PathEscape(roomID), nil)
	if err != nil {
		return core.Room{}, err
	}

	var p proto.RoomPayload
	if err := json.Unmarshal(unwrap(raw), &p); err != nil {
		return core.Room{}, fmt.Errorf("%w: room %s: %v", ErrMalformed, roomID, err)
	}
	room, ok := p.ToRoom()
	if !ok {
		return core.Room{}, fmt.Errorf("%w: room %s has no id", ErrMalformed, roomID)
	}
	return room, nil
}

// MarkRead marks every message of the room read on the server and returns
// the room id the server acknowledged.
func (c *Client) MarkRead(ctx context.Context, ref core.RoomRef) (string, error) {
	roomID := core.RoomIDOf(ref)
	raw, err := c.do(ctx, http.MethodPatch, "/api/chat/rooms/"+url.PathEscape(roomID)+"/read", nil)
	if err != nil {
		return "", err
	}

	var ack struct {
		ChatRoomID string `json:"chatRoomId"`
		ID         string `json:"_id"`
		AltID      string `json:"id"`
	}
	data := unwrap(raw)
	if !isNull(data) && json.Unmarshal(data, &ack) == nil {
		for _, id := range []string{ack.ChatRoomID, ack.ID, ack.AltID} {
			if id != "" {
				return id, nil
			}
		}
	}
	return roomID, nil
}

// UnreadCount fetches the server's count of unread rooms. The count may be
// a bare number or an object with "count" or "unreadCount".
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/chat/unread-count", nil)
	if err != nil {
		return 0, err
	}

	data := unwrap(raw)
	if isNull(data) {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return n, nil
	}
	var obj struct {
		Count       *int `json:"count"`
		UnreadCount *int `json:"unreadCount"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return 0, fmt.Errorf("%w: unread count: %v", ErrMalformed, err)
	}
	switch {
	case obj.UnreadCount != nil:
		return *obj.UnreadCount, nil
	case obj.Count != nil:
		return *obj.Count, nil
	}
	return 0, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("directory: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("directory: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != nil {
		id, err := c.identity.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("directory: %w", err)
		}
		req.Header.Set("X-User-ID", id.UserID)
		if id.Token != "" {
			req.Header.Set("Authorization", "Bearer "+id.Token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("directory: reading response body: %w", err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("directory request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}

// unwrap returns the value under "data" when raw is an object carrying that
// key, and raw itself otherwise.
func unwrap(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if data, ok := envelope["data"]; ok {
		return data
	}
	return trimmed
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

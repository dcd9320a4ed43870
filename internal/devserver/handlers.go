package devserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/bookchat/internal/config"
)

// DataResponse wraps a payload the way the booking backend does.
type DataResponse struct {
	Data any `json:"data"`
}

// UnreadResponse is returned bare, without the data wrapper.
type UnreadResponse struct {
	UnreadCount int `json:"unreadCount"`
}

// ReadResponse acknowledges a mark-read request.
type ReadResponse struct {
	ChatRoomID string `json:"chatRoomId"`
}

// RoomHandlers provides HTTP handlers for the chat room endpoints.
type RoomHandlers struct {
	backend *Backend
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(backend *Backend, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{backend: backend, log: logger}
}

// ListRooms returns the handler for one role's room list.
// GET /api/chat/rooms, /api/owner/chat/rooms, /api/coach/chat/rooms
func (h *RoomHandlers) ListRooms(role config.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextKeyUserID)
		rooms := h.backend.RoomsFor(userID, role)
		if len(rooms) == 0 {
			// The real backend sends null for an empty list.
			c.JSON(http.StatusOK, DataResponse{Data: nil})
			return
		}
		c.JSON(http.StatusOK, DataResponse{Data: rooms})
	}
}

// GetRoom returns one room with its message history.
// GET /api/chat/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)
	room, err := h.backend.Room(userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: room})
}

// MarkRead marks the room read for the caller.
// PATCH /api/chat/rooms/:id/read
func (h *RoomHandlers) MarkRead(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)
	roomID := c.Param("id")
	if err := h.backend.MarkRead(userID, roomID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: ReadResponse{ChatRoomID: roomID}})
}

// UnreadCount returns the caller's number of unread rooms.
// GET /api/chat/unread-count
func (h *RoomHandlers) UnreadCount(c *gin.Context) {
	c.JSON(http.StatusOK, UnreadResponse{UnreadCount: h.backend.UnreadCount(c.GetString(ContextKeyUserID))})
}

func (h *RoomHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("room request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/config"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/proto"
)

const sessionQueueSize = 64

// Common errors for room operations.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotMember     = errors.New("not a participant of this room")
	ErrEmptyMessage  = errors.New("message has no content")
	ErrRoomNotActive = errors.New("room is not active")
)

// session is one websocket connection of a user.
type session struct {
	id     string
	userID string
	send   chan proto.Envelope
	joined map[string]struct{}
}

// Backend is an in-memory chat backend holding rooms and live sessions.
type Backend struct {
	mu       sync.Mutex
	rooms    map[string]*core.Room
	sessions map[string]map[*session]struct{}
	clock    clock.Clock
	log      *zerolog.Logger
}

// NewBackend creates an empty backend.
func NewBackend(clk clock.Clock, logger *zerolog.Logger) *Backend {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Backend{
		rooms:    make(map[string]*core.Room),
		sessions: make(map[string]map[*session]struct{}),
		clock:    clk,
		log:      logger,
	}
}

// AddRoom stores room, replacing any room with the same id.
func (b *Backend) AddRoom(room core.Room) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := room.Clone()
	if r.Status == "" {
		r.Status = core.RoomStatusActive
	}
	if r.Version == 0 {
		r.Version = 1
	}
	b.rooms[r.ID] = &r
}

// RoomsFor lists the rooms userID sees in role, most recent first.
func (b *Backend) RoomsFor(userID string, role config.Role) []proto.RoomPayload {
	b.mu.Lock()
	defer b.mu.Unlock()

	rooms := make([]*core.Room, 0, len(b.rooms))
	for _, r := range b.rooms {
		if visibleTo(r, userID, role) {
			rooms = append(rooms, r)
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastMessageAt.After(rooms[j].LastMessageAt)
	})

	out := make([]proto.RoomPayload, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, payloadFor(r, userID, false))
	}
	return out
}

// Room returns one room with its history.
func (b *Backend) Room(userID, roomID string) (proto.RoomPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.memberRoomLocked(userID, roomID)
	if err != nil {
		return proto.RoomPayload{}, err
	}
	return payloadFor(r, userID, true), nil
}

// MarkRead flips every message the counterpart sent to read and notifies
// the other participants.
func (b *Backend) MarkRead(userID, roomID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.memberRoomLocked(userID, roomID)
	if err != nil {
		return err
	}
	changed := false
	for i := range r.Messages {
		if r.Messages[i].SenderID != userID && !r.Messages[i].IsRead {
			r.Messages[i].IsRead = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	r.Version++

	env, _ := proto.NewEnvelope(proto.EventMessagesRead, proto.MessagesReadData{ChatRoomID: roomID, ReadBy: userID})
	for _, p := range r.Participants() {
		if p.ID == userID {
			continue
		}
		b.pushLocked(p.ID, env, func(s *session) bool { return s.inRoom(roomID) })
	}
	return nil
}

// UnreadCount is the number of rooms with messages userID has not read.
func (b *Backend) UnreadCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, r := range b.rooms {
		if isParticipant(r, userID) && hasUnread(r, userID) {
			n++
		}
	}
	return n
}

// Post appends a message from senderID and fans it out. Every connected
// participant receives new_message; recipients not viewing the room also get
// a message_notification.
func (b *Backend) Post(senderID, roomID, content string, typ core.MessageType, attachments []string) (core.Message, error) {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return core.Message{}, ErrEmptyMessage
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.memberRoomLocked(senderID, roomID)
	if err != nil {
		return core.Message{}, err
	}
	if r.Status != core.RoomStatusActive {
		return core.Message{}, ErrRoomNotActive
	}

	msg := core.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    senderID,
		Type:        typ,
		Content:     content,
		Attachments: append([]string(nil), attachments...),
		SentAt:      b.clock.Now().UTC(),
	}
	r.Messages = append(r.Messages, msg)
	r.LastMessageAt = msg.SentAt
	r.LastMessageBy = senderID
	r.Version++

	senderName := ""
	for _, p := range r.Participants() {
		if p.ID == senderID {
			senderName = p.Name
		}
	}

	for _, p := range r.Participants() {
		roomPayload := payloadFor(r, p.ID, false)
		env, err := proto.NewEnvelope(proto.EventNewMessage, proto.NewMessageData{
			ChatRoomID: roomID,
			Message:    proto.MessageToPayload(msg),
			ChatRoom:   &roomPayload,
		})
		if err != nil {
			return core.Message{}, err
		}
		b.pushLocked(p.ID, env, nil)

		if p.ID == senderID {
			continue
		}
		alert, _ := proto.NewEnvelope(proto.EventMessageNotification, proto.NotificationData{
			ChatRoomID: roomID,
			SenderName: senderName,
			Message:    proto.MessageToPayload(msg),
		})
		b.pushLocked(p.ID, alert, func(s *session) bool { return !s.inRoom(roomID) })
	}

	b.log.Debug().Str("chat_room_id", roomID).Str("sender_id", senderID).Msg("message posted")
	return msg.Clone(), nil
}

// Typing relays a typing signal to the other participants viewing the room.
func (b *Backend) Typing(userID, roomID string, isTyping bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.memberRoomLocked(userID, roomID)
	if err != nil {
		return err
	}
	env, _ := proto.NewEnvelope(proto.EventUserTyping, proto.UserTypingData{ChatRoomID: roomID, UserID: userID, IsTyping: isTyping})
	for _, p := range r.Participants() {
		if p.ID != userID {
			b.pushLocked(p.ID, env, func(s *session) bool { return s.inRoom(roomID) })
		}
	}
	return nil
}

func (b *Backend) register(userID string) *session {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan proto.Envelope, sessionQueueSize),
		joined: make(map[string]struct{}),
	}
	if b.sessions[userID] == nil {
		b.sessions[userID] = make(map[*session]struct{})
	}
	b.sessions[userID][s] = struct{}{}
	return s
}

func (b *Backend) unregister(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sessions[s.userID], s)
	if len(b.sessions[s.userID]) == 0 {
		delete(b.sessions, s.userID)
	}
}

func (b *Backend) join(s *session, roomID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.memberRoomLocked(s.userID, roomID); err != nil {
		return err
	}
	s.joined[roomID] = struct{}{}
	return nil
}

func (b *Backend) leave(s *session, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(s.joined, roomID)
}

// reply queues env for one session.
func (b *Backend) reply(s *session, env proto.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverLocked(s, env)
}

func (b *Backend) memberRoomLocked(userID, roomID string) (*core.Room, error) {
	r, ok := b.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !isParticipant(r, userID) {
		return nil, ErrNotMember
	}
	return r, nil
}

func (b *Backend) pushLocked(userID string, env proto.Envelope, filter func(*session) bool) {
	for s := range b.sessions[userID] {
		if filter == nil || filter(s) {
			b.deliverLocked(s, env)
		}
	}
}

func (b *Backend) deliverLocked(s *session, env proto.Envelope) {
	select {
	case s.send <- env:
	default:
		b.log.Warn().Str("session_id", s.id).Str("event", env.Event).Msg("session queue full, dropping event")
	}
}

// inRoom is read under the backend lock.
func (s *session) inRoom(roomID string) bool {
	_, ok := s.joined[roomID]
	return ok
}

func isParticipant(r *core.Room, userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range r.Participants() {
		if p.ID == userID {
			return true
		}
	}
	return false
}

func visibleTo(r *core.Room, userID string, role config.Role) bool {
	switch role {
	case config.RoleOwner:
		return r.Provider.ID == userID
	case config.RoleCoach:
		return (r.Coach != nil && r.Coach.ID == userID) || r.Provider.ID == userID
	default:
		return r.Customer.ID == userID
	}
}

func hasUnread(r *core.Room, userID string) bool {
	for _, m := range r.Messages {
		if m.SenderID != userID && !m.IsRead {
			return true
		}
	}
	return false
}

func payloadFor(r *core.Room, userID string, withMessages bool) proto.RoomPayload {
	view := r.WithoutMessages()
	if withMessages {
		view.Messages = r.Messages
	}
	view.HasUnread = hasUnread(r, userID)
	return proto.RoomToPayload(view)
}

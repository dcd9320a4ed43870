package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/realtime"
)

// ErrEmptyMessage is returned when Send is called with nothing to send.
var ErrEmptyMessage = errors.New("message has no content")

// Directory is the REST snapshot source.
type Directory interface {
	ListRooms(ctx context.Context) ([]core.Room, error)
	GetRoom(ctx context.Context, roomID string) (core.Room, error)
	MarkRead(ctx context.Context, ref core.RoomRef) (string, error)
	UnreadCount(ctx context.Context) (int, error)
}

// Realtime publishes intents over the persistent connection.
type Realtime interface {
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	SendMessage(roomID, content string, typ core.MessageType, attachments []string) error
	SendTyping(roomID string, isTyping bool) error
	MarkRead(ref core.RoomRef) error
}

// Store is the conversation store.
type Store interface {
	Dispatch(a core.Action)
	Apply(ctx context.Context, a core.Action) (core.State, error)
	Snapshot() core.State
}

// Service drives asynchronous loads and user actions against the store.
// Every load dispatches a pending action, then fulfilled or rejected.
type Service struct {
	dir   Directory
	rt    Realtime
	store Store
	clock clock.Clock
	log   *zerolog.Logger
}

// New creates a conversations service.
func New(dir Directory, rt Realtime, st Store, clk clock.Clock, logger *zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{dir: dir, rt: rt, store: st, clock: clk, log: logger}
}

// LoadRooms replaces the room list with a fresh snapshot.
func (s *Service) LoadRooms(ctx context.Context) error {
	s.store.Dispatch(core.RoomsPending())

	rooms, err := s.dir.ListRooms(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("room list fetch failed")
		s.settle(ctx, core.RoomsRejected(err))
		return fmt.Errorf("load rooms: %w", err)
	}
	s.settle(ctx, core.RoomsFulfilled(rooms))
	return nil
}

// LoadRoom fetches one room's detail and merges it into the store.
func (s *Service) LoadRoom(ctx context.Context, roomID string) (core.Room, error) {
	s.store.Dispatch(core.RoomPending(roomID))

	room, err := s.dir.GetRoom(ctx, roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("chat_room_id", roomID).Msg("room fetch failed")
		s.settle(ctx, core.RoomRejected(roomID, err))
		return core.Room{}, fmt.Errorf("load room %s: %w", roomID, err)
	}
	s.settle(ctx, core.RoomFulfilled(room))
	return room, nil
}

// OpenRoom focuses a room, joins its live channel, loads its history and
// marks it read when it has unread messages. A different room that was
// focused before is left first.
func (s *Service) OpenRoom(ctx context.Context, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return core.ErrNoFocusedRoom
	}
	if prev := s.store.Snapshot().Current; prev != nil && prev.ID != roomID {
		s.leave(prev.ID)
	}
	state := s.settle(ctx, core.FocusRoom(roomID))

	if err := s.rt.JoinRoom(roomID); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		s.log.Warn().Err(err).Str("chat_room_id", roomID).Msg("join failed")
	}

	room, err := s.LoadRoom(ctx, roomID)
	if err != nil {
		return err
	}

	unread := room.HasUnread
	if entry, ok := state.Room(roomID); ok && entry.HasUnread {
		unread = true
	}
	if !unread {
		return nil
	}
	return s.MarkRead(ctx, core.ID(roomID))
}

// CloseRoom leaves the focused room and clears its typing state.
func (s *Service) CloseRoom(ctx context.Context) error {
	cur := s.store.Snapshot().Current
	if cur == nil {
		return core.ErrNoFocusedRoom
	}
	s.leave(cur.ID)
	s.settle(ctx, core.LeaveRoom())
	return nil
}

func (s *Service) leave(roomID string) {
	_ = s.rt.SendTyping(roomID, false)
	if err := s.rt.LeaveRoom(roomID); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		s.log.Warn().Err(err).Str("chat_room_id", roomID).Msg("leave failed")
	}
}

// MarkRead marks a room read on the server and, once it succeeds, in the
// store. ref may be a bare id or a room.
func (s *Service) MarkRead(ctx context.Context, ref core.RoomRef) error {
	roomID := core.RoomIDOf(ref)
	if roomID == "" {
		return core.ErrNoFocusedRoom
	}
	s.store.Dispatch(core.MarkReadPending(ref))

	acked, err := s.dir.MarkRead(ctx, ref)
	if err != nil {
		s.log.Warn().Err(err).Str("chat_room_id", roomID).Msg("mark read failed")
		s.settle(ctx, core.MarkReadRejected(ref, err))
		return fmt.Errorf("mark read %s: %w", roomID, err)
	}
	if err := s.rt.MarkRead(core.ID(acked)); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		s.log.Debug().Err(err).Msg("read intent not sent")
	}
	s.settle(ctx, core.MarkReadFulfilled(core.ID(acked)))
	return nil
}

// RefreshUnread loads the server's unread count.
func (s *Service) RefreshUnread(ctx context.Context) error {
	s.store.Dispatch(core.UnreadPending())

	n, err := s.dir.UnreadCount(ctx)
	if err != nil {
		s.settle(ctx, core.UnreadRejected(err))
		return fmt.Errorf("unread count: %w", err)
	}
	s.settle(ctx, core.UnreadFulfilled(n))
	return nil
}

// Send appends a pending message to the focused room and publishes it. The
// pending entry is replaced once the server echoes the message back; if the
// intent cannot be sent it is removed again.
func (s *Service) Send(ctx context.Context, content string, typ core.MessageType, attachments []string) (core.Message, error) {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return core.Message{}, ErrEmptyMessage
	}
	state := s.store.Snapshot()
	if state.Current == nil {
		return core.Message{}, core.ErrNoFocusedRoom
	}
	roomID := state.Current.ID

	pending := core.NewPendingMessage(uuid.NewString(), roomID, state.Me, typ, content, attachments, s.clock.Now())
	s.settle(ctx, core.MessageQueued(pending))

	if err := s.rt.SendMessage(roomID, content, typ, attachments); err != nil {
		s.settle(ctx, core.MessageDropped(roomID, pending.LocalID))
		return core.Message{}, fmt.Errorf("send: %w", err)
	}
	return pending, nil
}

// Typing publishes the user's typing state for the focused room.
func (s *Service) Typing(ctx context.Context, isTyping bool) error {
	cur := s.store.Snapshot().Current
	if cur == nil {
		return core.ErrNoFocusedRoom
	}
	return s.rt.SendTyping(cur.ID, isTyping)
}

// Resync recovers after the connection comes back: it reloads the room list
// and, when a room is focused, re-joins it and re-fetches its history.
func (s *Service) Resync(ctx context.Context) error {
	err := s.LoadRooms(ctx)

	cur := s.store.Snapshot().Current
	if cur == nil {
		return err
	}
	if joinErr := s.rt.JoinRoom(cur.ID); joinErr != nil {
		s.log.Warn().Err(joinErr).Str("chat_room_id", cur.ID).Msg("rejoin failed")
	}
	if _, roomErr := s.LoadRoom(ctx, cur.ID); roomErr != nil && err == nil {
		err = roomErr
	}
	return err
}

// settle applies a and waits for it. A stopped store is logged, not returned:
// the store only stops when the application is shutting down.
func (s *Service) settle(ctx context.Context, a core.Action) core.State {
	st, err := s.store.Apply(ctx, a)
	if err != nil {
		s.log.Debug().Err(err).Str("action", a.Kind.String()).Msg("action not applied")
		return s.store.Snapshot()
	}
	return st
}

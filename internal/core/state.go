package core

import "slices"

// Phase is the load axis of the store state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "idle"
	}
}

// Inflight tracks which asynchronous loads are pending.
type Inflight struct {
	Rooms    bool
	Room     bool
	MarkRead bool
	Unread   bool
}

// State is the canonical in-memory view of the conversations.
type State struct {
	Phase     Phase
	Loaded    bool
	Connected bool
	Me        string

	// Rooms is ordered by LastMessageAt, most recent first.
	Rooms []Room
	// Current is the focused room, including its message history.
	Current *Room
	// LoadingRoomID is the room a fetch-by-id is running for.
	LoadingRoomID string

	Unread    int
	Typing    map[TypingKey]bool
	Inflight  Inflight
	LastError *CoreError
}

// NewState returns the initial idle state.
func NewState() State {
	return State{Typing: make(map[TypingKey]bool)}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	if s.Rooms != nil {
		out.Rooms = make([]Room, len(s.Rooms))
		for i, r := range s.Rooms {
			out.Rooms[i] = r.Clone()
		}
	}
	if s.Current != nil {
		cur := s.Current.Clone()
		out.Current = &cur
	}
	out.Typing = make(map[TypingKey]bool, len(s.Typing))
	for k, v := range s.Typing {
		out.Typing[k] = v
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

// Room returns the directory entry for id.
func (s State) Room(id string) (Room, bool) {
	if i := indexOfRoom(s.Rooms, id); i >= 0 {
		return s.Rooms[i], true
	}
	return Room{}, false
}

// Focused reports whether id is the focused room.
func (s State) Focused(id string) bool {
	return s.Current != nil && id != "" && s.Current.ID == id
}

// UnreadRooms counts directory entries flagged unread.
func (s State) UnreadRooms() int {
	n := 0
	for _, r := range s.Rooms {
		if r.HasUnread {
			n++
		}
	}
	return n
}

// TypingUsers lists users currently typing in the focused room, sorted by id.
func (s State) TypingUsers() []string {
	if s.Current == nil {
		return nil
	}
	var users []string
	for k, v := range s.Typing {
		if v && k.RoomID == s.Current.ID {
			users = append(users, k.UserID)
		}
	}
	slices.Sort(users)
	return users
}

package core

import (
	"sort"
	"time"
)

// RoomStatus is the lifecycle state the backend reports for a room.
type RoomStatus string

const (
	RoomStatusActive   RoomStatus = "active"
	RoomStatusResolved RoomStatus = "resolved"
	RoomStatusArchived RoomStatus = "archived"
)

// ParseRoomStatus maps a wire value onto a known status, defaulting to active.
func ParseRoomStatus(s string) RoomStatus {
	switch RoomStatus(s) {
	case RoomStatusResolved:
		return RoomStatusResolved
	case RoomStatusArchived:
		return RoomStatusArchived
	default:
		return RoomStatusActive
	}
}

// Participant is a fixed member of a room.
type Participant struct {
	ID   string
	Name string
}

// Room is a conversation between one customer and one provider
// (facility owner or instructor), optionally with a coach and a booking.
type Room struct {
	ID            string
	Title         string
	BookingID     string
	Customer      Participant
	Provider      Participant
	Coach         *Participant
	Status        RoomStatus
	Messages      []Message
	LastMessageAt time.Time
	LastMessageBy string
	HasUnread     bool
	// Version is a server-side monotonic revision of the room metadata.
	// Zero means the server did not send one.
	Version int64
}

// ChatRoomID implements RoomRef.
func (r Room) ChatRoomID() string { return r.ID }

// Clone returns a deep copy of the room.
func (r Room) Clone() Room {
	out := r
	if r.Coach != nil {
		coach := *r.Coach
		out.Coach = &coach
	}
	if r.Messages != nil {
		out.Messages = make([]Message, len(r.Messages))
		for i, m := range r.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// WithoutMessages returns a copy of the room metadata with no message history.
func (r Room) WithoutMessages() Room {
	out := r.Clone()
	out.Messages = nil
	return out
}

// Participants lists the two or three fixed members.
func (r Room) Participants() []Participant {
	out := []Participant{r.Customer, r.Provider}
	if r.Coach != nil {
		out = append(out, *r.Coach)
	}
	return out
}

// Counterpart returns the participant the viewer is talking to.
func (r Room) Counterpart(me string) Participant {
	if r.Customer.ID == me {
		return r.Provider
	}
	return r.Customer
}

// UnreadFrom counts messages the viewer has not read that were sent by someone else.
func (r Room) UnreadFrom(me string) int {
	n := 0
	for _, m := range r.Messages {
		if !m.IsRead && m.SenderID != me {
			n++
		}
	}
	return n
}

// RoomRef is anything that identifies a room: a bare ID, a Room, or a wire payload.
type RoomRef interface {
	ChatRoomID() string
}

// ID is a bare room identifier.
type ID string

// ChatRoomID implements RoomRef.
func (id ID) ChatRoomID() string { return string(id) }

// RoomIDOf extracts the room id from ref, tolerating nil.
func RoomIDOf(ref RoomRef) string {
	if ref == nil {
		return ""
	}
	return ref.ChatRoomID()
}

// sortRooms orders rooms most-recent-first. Ties keep their relative order.
func sortRooms(rooms []Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastMessageAt.After(rooms[j].LastMessageAt)
	})
}

func indexOfRoom(rooms []Room, id string) int {
	for i := range rooms {
		if rooms[i].ID == id {
			return i
		}
	}
	return -1
}

// moveToFront removes any entry with room's id and inserts room at position 0.
func moveToFront(rooms []Room, room Room) []Room {
	out := make([]Room, 0, len(rooms)+1)
	out = append(out, room)
	for _, r := range rooms {
		if r.ID != room.ID {
			out = append(out, r)
		}
	}
	return out
}

// placeRoom removes any entry with room's id and inserts room at its sorted position.
func placeRoom(rooms []Room, room Room) []Room {
	out := make([]Room, 0, len(rooms)+1)
	inserted := false
	for _, r := range rooms {
		if r.ID == room.ID {
			continue
		}
		if !inserted && room.LastMessageAt.After(r.LastMessageAt) {
			out = append(out, room)
			inserted = true
		}
		out = append(out, r)
	}
	if !inserted {
		out = append(out, room)
	}
	return out
}

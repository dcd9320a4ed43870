package proto

import (
	"time"

	"github.com/vovakirdan/bookchat/internal/core"
)

// ToRoom converts a room payload into the domain model. ok is false for a
// record without an id, which callers skip.
func (p RoomPayload) ToRoom() (core.Room, bool) {
	if p.ID == "" {
		return core.Room{}, false
	}
	room := core.Room{
		ID:        p.ID,
		Title:     p.Title,
		Status:    core.ParseRoomStatus(p.Status),
		HasUnread: p.HasUnread,
		Version:   p.Version,
		Messages:  []core.Message{},
	}
	if p.Booking != nil {
		room.BookingID = p.Booking.ID
	}
	if p.Customer != nil {
		room.Customer = participant(*p.Customer)
	}
	switch {
	case p.Owner != nil && p.Owner.ID != "":
		room.Provider = participant(*p.Owner)
		if p.Coach != nil && p.Coach.ID != "" {
			coach := participant(*p.Coach)
			room.Coach = &coach
		}
	case p.Coach != nil:
		room.Provider = participant(*p.Coach)
	}
	if p.LastMessageAt != nil {
		room.LastMessageAt = *p.LastMessageAt
	}
	if p.LastMessageBy != nil {
		room.LastMessageBy = p.LastMessageBy.ID
	}
	for _, mp := range p.Messages {
		if m, ok := mp.ToMessage(p.ID); ok {
			room.Messages = append(room.Messages, m)
		}
	}
	if room.LastMessageAt.IsZero() && len(room.Messages) > 0 {
		last := room.Messages[len(room.Messages)-1]
		room.LastMessageAt = last.SentAt
		if room.LastMessageBy == "" {
			room.LastMessageBy = last.SenderID
		}
	}
	return room, true
}

// ToMessage converts a message payload. ok is false for a record carrying
// neither content nor attachments.
func (m MessagePayload) ToMessage(roomID string) (core.Message, bool) {
	if m.Content == "" && len(m.Attachments) == 0 {
		return core.Message{}, false
	}
	if m.ChatRoomID != "" {
		roomID = m.ChatRoomID
	}
	return core.Message{
		ID:          m.ID,
		RoomID:      roomID,
		SenderID:    m.Sender.ID,
		Type:        core.ParseMessageType(m.Type),
		Content:     m.Content,
		Attachments: append([]string(nil), m.Attachments...),
		IsRead:      m.IsRead,
		SentAt:      m.timestamp(),
		Delivery:    core.DeliveryConfirmed,
	}, true
}

func (m MessagePayload) timestamp() time.Time {
	if m.SentAt != nil && !m.SentAt.IsZero() {
		return *m.SentAt
	}
	if m.CreatedAt != nil {
		return *m.CreatedAt
	}
	return time.Time{}
}

// RoomToPayload converts a domain room into its wire form.
func RoomToPayload(r core.Room) RoomPayload {
	p := RoomPayload{
		ID:        r.ID,
		Title:     r.Title,
		Status:    string(r.Status),
		HasUnread: r.HasUnread,
		Version:   r.Version,
		Customer:  refOf(r.Customer),
		Owner:     refOf(r.Provider),
	}
	if r.Coach != nil {
		p.Coach = refOf(*r.Coach)
	}
	if r.BookingID != "" {
		p.Booking = &UserRef{ID: r.BookingID}
	}
	if !r.LastMessageAt.IsZero() {
		ts := r.LastMessageAt
		p.LastMessageAt = &ts
	}
	if r.LastMessageBy != "" {
		p.LastMessageBy = &UserRef{ID: r.LastMessageBy}
	}
	for _, m := range r.Messages {
		p.Messages = append(p.Messages, MessageToPayload(m))
	}
	return p
}

// MessageToPayload converts a domain message into its wire form.
func MessageToPayload(m core.Message) MessagePayload {
	ts := m.SentAt
	return MessagePayload{
		ID:          m.ID,
		ChatRoomID:  m.RoomID,
		Sender:      UserRef{ID: m.SenderID},
		Type:        string(m.Type),
		Content:     m.Content,
		Attachments: m.Attachments,
		IsRead:      m.IsRead,
		SentAt:      &ts,
	}
}

func participant(ref UserRef) core.Participant {
	return core.Participant{ID: ref.ID, Name: ref.Name}
}

func refOf(p core.Participant) *UserRef {
	if p.ID == "" {
		return nil
	}
	return &UserRef{ID: p.ID, Name: p.Name}
}

package core

import "time"

// MessageType describes how message content is rendered.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ParseMessageType maps a wire value onto a known type, defaulting to text.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return MessageType(s)
	default:
		return MessageTypeText
	}
}

// Delivery tags whether the server has acknowledged a message.
type Delivery int

const (
	// DeliveryConfirmed messages carry a server-assigned ID.
	DeliveryConfirmed Delivery = iota
	// DeliveryPending messages were appended locally and await the server echo.
	DeliveryPending
)

func (d Delivery) String() string {
	if d == DeliveryPending {
		return "pending"
	}
	return "confirmed"
}

// Message is the domain model for a chat message. Only IsRead ever changes
// after creation; a pending entry is replaced wholesale once confirmed.
type Message struct {
	ID          string
	LocalID     string
	RoomID      string
	SenderID    string
	Type        MessageType
	Content     string
	Attachments []string
	IsRead      bool
	SentAt      time.Time
	Delivery    Delivery
}

// NewPendingMessage builds an optimistic message awaiting confirmation.
func NewPendingMessage(localID, roomID, senderID string, typ MessageType, content string, attachments []string, sentAt time.Time) Message {
	return Message{
		LocalID:     localID,
		RoomID:      roomID,
		SenderID:    senderID,
		Type:        typ,
		Content:     content,
		Attachments: append([]string(nil), attachments...),
		IsRead:      true,
		SentAt:      sentAt,
		Delivery:    DeliveryPending,
	}
}

// Pending reports whether the message is still awaiting server confirmation.
func (m Message) Pending() bool { return m.Delivery == DeliveryPending }

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]string(nil), m.Attachments...)
	}
	return out
}

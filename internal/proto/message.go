package proto

import (
	"encoding/json"
	"time"
)

// Envelope is the frame exchanged over the persistent connection in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	// Outbound intents (client to server).
	IntentJoinChat     = "join_chat"
	IntentLeaveChat    = "leave_chat"
	IntentSendMessage  = "send_message_to_room"
	IntentTyping       = "typing"
	IntentReadMessages = "read_messages"

	// Inbound events (server to client).
	EventNewMessage          = "new_message"
	EventUserTyping          = "user_typing"
	EventMessagesRead        = "messages_read"
	EventMessageNotification = "message_notification"
	EventError               = "error"
)

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// RoomData names a room; used by join_chat, leave_chat and read_messages.
type RoomData struct {
	ChatRoomID string `json:"chatRoomId"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ChatRoomID  string   `json:"chatRoomId"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	Attachments []string `json:"attachments,omitempty"`
}

// TypingData is the client's typing signal.
type TypingData struct {
	ChatRoomID string `json:"chatRoomId"`
	IsTyping   bool   `json:"isTyping"`
}

// NewMessageData carries a new message and the updated room snapshot.
type NewMessageData struct {
	ChatRoomID string         `json:"chatRoomId"`
	Message    MessagePayload `json:"message"`
	ChatRoom   *RoomPayload   `json:"chatRoom,omitempty"`
}

// UserTypingData reports another participant's typing state.
type UserTypingData struct {
	ChatRoomID string `json:"chatRoomId"`
	UserID     string `json:"userId"`
	IsTyping   bool   `json:"isTyping"`
}

// MessagesReadData is a read receipt: ReadBy has read the room.
type MessagesReadData struct {
	ChatRoomID string `json:"chatRoomId"`
	ReadBy     string `json:"readBy,omitempty"`
}

// NotificationData asks the client to alert the user about a message.
type NotificationData struct {
	ChatRoomID string         `json:"chatRoomId,omitempty"`
	SenderName string         `json:"senderName,omitempty"`
	Message    MessagePayload `json:"message"`
}

// ErrorData describes a protocol-level error pushed by the server.
type ErrorData struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

// MessagePayload is a message as the backend serializes it.
type MessagePayload struct {
	ID          string     `json:"_id,omitempty"`
	ChatRoomID  string     `json:"chatRoomId,omitempty"`
	Sender      UserRef    `json:"sender"`
	Type        string     `json:"type,omitempty"`
	Content     string     `json:"content"`
	Attachments []string   `json:"attachments,omitempty"`
	IsRead      bool       `json:"isRead"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// RoomPayload is a room as the backend serializes it.
type RoomPayload struct {
	ID            string           `json:"_id"`
	Title         string           `json:"title,omitempty"`
	Booking       *UserRef         `json:"booking,omitempty"`
	Customer      *UserRef         `json:"customer,omitempty"`
	Owner         *UserRef         `json:"owner,omitempty"`
	Coach         *UserRef         `json:"coach,omitempty"`
	Status        string           `json:"status,omitempty"`
	Messages      []MessagePayload `json:"messages,omitempty"`
	LastMessageAt *time.Time       `json:"lastMessageAt,omitempty"`
	LastMessageBy *UserRef         `json:"lastMessageBy,omitempty"`
	HasUnread     bool             `json:"hasUnread"`
	Version       int64            `json:"version,omitempty"`
}

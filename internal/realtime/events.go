package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/notify"
	"github.com/vovakirdan/bookchat/internal/proto"
)

// route turns an inbound envelope into a store action or an alert.
func (m *Manager) route(env proto.Envelope) {
	switch env.Event {
	case proto.EventNewMessage:
		var data proto.NewMessageData
		if !m.decode(env, &data) {
			return
		}
		msg, ok := data.Message.ToMessage(data.ChatRoomID)
		if !ok {
			m.log.Debug().Str("chat_room_id", data.ChatRoomID).Msg("skipping empty message")
			return
		}
		roomID := data.ChatRoomID
		if roomID == "" {
			roomID = msg.RoomID
		}
		if roomID == "" {
			m.log.Warn().Msg("new_message without room id")
			return
		}
		var room *core.Room
		if data.ChatRoom != nil {
			if r, ok := data.ChatRoom.ToRoom(); ok {
				room = &r
			}
		}
		m.store.Dispatch(core.MessageReceived(roomID, msg, room))

	case proto.EventUserTyping:
		var data proto.UserTypingData
		if !m.decode(env, &data) {
			return
		}
		m.store.Dispatch(core.Typing(data.ChatRoomID, data.UserID, data.IsTyping))

	case proto.EventMessagesRead:
		var data proto.MessagesReadData
		if !m.decode(env, &data) {
			return
		}
		m.store.Dispatch(core.MessagesRead(data.ChatRoomID, data.ReadBy))

	case proto.EventMessageNotification:
		var data proto.NotificationData
		if !m.decode(env, &data) {
			return
		}
		m.alert(data)

	case proto.EventError:
		var data proto.ErrorData
		if !m.decode(env, &data) {
			return
		}
		m.log.Warn().Str("code", data.Code).Str("message", data.Msg).Msg("server error")
		m.store.Dispatch(core.Failure(core.ErrCodeTransport, errors.New(data.Msg)))

	default:
		m.log.Debug().Str("event", env.Event).Msg("unhandled event")
	}
}

func (m *Manager) decode(env proto.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		m.log.Warn().Err(err).Str("event", env.Event).Msg("malformed event payload")
		return false
	}
	return true
}

// alert raises a desktop notification unless the user is viewing the room.
func (m *Manager) alert(data proto.NotificationData) {
	if m.notifier == nil {
		return
	}
	roomID := data.ChatRoomID
	if roomID == "" {
		roomID = data.Message.ChatRoomID
	}

	focused := ""
	if cur := m.store.Snapshot().Current; cur != nil {
		focused = cur.ID
	}
	if !notify.ShouldAlert(m.foreground.Active(), focused, roomID) {
		return
	}

	title := "New message"
	if data.SenderName != "" {
		title = "New message from " + data.SenderName
	} else if data.Message.Sender.Name != "" {
		title = "New message from " + data.Message.Sender.Name
	}
	body := data.Message.Content
	if body == "" && len(data.Message.Attachments) > 0 {
		body = "Sent an attachment"
	}

	go func() {
		if err := m.notifier.Notify(context.Background(), notify.Alert{RoomID: roomID, Title: title, Body: body}); err != nil {
			m.log.Debug().Err(err).Msg("desktop alert failed")
		}
	}()
}

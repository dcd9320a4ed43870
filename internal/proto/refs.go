package proto

import (
	"bytes"
	"encoding/json"
)

// UserRef is a reference the backend sends either as a bare id or as a
// populated object. Bookings use the same shape.
type UserRef struct {
	ID   string
	Name string
}

type userRefObject struct {
	ID       string `json:"_id,omitempty"`
	AltID    string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// UnmarshalJSON accepts "id", 42, {"_id": "..."} and {"id": "..."}.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = UserRef{}
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = UserRef{ID: id}
		return nil
	case '{':
		var obj userRefObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		id := obj.ID
		if id == "" {
			id = obj.AltID
		}
		name := obj.Name
		if name == "" {
			name = obj.FullName
		}
		*u = UserRef{ID: id, Name: name}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*u = UserRef{ID: n.String()}
		return nil
	}
}

// MarshalJSON writes a bare id, or an object when a name is known.
func (u UserRef) MarshalJSON() ([]byte, error) {
	if u.Name == "" {
		return json.Marshal(u.ID)
	}
	return json.Marshal(userRefObject{ID: u.ID, Name: u.Name})
}

type roomPayloadAlias RoomPayload

// UnmarshalJSON accepts both "_id" and "id" for the room identifier.
func (r *RoomPayload) UnmarshalJSON(data []byte) error {
	var aux struct {
		roomPayloadAlias
		AltID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = RoomPayload(aux.roomPayloadAlias)
	if r.ID == "" && len(aux.AltID) > 0 {
		r.ID = rawID(aux.AltID)
	}
	return nil
}

type messagePayloadAlias MessagePayload

// UnmarshalJSON accepts both "_id" and "id" for the message identifier,
// and "chatRoomId" as well as "chatRoom" for the room.
func (m *MessagePayload) UnmarshalJSON(data []byte) error {
	var aux struct {
		messagePayloadAlias
		AltID      json.RawMessage `json:"id"`
		ChatRoom   json.RawMessage `json:"chatRoom"`
		ChatRoomID string          `json:"chatRoomId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = MessagePayload(aux.messagePayloadAlias)
	if m.ID == "" && len(aux.AltID) > 0 {
		m.ID = rawID(aux.AltID)
	}
	m.ChatRoomID = aux.ChatRoomID
	if m.ChatRoomID == "" && len(aux.ChatRoom) > 0 {
		var ref UserRef
		if err := json.Unmarshal(aux.ChatRoom, &ref); err == nil {
			m.ChatRoomID = ref.ID
		}
	}
	return nil
}

// rawID decodes an identifier that may be a string or a number.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

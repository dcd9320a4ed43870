package core

// TypingKey identifies one user's typing indicator in one room.
type TypingKey struct {
	RoomID string
	UserID string
}

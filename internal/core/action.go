package core

// ActionKind describes which mutation an Action requests.
type ActionKind int

const (
	// ActionRoomsPending marks the room list fetch as in flight.
	ActionRoomsPending ActionKind = iota
	// ActionRoomsFulfilled replaces the room list with a snapshot.
	ActionRoomsFulfilled
	// ActionRoomsRejected records a failed room list fetch.
	ActionRoomsRejected

	// ActionRoomPending marks a fetch-by-id of the focused room as in flight.
	ActionRoomPending
	// ActionRoomFulfilled merges a fetched room detail into the focused room.
	ActionRoomFulfilled
	// ActionRoomRejected records a failed fetch-by-id.
	ActionRoomRejected

	// ActionMarkReadPending marks a mark-as-read call as in flight.
	ActionMarkReadPending
	// ActionMarkReadFulfilled flips every message of a room to read and clears its unread flag.
	ActionMarkReadFulfilled
	// ActionMarkReadRejected records a failed mark-as-read call.
	ActionMarkReadRejected

	// ActionUnreadPending marks an unread count fetch as in flight.
	ActionUnreadPending
	// ActionUnreadFulfilled sets the global unread counter from the server.
	ActionUnreadFulfilled
	// ActionUnreadRejected records a failed unread count fetch.
	ActionUnreadRejected

	// ActionMessageReceived applies a live new_message event.
	ActionMessageReceived
	// ActionTyping applies a live user_typing event.
	ActionTyping
	// ActionMessagesRead applies a live read receipt.
	ActionMessagesRead

	// ActionMessageQueued appends an optimistic pending message to the focused room.
	ActionMessageQueued
	// ActionMessageDropped removes a pending message that could not be sent.
	ActionMessageDropped

	// ActionFocusRoom makes a room the focused room.
	ActionFocusRoom
	// ActionLeaveRoom clears the focused room and its typing indicators.
	ActionLeaveRoom

	// ActionSetConnected publishes the connection status.
	ActionSetConnected
	// ActionSetIdentity records the viewing actor.
	ActionSetIdentity
	// ActionError records an error that is not tied to a load.
	ActionError
	// ActionClear drops all state (logout).
	ActionClear
)

var actionNames = [...]string{
	"rooms_pending", "rooms_fulfilled", "rooms_rejected",
	"room_pending", "room_fulfilled", "room_rejected",
	"mark_read_pending", "mark_read_fulfilled", "mark_read_rejected",
	"unread_pending", "unread_fulfilled", "unread_rejected",
	"message_received", "typing", "messages_read",
	"message_queued", "message_dropped",
	"focus_room", "leave_room",
	"set_connected", "set_identity", "error", "clear",
}

func (k ActionKind) String() string {
	if int(k) < 0 || int(k) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[k]
}

// Action is a described mutation. Only the reducer applies it.
type Action struct {
	Kind      ActionKind
	RoomID    string
	UserID    string
	Ref       RoomRef
	Room      *Room
	Rooms     []Room
	Message   *Message
	IsTyping  bool
	Connected bool
	Count     int
	Err       *CoreError
}

// RoomsPending starts a room list fetch.
func RoomsPending() Action { return Action{Kind: ActionRoomsPending} }

// RoomsFulfilled replaces the room list with rooms.
func RoomsFulfilled(rooms []Room) Action { return Action{Kind: ActionRoomsFulfilled, Rooms: rooms} }

// RoomsRejected records a failed room list fetch.
func RoomsRejected(err error) Action {
	return Action{Kind: ActionRoomsRejected, Err: errorFrom(ErrCodeFetchFailed, err)}
}

// RoomPending starts a fetch of roomID.
func RoomPending(roomID string) Action { return Action{Kind: ActionRoomPending, RoomID: roomID} }

// RoomFulfilled merges a fetched room detail.
func RoomFulfilled(room Room) Action {
	return Action{Kind: ActionRoomFulfilled, RoomID: room.ID, Room: &room}
}

// RoomRejected records a failed fetch of roomID.
func RoomRejected(roomID string, err error) Action {
	return Action{Kind: ActionRoomRejected, RoomID: roomID, Err: errorFrom(ErrCodeFetchFailed, err)}
}

// MarkReadPending starts a mark-as-read call for ref.
func MarkReadPending(ref RoomRef) Action {
	return Action{Kind: ActionMarkReadPending, Ref: ref, RoomID: RoomIDOf(ref)}
}

// MarkReadFulfilled marks every message of ref read.
func MarkReadFulfilled(ref RoomRef) Action {
	return Action{Kind: ActionMarkReadFulfilled, Ref: ref, RoomID: RoomIDOf(ref)}
}

// MarkReadRejected records a failed mark-as-read call.
func MarkReadRejected(ref RoomRef, err error) Action {
	return Action{Kind: ActionMarkReadRejected, Ref: ref, RoomID: RoomIDOf(ref), Err: errorFrom(ErrCodeFetchFailed, err)}
}

// UnreadPending starts an unread count fetch.
func UnreadPending() Action { return Action{Kind: ActionUnreadPending} }

// UnreadFulfilled sets the unread counter to count.
func UnreadFulfilled(count int) Action { return Action{Kind: ActionUnreadFulfilled, Count: count} }

// UnreadRejected records a failed unread count fetch.
func UnreadRejected(err error) Action {
	return Action{Kind: ActionUnreadRejected, Err: errorFrom(ErrCodeFetchFailed, err)}
}

// MessageReceived builds the action for a new_message event. room may be nil
// when the event carried no room snapshot.
func MessageReceived(roomID string, msg Message, room *Room) Action {
	return Action{Kind: ActionMessageReceived, RoomID: roomID, Message: &msg, Room: room}
}

// Typing applies a user_typing event.
func Typing(roomID, userID string, isTyping bool) Action {
	return Action{Kind: ActionTyping, RoomID: roomID, UserID: userID, IsTyping: isTyping}
}

// MessagesRead applies a read receipt from readerID.
func MessagesRead(roomID, readerID string) Action {
	return Action{Kind: ActionMessagesRead, RoomID: roomID, UserID: readerID}
}

// MessageQueued appends the pending msg to the focused room.
func MessageQueued(msg Message) Action {
	return Action{Kind: ActionMessageQueued, RoomID: msg.RoomID, Message: &msg}
}

// MessageDropped removes the pending message with localID.
func MessageDropped(roomID, localID string) Action {
	return Action{Kind: ActionMessageDropped, RoomID: roomID, Message: &Message{LocalID: localID, RoomID: roomID}}
}

// FocusRoom makes roomID the focused room.
func FocusRoom(roomID string) Action { return Action{Kind: ActionFocusRoom, RoomID: roomID} }

// LeaveRoom clears the focused room.
func LeaveRoom() Action { return Action{Kind: ActionLeaveRoom} }

// SetConnected publishes the connection status.
func SetConnected(connected bool) Action {
	return Action{Kind: ActionSetConnected, Connected: connected}
}

// SetIdentity records the viewing user.
func SetIdentity(userID string) Action { return Action{Kind: ActionSetIdentity, UserID: userID} }

// Failure records err under code.
func Failure(code string, err error) Action {
	return Action{Kind: ActionError, Err: errorFrom(code, err)}
}

// Clear drops all state.
func Clear() Action { return Action{Kind: ActionClear} }

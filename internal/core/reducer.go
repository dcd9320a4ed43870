package core

// Reduce applies a to s and returns the new state. s is never modified, so a
// mutation is either fully visible in the result or not at all.
func Reduce(s State, a Action) State {
	next := s.Clone()

	switch a.Kind {
	case ActionRoomsPending:
		next.Phase = PhaseLoading
		next.Inflight.Rooms = true
	case ActionRoomsFulfilled:
		next.Rooms = mergeRoomList(s.Rooms, a.Rooms)
		next.Unread = next.UnreadRooms()
		next.Phase = PhaseReady
		next.Loaded = true
		next.Inflight.Rooms = false
		next.LastError = nil
	case ActionRoomsRejected:
		next.Inflight.Rooms = false
		next.LastError = a.Err
		if next.Loaded {
			next.Phase = PhaseReady
		} else {
			next.Phase = PhaseIdle
		}

	case ActionRoomPending:
		next.Inflight.Room = true
		next.LoadingRoomID = a.RoomID
	case ActionRoomFulfilled:
		reduceRoomFulfilled(&next, a)
	case ActionRoomRejected:
		if a.RoomID == "" || a.RoomID == next.LoadingRoomID {
			next.Inflight.Room = false
			next.LoadingRoomID = ""
		}
		next.LastError = a.Err

	case ActionMarkReadPending:
		next.Inflight.MarkRead = true
	case ActionMarkReadFulfilled:
		next.Inflight.MarkRead = false
		markRead(&next, RoomIDOf(a.Ref))
	case ActionMarkReadRejected:
		next.Inflight.MarkRead = false
		next.LastError = a.Err

	case ActionUnreadPending:
		next.Inflight.Unread = true
	case ActionUnreadFulfilled:
		next.Inflight.Unread = false
		next.Unread = clampUnread(a.Count)
	case ActionUnreadRejected:
		next.Inflight.Unread = false
		next.LastError = a.Err

	case ActionMessageReceived:
		reduceMessageReceived(&next, a)
	case ActionTyping:
		if !next.Focused(a.RoomID) || a.UserID == "" || a.UserID == next.Me {
			return s
		}
		key := TypingKey{RoomID: a.RoomID, UserID: a.UserID}
		if a.IsTyping {
			next.Typing[key] = true
		} else {
			delete(next.Typing, key)
		}
	case ActionMessagesRead:
		if !next.Focused(a.RoomID) {
			return s
		}
		for i := range next.Current.Messages {
			if next.Current.Messages[i].SenderID != a.UserID {
				next.Current.Messages[i].IsRead = true
			}
		}

	case ActionMessageQueued:
		if a.Message == nil || !next.Focused(a.RoomID) {
			return s
		}
		next.Current.Messages, _ = appendMessage(next.Current.Messages, *a.Message)
	case ActionMessageDropped:
		if a.Message == nil || !next.Focused(a.RoomID) {
			return s
		}
		kept := next.Current.Messages[:0]
		for _, m := range next.Current.Messages {
			if m.Pending() && m.LocalID == a.Message.LocalID {
				continue
			}
			kept = append(kept, m)
		}
		next.Current.Messages = kept

	case ActionFocusRoom:
		if a.RoomID == "" || next.Focused(a.RoomID) {
			return s
		}
		next.Typing = make(map[TypingKey]bool)
		room := Room{ID: a.RoomID, Status: RoomStatusActive}
		if entry, ok := next.Room(a.RoomID); ok {
			room = entry.WithoutMessages()
		}
		room.Messages = []Message{}
		next.Current = &room
	case ActionLeaveRoom:
		next.Current = nil
		next.Typing = make(map[TypingKey]bool)
		next.Inflight.Room = false
		next.LoadingRoomID = ""

	case ActionSetConnected:
		next.Connected = a.Connected
	case ActionSetIdentity:
		next.Me = a.UserID
	case ActionError:
		next.LastError = a.Err
	case ActionClear:
		return NewState()
	default:
		return s
	}

	return next
}

func reduceRoomFulfilled(next *State, a Action) {
	if a.RoomID == next.LoadingRoomID {
		next.Inflight.Room = false
		next.LoadingRoomID = ""
	}
	if a.Room == nil || a.Room.ID == "" {
		return
	}
	fetched := *a.Room

	if i := indexOfRoom(next.Rooms, fetched.ID); i >= 0 {
		held := next.Rooms[i]
		entry := mergeMeta(held, fetched.WithoutMessages())
		entry.Messages = held.Messages
		next.Rooms = placeRoom(next.Rooms, entry)
		adjustUnread(next, held.HasUnread, entry.HasUnread)
	}

	if !next.Focused(fetched.ID) {
		return
	}
	cur := mergeMeta(next.Current.WithoutMessages(), fetched.WithoutMessages())
	cur.Messages = mergeHistory(fetched.Messages, next.Current.Messages)
	next.Current = &cur
}

func reduceMessageReceived(next *State, a Action) {
	if a.Message == nil || a.RoomID == "" {
		return
	}
	msg := *a.Message
	if msg.RoomID == "" {
		msg.RoomID = a.RoomID
	}
	focused := next.Focused(a.RoomID)

	if focused {
		next.Current.Messages, _ = appendMessage(next.Current.Messages, msg)
		if msg.SentAt.After(next.Current.LastMessageAt) {
			next.Current.LastMessageAt = msg.SentAt
		}
		next.Current.LastMessageBy = msg.SenderID
		next.Current.HasUnread = false
	}

	held, exists := next.Room(a.RoomID)
	entry := held
	if a.Room != nil {
		incoming := a.Room.WithoutMessages()
		incoming.ID = a.RoomID
		if exists {
			entry = mergeMeta(held, incoming)
		} else {
			entry = incoming
		}
	} else if !exists {
		entry = Room{ID: a.RoomID, Status: RoomStatusActive}
	}
	if exists {
		entry.Messages = held.Messages
	}
	if msg.SentAt.After(entry.LastMessageAt) {
		entry.LastMessageAt = msg.SentAt
	}
	if entry.LastMessageBy == "" || a.Room == nil {
		entry.LastMessageBy = msg.SenderID
	}
	entry.HasUnread = !focused

	next.Rooms = moveToFront(next.Rooms, entry)
	adjustUnread(next, exists && held.HasUnread, entry.HasUnread)
}

// markRead flips every message of the room to read and clears its unread
// flag in both the focused copy and the directory entry.
func markRead(next *State, roomID string) {
	if roomID == "" {
		return
	}
	// The counter tracks directory flags; the focused copy only counts
	// when the room is missing from the directory.
	wasUnread := false

	if next.Focused(roomID) {
		for i := range next.Current.Messages {
			next.Current.Messages[i].IsRead = true
		}
		wasUnread = next.Current.HasUnread
		next.Current.HasUnread = false
	}
	if i := indexOfRoom(next.Rooms, roomID); i >= 0 {
		wasUnread = next.Rooms[i].HasUnread
		next.Rooms[i].HasUnread = false
		for j := range next.Rooms[i].Messages {
			next.Rooms[i].Messages[j].IsRead = true
		}
	}
	if wasUnread {
		next.Unread = clampUnread(next.Unread - 1)
	}
}

// adjustUnread keeps the global counter in step with one room's flag change.
func adjustUnread(next *State, before, after bool) {
	switch {
	case !before && after:
		next.Unread++
	case before && !after:
		next.Unread = clampUnread(next.Unread - 1)
	}
}

func clampUnread(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

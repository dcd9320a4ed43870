package core

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestIncomingMessageForUnfocusedRoomMovesItToFront(t *testing.T) {
	s := apply(NewState(),
		SetIdentity("cust"),
		RoomsFulfilled([]Room{room("A", 0), room("B", 5)}),
		FocusRoom("B"),
	)
	if got := roomOrder(s); !equalIDs(got, []string{"B", "A"}) {
		t.Fatalf("initial order = %v, want [B A]", got)
	}

	snapshot := room("A", 10)
	s = Reduce(s, MessageReceived("A", msg("m1", "A", "owner", 10), &snapshot))

	if got := roomOrder(s); !equalIDs(got, []string{"A", "B"}) {
		t.Fatalf("order = %v, want [A B]", got)
	}
	if !s.Rooms[0].HasUnread {
		t.Fatalf("room A should be unread")
	}
	if s.Unread != 1 {
		t.Fatalf("unread = %d, want 1", s.Unread)
	}
	if len(s.Current.Messages) != 0 {
		t.Fatalf("focused room B must not receive A's message")
	}
}

func TestIncomingMessageForFocusedRoomAppends(t *testing.T) {
	s := apply(NewState(),
		RoomsFulfilled([]Room{room("A", 0), room("B", 5)}),
		FocusRoom("A"),
		RoomFulfilled(Room{ID: "A", LastMessageAt: at(0), Messages: []Message{msg("m0", "A", "owner", 0)}}),
	)

	s = Reduce(s, MessageReceived("A", msg("m1", "A", "owner", 10), nil))

	if n := len(s.Current.Messages); n != 2 {
		t.Fatalf("messages = %d, want 2", n)
	}
	if s.Current.Messages[0].ID != "m0" || s.Current.Messages[1].ID != "m1" {
		t.Fatalf("message must be appended after history: %+v", s.Current.Messages)
	}
	if !s.Current.LastMessageAt.Equal(at(10)) || s.Current.LastMessageBy != "owner" {
		t.Fatalf("focused room metadata not updated: %+v", s.Current)
	}
	if s.Rooms[0].ID != "A" || s.Rooms[0].HasUnread {
		t.Fatalf("focused room should be first and read: %+v", s.Rooms[0])
	}
	if s.Unread != 0 {
		t.Fatalf("unread = %d, want 0 for focused room", s.Unread)
	}
}

func TestIncomingMessageInsertsUnknownRoom(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}))

	s = Reduce(s, MessageReceived("N", msg("m1", "N", "owner", 3), nil))

	if got := roomOrder(s); !equalIDs(got, []string{"N", "A"}) {
		t.Fatalf("order = %v, want [N A]", got)
	}
	if !s.Rooms[0].HasUnread || s.Unread != 1 {
		t.Fatalf("new room should be unread: %+v unread=%d", s.Rooms[0], s.Unread)
	}
}

func TestDuplicateLiveMessageIsIgnored(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"))
	m := msg("m1", "A", "owner", 1)

	s = apply(s, MessageReceived("A", m, nil), MessageReceived("A", m, nil))

	if n := len(s.Current.Messages); n != 1 {
		t.Fatalf("messages = %d, want 1", n)
	}
}

func TestUnreadCounterMatchesUnreadRooms(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"A", "B", "C", "D"}

	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0), room("B", 1), room("C", 2)}))
	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(4) {
		case 0:
			s = Reduce(s, FocusRoom(id))
		case 1:
			s = Reduce(s, MarkReadFulfilled(ID(id)))
		default:
			s = Reduce(s, MessageReceived(id, msg("", id, "owner", 10+i), nil))
		}
		if s.Unread < 0 {
			t.Fatalf("step %d: unread went negative", i)
		}
		if s.Unread != s.UnreadRooms() {
			t.Fatalf("step %d: unread = %d, rooms flagged = %d", i, s.Unread, s.UnreadRooms())
		}
	}
}

func TestMarkReadFlipsMessagesAndClampsCounter(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0), room("B", 1)}), FocusRoom("B"))
	s = apply(s, MessageReceived("A", msg("m1", "A", "owner", 5), nil))
	if s.Unread != 1 {
		t.Fatalf("unread = %d, want 1", s.Unread)
	}

	s = Reduce(s, FocusRoom("A"))
	s = Reduce(s, MessageReceived("A", msg("m2", "A", "owner", 6), nil))
	s = Reduce(s, MarkReadFulfilled(ID("A")))

	if s.Unread != 0 {
		t.Fatalf("unread = %d, want 0", s.Unread)
	}
	for _, m := range s.Current.Messages {
		if !m.IsRead {
			t.Fatalf("message %s not read", m.ID)
		}
	}
	if s.Current.HasUnread {
		t.Fatalf("focused copy still unread")
	}
	if entry, _ := s.Room("A"); entry.HasUnread {
		t.Fatalf("directory copy still unread")
	}

	s = Reduce(s, MarkReadFulfilled(ID("A")))
	if s.Unread != 0 {
		t.Fatalf("second mark-read: unread = %d, want 0", s.Unread)
	}
}

func TestMarkReadAcceptsRoomOrBareID(t *testing.T) {
	start := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}))
	start = Reduce(start, MessageReceived("A", msg("m1", "A", "owner", 1), nil))

	refs := []RoomRef{ID("A"), start.Rooms[0]}
	for _, ref := range refs {
		s := Reduce(start, MarkReadFulfilled(ref))
		if s.Rooms[0].HasUnread || s.Unread != 0 {
			t.Fatalf("ref %T did not resolve to room A", ref)
		}
	}

	if s := Reduce(start, MarkReadFulfilled(nil)); s.Unread != 1 {
		t.Fatalf("nil ref must be a no-op")
	}
}

func TestUnreadFulfilledClampsNegative(t *testing.T) {
	s := Reduce(NewState(), UnreadFulfilled(-3))
	if s.Unread != 0 {
		t.Fatalf("unread = %d, want 0", s.Unread)
	}
	s = Reduce(s, UnreadFulfilled(4))
	if s.Unread != 4 {
		t.Fatalf("unread = %d, want 4", s.Unread)
	}
}

func TestTypingUsersAreSorted(t *testing.T) {
	s := apply(NewState(), SetIdentity("cust"), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"),
		Typing("A", "owner", true), Typing("A", "coach", true), Typing("A", "admin", true), Typing("A", "bob", true))

	want := []string{"admin", "bob", "coach", "owner"}
	for i := 0; i < 10; i++ {
		got := s.TypingUsers()
		if len(got) != len(want) {
			t.Fatalf("typing users = %v, want %v", got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("typing users = %v, want %v", got, want)
			}
		}
	}
}

func TestTypingOnlyForFocusedRoom(t *testing.T) {
	s := apply(NewState(), SetIdentity("cust"), RoomsFulfilled([]Room{room("A", 0), room("B", 1)}), FocusRoom("A"))

	s = Reduce(s, Typing("B", "owner", true))
	if len(s.Typing) != 0 {
		t.Fatalf("typing for unfocused room must be dropped")
	}

	s = Reduce(s, Typing("A", "owner", true))
	if !s.Typing[TypingKey{RoomID: "A", UserID: "owner"}] {
		t.Fatalf("typing indicator not set")
	}
	if users := s.TypingUsers(); len(users) != 1 || users[0] != "owner" {
		t.Fatalf("typing users = %v", users)
	}

	s = Reduce(s, Typing("A", "cust", true))
	if len(s.Typing) != 1 {
		t.Fatalf("own typing echo must be ignored")
	}

	s = Reduce(s, Typing("A", "owner", false))
	if len(s.Typing) != 0 {
		t.Fatalf("stopped typing should clear indicator")
	}

	s = apply(s, Typing("A", "owner", true), LeaveRoom())
	if len(s.Typing) != 0 || s.Current != nil {
		t.Fatalf("leaving the room should clear typing and focus")
	}
}

func TestRoomsRejectedKeepsData(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}), RoomsPending())
	if s.Phase != PhaseLoading {
		t.Fatalf("phase = %v, want loading", s.Phase)
	}

	s = Reduce(s, RoomsRejected(errors.New("boom")))

	if len(s.Rooms) != 1 {
		t.Fatalf("rejected refresh must keep cached rooms")
	}
	if s.LastError == nil || s.LastError.Code != ErrCodeFetchFailed {
		t.Fatalf("expected fetch_failed error, got %+v", s.LastError)
	}
	if s.Phase != PhaseReady {
		t.Fatalf("phase = %v, want ready", s.Phase)
	}

	fresh := Reduce(Reduce(NewState(), RoomsPending()), RoomsRejected(errors.New("boom")))
	if fresh.Phase != PhaseIdle {
		t.Fatalf("phase = %v, want idle when nothing was ever loaded", fresh.Phase)
	}
}

func TestRoomsFulfilledReplacesAndSorts(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0), room("B", 1)}))
	s = Reduce(s, RoomsFulfilled([]Room{room("C", 3), room("A", 9), {Title: "no id"}}))

	if got := roomOrder(s); !equalIDs(got, []string{"A", "C"}) {
		t.Fatalf("order = %v, want [A C]", got)
	}
	if s.Phase != PhaseReady || !s.Loaded {
		t.Fatalf("expected ready state")
	}
}

func TestSnapshotAfterLiveEventIsLastWriteWins(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0), room("B", 5)}))

	live := room("A", 10)
	live.Title = "renamed"
	s = Reduce(s, MessageReceived("A", msg("m1", "A", "owner", 10), &live))

	refetched := room("A", 10)
	refetched.Title = "renamed"
	refetched.HasUnread = true
	s = Reduce(s, RoomsFulfilled([]Room{refetched, room("B", 5)}))

	entry, ok := s.Room("A")
	if !ok || entry.Title != "renamed" || !entry.LastMessageAt.Equal(at(10)) {
		t.Fatalf("metadata not consistent with live event: %+v", entry)
	}
	if s.Rooms[0].ID != "A" {
		t.Fatalf("A should lead the list")
	}
	if s.Unread != 1 {
		t.Fatalf("unread = %d, want 1", s.Unread)
	}
}

func TestStaleVersionedSnapshotDoesNotRegress(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}))

	live := room("A", 10)
	live.Version = 2
	live.Status = RoomStatusResolved
	s = Reduce(s, MessageReceived("A", msg("m1", "A", "owner", 10), &live))

	stale := room("A", 0)
	stale.Version = 1
	s = Reduce(s, RoomsFulfilled([]Room{stale}))

	entry, _ := s.Room("A")
	if entry.Version != 2 || entry.Status != RoomStatusResolved || !entry.LastMessageAt.Equal(at(10)) {
		t.Fatalf("older snapshot overwrote newer metadata: %+v", entry)
	}
}

func TestRoomFulfilledKeepsLiveMessagesAppendedDuringFetch(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"), RoomPending("A"))

	// Live event lands while the fetch is in flight.
	s = Reduce(s, MessageReceived("A", msg("m2", "A", "owner", 2), nil))

	fetched := room("A", 1)
	fetched.Messages = []Message{msg("m1", "A", "owner", 1)}
	s = Reduce(s, RoomFulfilled(fetched))

	if s.Inflight.Room {
		t.Fatalf("room fetch should be settled")
	}
	if n := len(s.Current.Messages); n != 2 {
		t.Fatalf("messages = %d, want 2: %+v", n, s.Current.Messages)
	}
	if s.Current.Messages[0].ID != "m1" || s.Current.Messages[1].ID != "m2" {
		t.Fatalf("unexpected order: %+v", s.Current.Messages)
	}

	// The same fetch arriving again, now including m2, must not duplicate it.
	fetched.Messages = append(fetched.Messages, msg("m2", "A", "owner", 2))
	s = Reduce(s, RoomFulfilled(fetched))
	if n := len(s.Current.Messages); n != 2 {
		t.Fatalf("messages = %d after refetch, want 2", n)
	}
}

func TestRoomFulfilledForOtherRoomDoesNotClobberFocus(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0), room("B", 1)}), FocusRoom("B"))
	s = Reduce(s, MessageReceived("B", msg("m1", "B", "owner", 2), nil))

	other := room("A", 0)
	other.Messages = []Message{msg("x", "A", "owner", 0)}
	s = Reduce(s, RoomFulfilled(other))

	if s.Current.ID != "B" || len(s.Current.Messages) != 1 {
		t.Fatalf("focused room changed by unrelated fetch: %+v", s.Current)
	}
}

func TestPendingMessageReplacedByConfirmation(t *testing.T) {
	s := apply(NewState(), SetIdentity("cust"), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"))

	pending := NewPendingMessage("local-1", "A", "cust", MessageTypeText, "see you at 6", nil, at(1))
	s = Reduce(s, MessageQueued(pending))
	if len(s.Current.Messages) != 1 || !s.Current.Messages[0].Pending() {
		t.Fatalf("pending message not appended: %+v", s.Current.Messages)
	}

	confirmed := Message{ID: "srv-1", RoomID: "A", SenderID: "cust", Type: MessageTypeText, Content: "see you at 6", SentAt: at(1).Add(900 * time.Millisecond)}
	s = Reduce(s, MessageReceived("A", confirmed, nil))

	if n := len(s.Current.Messages); n != 1 {
		t.Fatalf("messages = %d, want 1 (pending replaced)", n)
	}
	got := s.Current.Messages[0]
	if got.Pending() || got.ID != "srv-1" || got.LocalID != "local-1" {
		t.Fatalf("unexpected reconciled message: %+v", got)
	}
}

func TestMessageDroppedRemovesPending(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"))
	s = Reduce(s, MessageQueued(NewPendingMessage("l1", "A", "cust", MessageTypeText, "hi", nil, at(1))))
	s = Reduce(s, MessageDropped("A", "l1"))

	if len(s.Current.Messages) != 0 {
		t.Fatalf("pending message should be removed")
	}
}

func TestMessagesReadReceipt(t *testing.T) {
	s := apply(NewState(), SetIdentity("cust"), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"))
	s = apply(s,
		MessageReceived("A", msg("m1", "A", "cust", 1), nil),
		MessageReceived("A", msg("m2", "A", "owner", 2), nil),
		MessagesRead("A", "owner"),
	)

	if !s.Current.Messages[0].IsRead {
		t.Fatalf("my message should be read by counterpart")
	}
	if s.Current.Messages[1].IsRead {
		t.Fatalf("reader's own message must not change")
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := apply(NewState(), RoomsFulfilled([]Room{room("A", 0), room("B", 1)}), FocusRoom("A"))
	before := s.Clone()

	_ = Reduce(s, MessageReceived("A", msg("m1", "A", "owner", 5), nil))
	_ = Reduce(s, MarkReadFulfilled(ID("A")))

	if len(s.Current.Messages) != len(before.Current.Messages) || !equalIDs(roomOrder(s), roomOrder(before)) {
		t.Fatalf("input state was mutated")
	}
}

func TestClearResetsEverything(t *testing.T) {
	s := apply(NewState(), SetIdentity("cust"), SetConnected(true), RoomsFulfilled([]Room{room("A", 0)}), FocusRoom("A"))
	s = Reduce(s, Clear())

	if s.Me != "" || s.Connected || len(s.Rooms) != 0 || s.Current != nil || s.Phase != PhaseIdle {
		t.Fatalf("clear left state behind: %+v", s)
	}
}

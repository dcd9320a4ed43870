package core

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func room(id string, minutes int) Room {
	return Room{
		ID:            id,
		Title:         "room " + id,
		Customer:      Participant{ID: "cust"},
		Provider:      Participant{ID: "owner"},
		Status:        RoomStatusActive,
		LastMessageAt: at(minutes),
	}
}

func msg(id, roomID, sender string, minutes int) Message {
	return Message{
		ID:       id,
		RoomID:   roomID,
		SenderID: sender,
		Type:     MessageTypeText,
		Content:  "hello " + id,
		SentAt:   at(minutes),
	}
}

func apply(s State, actions ...Action) State {
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s
}

func roomOrder(s State) []string {
	ids := make([]string, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		ids = append(ids, r.ID)
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// mustState polls the store until cond holds.
func mustState(t *testing.T, s *Store, cond func(State) bool) State {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := s.Snapshot()
		if cond(st) {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("store never reached expected state: %+v", s.Snapshot())
	return State{}
}

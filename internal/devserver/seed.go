package devserver

import (
	"time"

	"github.com/vovakirdan/bookchat/internal/core"
)

// Demo participants created by Seed.
const (
	DemoCustomer = "cust-1"
	DemoOwner    = "owner-1"
	DemoCoach    = "coach-1"
)

// Seed fills the backend with a few demo rooms ending at now.
func Seed(b *Backend, now time.Time) {
	customer := core.Participant{ID: DemoCustomer, Name: "Dana Customer"}
	owner := core.Participant{ID: DemoOwner, Name: "Riverside Courts"}
	coach := core.Participant{ID: DemoCoach, Name: "Coach Sam"}

	court := core.Room{
		ID:        "room-court",
		Title:     "Court 3, Saturday 10:00",
		BookingID: "booking-100",
		Customer:  customer,
		Provider:  owner,
		Status:    core.RoomStatusActive,
		Messages: []core.Message{
			{ID: "seed-1", RoomID: "room-court", SenderID: DemoCustomer, Type: core.MessageTypeText, Content: "Is parking available?", IsRead: true, SentAt: now.Add(-50 * time.Minute)},
			{ID: "seed-2", RoomID: "room-court", SenderID: DemoOwner, Type: core.MessageTypeText, Content: "Yes, behind the clubhouse.", SentAt: now.Add(-45 * time.Minute)},
		},
	}
	court.LastMessageAt = court.Messages[1].SentAt
	court.LastMessageBy = DemoOwner

	lesson := core.Room{
		ID:       "room-lesson",
		Title:    "Private lesson",
		Customer: customer,
		Provider: owner,
		Coach:    &coach,
		Status:   core.RoomStatusActive,
		Messages: []core.Message{
			{ID: "seed-3", RoomID: "room-lesson", SenderID: DemoCoach, Type: core.MessageTypeText, Content: "Bring your own racket.", IsRead: true, SentAt: now.Add(-3 * time.Hour)},
		},
	}
	lesson.LastMessageAt = lesson.Messages[0].SentAt
	lesson.LastMessageBy = DemoCoach

	archived := core.Room{
		ID:            "room-archived",
		Title:         "Last season",
		Customer:      customer,
		Provider:      owner,
		Status:        core.RoomStatusArchived,
		Messages:      []core.Message{},
		LastMessageAt: now.Add(-30 * 24 * time.Hour),
	}

	for _, r := range []core.Room{court, lesson, archived} {
		b.AddRoom(r)
	}
}

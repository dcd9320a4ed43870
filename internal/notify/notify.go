// Package notify raises user-facing alerts for messages that arrive while
// the user is looking elsewhere.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const commandTimeout = 3 * time.Second

// Alert is a single desktop notification.
type Alert struct {
	RoomID string
	Title  string
	Body   string
}

// Notifier delivers alerts. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// ShouldAlert reports whether a message for roomID warrants an alert: the app
// is in the background, or the user is focused on another room.
func ShouldAlert(foreground bool, focusedRoomID, roomID string) bool {
	return !foreground || focusedRoomID != roomID
}

// Foreground tracks whether the user is looking at the app.
type Foreground struct {
	active atomic.Bool
}

// Set records the focus state.
func (f *Foreground) Set(active bool) { f.active.Store(active) }

// Active reports whether the app has focus.
func (f *Foreground) Active() bool { return f.active.Load() }

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	Log *zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	if n.Log != nil {
		n.Log.Info().Str("chat_room_id", a.RoomID).Str("title", a.Title).Msg(a.Body)
	}
	return nil
}

// CommandNotifier runs an external command such as notify-send with the
// title and body as arguments.
type CommandNotifier struct {
	Command string
	Log     *zerolog.Logger
}

func (n CommandNotifier) Notify(ctx context.Context, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, n.Command, a.Title, a.Body).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", n.Command, err, out)
	}
	if n.Log != nil {
		n.Log.Debug().Str("chat_room_id", a.RoomID).Msg("desktop alert raised")
	}
	return nil
}

// Multi fans an alert out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

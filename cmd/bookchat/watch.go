package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bookchat/internal/app"
	"github.com/vovakirdan/bookchat/internal/core"
)

const watchHelp = `commands:
  /open <room>   focus a room
  /close         leave the focused room
  /read          mark the focused room read
  /typing        send a typing signal
  /rooms         print the room list
  /quit          exit
anything else is sent to the focused room`

func newWatchCmd(c *cli) *cobra.Command {
	var roomID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect and follow conversations, sending lines read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := app.New(c.cfg, c.log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(ctx); err != nil {
				return err
			}
			a.Foreground().Set(true)

			out := cmd.OutOrStdout()
			printRooms(out, a.Store().Snapshot())

			if roomID != "" {
				if err := a.Conversations().OpenRoom(ctx, roomID); err != nil {
					return err
				}
			}

			updates, unsubscribe := a.Store().Subscribe()
			defer unsubscribe()
			p := &printer{w: out}
			p.render(a.Store().Snapshot())

			lines := make(chan string)
			go readLines(cmd.InOrStdin(), lines)
			fmt.Fprintln(out, watchHelp)

			for {
				select {
				case <-ctx.Done():
					return nil
				case st := <-updates:
					p.render(st)
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if quit := runLine(ctx, a, out, line); quit {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "room to open on start")
	return cmd
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func runLine(ctx context.Context, a *app.App, out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	convs := a.Conversations()

	var err error
	switch {
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/open "):
		err = convs.OpenRoom(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
	case line == "/close":
		err = convs.CloseRoom(ctx)
	case line == "/read":
		cur := a.Store().Snapshot().Current
		if cur == nil {
			err = core.ErrNoFocusedRoom
		} else {
			err = convs.MarkRead(ctx, *cur)
		}
	case line == "/typing":
		err = convs.Typing(ctx, true)
	case line == "/rooms":
		printRooms(out, a.Store().Snapshot())
	case strings.HasPrefix(line, "/"):
		fmt.Fprintln(out, watchHelp)
	default:
		_, err = convs.Send(ctx, line, core.MessageTypeText, nil)
	}
	if err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}
	return false
}

// printer writes what changed between successive snapshots.
type printer struct {
	w         io.Writer
	connected bool
	roomID    string
	seen      map[string]bool
	typing    string
	lastErr   string
}

func (p *printer) render(st core.State) {
	if st.Connected != p.connected {
		p.connected = st.Connected
		if st.Connected {
			fmt.Fprintln(p.w, "-- connected")
		} else {
			fmt.Fprintln(p.w, "-- disconnected")
		}
	}
	if st.LastError != nil && st.LastError.Error() != p.lastErr {
		p.lastErr = st.LastError.Error()
		fmt.Fprintf(p.w, "! %s\n", p.lastErr)
	}

	if st.Current == nil {
		if p.roomID != "" {
			fmt.Fprintf(p.w, "-- left %s\n", p.roomID)
		}
		p.roomID, p.seen, p.typing = "", nil, ""
		return
	}
	if st.Current.ID != p.roomID {
		p.roomID = st.Current.ID
		p.seen = make(map[string]bool)
		p.typing = ""
		fmt.Fprintf(p.w, "-- %s (%s)\n", st.Current.Title, st.Current.ID)
	}

	for _, m := range st.Current.Messages {
		key := m.ID
		if m.Pending() {
			key = "local:" + m.LocalID
		}
		if p.seen[key] {
			continue
		}
		// Once confirmed, the pending copy has already been shown.
		if !m.Pending() && m.LocalID != "" && p.seen["local:"+m.LocalID] {
			p.seen[key] = true
			continue
		}
		p.seen[key] = true
		fmt.Fprintln(p.w, formatMessage(st, m))
	}

	users := st.TypingUsers()
	sort.Strings(users)
	typing := strings.Join(users, ", ")
	if typing != p.typing {
		p.typing = typing
		if typing != "" {
			fmt.Fprintf(p.w, "   %s typing...\n", typing)
		}
	}
}

func formatMessage(st core.State, m core.Message) string {
	who := m.SenderID
	if who == st.Me {
		who = "me"
	} else if st.Current != nil {
		for _, p := range st.Current.Participants() {
			if p.ID == m.SenderID && p.Name != "" {
				who = p.Name
			}
		}
	}
	suffix := ""
	if m.Pending() {
		suffix = " (sending)"
	}
	body := m.Content
	if len(m.Attachments) > 0 {
		body += fmt.Sprintf(" [%d attachment(s)]", len(m.Attachments))
	}
	return fmt.Sprintf("[%s] %s: %s%s", m.SentAt.Local().Format("15:04"), who, body, suffix)
}
